package scene

import "errors"

var (
	ErrEmptyName        = errors.New("entity name is empty")
	ErrNameTaken        = errors.New("entity name already in use")
	ErrForeignEntity    = errors.New("entity does not belong to this scene")
	ErrRootEntity       = errors.New("root entity cannot be destroyed")
	ErrHierarchyCycle   = errors.New("entity cannot become a child of its descendant")
	ErrNilScript        = errors.New("script is nil")
	ErrScriptExists     = errors.New("script slot already in use")
	ErrUnknownScript    = errors.New("unknown script")
	ErrUnknownRole      = errors.New("unknown network role")
	ErrEmptyScriptName  = errors.New("script name is empty")
	ErrNilScriptFactory = errors.New("script factory is nil")
	ErrScriptRegistered = errors.New("script already registered")
)
