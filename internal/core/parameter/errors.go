package parameter

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyName   = errors.New("parameter name is empty")
	ErrDuplicate   = errors.New("parameter already registered")
	ErrNotFound    = errors.New("parameter not found")
	ErrUnknownKind = errors.New("unknown parameter kind")
	ErrNilAccessor = errors.New("parameter accessor is nil")
)

// MismatchError reports a value whose kind differs from the registered one.
type MismatchError struct {
	Name     string
	Expected Kind
	Received Kind
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("type mismatch: expected %s, received %s", e.Expected, e.Received)
}
