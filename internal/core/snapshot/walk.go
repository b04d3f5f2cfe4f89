package snapshot

import (
	"fmt"

	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// recordEncoder is the per-encoding half of entity serialization. The walk
// itself lives in writeEntity and is shared by every encoding.
type recordEncoder interface {
	parameter.Visitor
	beginEntity(id scene.ID) error
	beginScript(name string) error
	// endScript closes the current script record, dropping it when no
	// parameter was written.
	endScript() error
	endEntity() error
	// abortEntity discards a partially written entity record.
	abortEntity()
}

// writeEntity reports whether e produced a record.
func writeEntity(enc recordEncoder, e *scene.Entity) (bool, error) {
	if e == nil {
		return false, nil
	}

	switch e.Role() {
	case scene.RoleNone:
		return false, nil
	case scene.RoleRemote:
		// authoritative elsewhere; only remote calls may be queued for it
		return false, nil
	case scene.RoleLocal:
	default:
		return false, fmt.Errorf("%w: %s on entity %d", ErrUnknownRole, e.Role(), e.ID())
	}

	if err := encodeEntity(enc, e); err != nil {
		enc.abortEntity()
		return false, err
	}
	return true, nil
}

func encodeEntity(enc recordEncoder, e *scene.Entity) error {
	if err := enc.beginEntity(e.ID()); err != nil {
		return err
	}
	if err := e.Parameters().Accept(enc); err != nil {
		return err
	}
	for _, ns := range e.Scripts() {
		if err := enc.beginScript(ns.Name); err != nil {
			return err
		}
		if err := ns.Script.Parameters().Accept(enc); err != nil {
			return err
		}
		if err := enc.endScript(); err != nil {
			return err
		}
	}
	return enc.endEntity()
}

func checkKind(d parameter.Descriptor, v parameter.Value) error {
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %s (%s)", ErrUnknownKind, d.Kind, d.Name)
	}
	if v.Kind != d.Kind {
		return &parameter.MismatchError{Name: d.Name, Expected: d.Kind, Received: v.Kind}
	}
	return nil
}
