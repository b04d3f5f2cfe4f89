package scene

import (
	"fmt"
	"strings"
)

// Role decides whether an entity's state is replicated from this process.
type Role uint8

const (
	// RoleNone entities make no contribution to the network layer.
	RoleNone Role = iota
	// RoleLocal entities are authoritative here and their state is sent.
	RoleLocal
	// RoleRemote entities are simulated here but owned elsewhere.
	RoleRemote
)

func (r Role) String() string {
	switch r {
	case RoleNone:
		return "NONE"
	case RoleLocal:
		return "LOCAL"
	case RoleRemote:
		return "REMOTE"
	default:
		return fmt.Sprintf("ROLE(%d)", uint8(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return RoleNone, nil
	case "LOCAL":
		return RoleLocal, nil
	case "REMOTE":
		return RoleRemote, nil
	default:
		return RoleNone, fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
