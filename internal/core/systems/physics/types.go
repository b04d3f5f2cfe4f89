package physics

import (
	"errors"
	"fmt"

	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

var (
	ErrInvalidShape      = errors.New("invalid collision shape")
	ErrInvalidDimensions = errors.New("invalid shape dimensions")
	ErrInvalidBodyType   = errors.New("invalid rigid body type")
	ErrInvalidMass       = errors.New("dynamic body needs a positive mass")
	ErrBodyExists        = errors.New("entity already has a rigid body")
	ErrNilEntity         = errors.New("entity is nil")
)

// Capability is the surface other packages use to give entities physical
// behaviour.
type Capability interface {
	CreateShape(kind ShapeKind, dims Dimensions) (*Shape, error)
	CreateBody(e *scene.Entity, shape *Shape, spec BodySpec) (*Body, error)
	Step(dt float64)
}

type ShapeKind uint8

const (
	ShapeInvalid ShapeKind = iota
	ShapeBox
	ShapeSphere
	ShapeCylinder
	ShapeCone
)

var shapeNames = map[ShapeKind]string{
	ShapeBox:      "box",
	ShapeSphere:   "sphere",
	ShapeCylinder: "cylinder",
	ShapeCone:     "cone",
}

func (k ShapeKind) String() string {
	if name, ok := shapeNames[k]; ok {
		return name
	}
	return "invalid"
}

func ParseShapeKind(s string) (ShapeKind, error) {
	for k, name := range shapeNames {
		if name == s {
			return k, nil
		}
	}
	return ShapeInvalid, fmt.Errorf("%w: %q", ErrInvalidShape, s)
}

func (k *ShapeKind) UnmarshalText(text []byte) error {
	parsed, err := ParseShapeKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k ShapeKind) MarshalText() ([]byte, error) {
	if _, ok := shapeNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShape, uint8(k))
	}
	return []byte(k.String()), nil
}

// Dimensions describes a shape. Boxes and cylinders use HalfExtents;
// spheres use Radius; cones use Radius and Length.
type Dimensions struct {
	HalfExtents parameter.Vec3
	Radius      float64
	Length      float64
}

type Shape struct {
	Kind ShapeKind
	Dims Dimensions
}

type BodyType uint8

const (
	BodyStatic BodyType = iota
	BodyDynamic
	BodyKinematic
)

var bodyTypeNames = map[BodyType]string{
	BodyStatic:    "static",
	BodyDynamic:   "dynamic",
	BodyKinematic: "kinematic",
}

func (t BodyType) String() string {
	if name, ok := bodyTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("BodyType(%d)", uint8(t))
}

func ParseBodyType(s string) (BodyType, error) {
	for t, name := range bodyTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidBodyType, s)
}

func (t *BodyType) UnmarshalText(text []byte) error {
	parsed, err := ParseBodyType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t BodyType) MarshalText() ([]byte, error) {
	if _, ok := bodyTypeNames[t]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBodyType, uint8(t))
	}
	return []byte(t.String()), nil
}

// BodySpec carries the rigid body settings. Damping values are the fraction
// of velocity lost per second.
type BodySpec struct {
	Type           BodyType
	Mass           float64
	Restitution    float64
	Friction       float64
	LinearDamping  float64
	AngularDamping float64
}

// DefaultBodySpec is a kinematic body with full restitution.
func DefaultBodySpec() BodySpec {
	return BodySpec{Type: BodyKinematic, Restitution: 1}
}
