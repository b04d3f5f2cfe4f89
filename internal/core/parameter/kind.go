package parameter

import (
	"fmt"
	"math"
)

// Kind is the wire type of a parameter. It never changes after registration.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindScalar
	KindBoolean
	KindString
	KindVector3
	KindQuaternion
)

var kindNames = map[Kind]string{
	KindScalar:     "scalar",
	KindBoolean:    "boolean",
	KindString:     "string",
	KindVector3:    "vec3",
	KindQuaternion: "quaternion",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind resolves the structured-encoding type name of a kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

type Quat struct {
	X, Y, Z, W float64
}

func IdentityQuat() Quat {
	return Quat{W: 1}
}

// Mul returns the Hamilton product q*o.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// AxisAngle builds a unit quaternion rotating angle radians about axis.
func AxisAngle(axis Vec3, angle float64) Quat {
	l := axis.Length()
	if l == 0 {
		return IdentityQuat()
	}
	s := math.Sin(angle/2) / l
	return Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: math.Cos(angle / 2)}
}

// Value is a tagged union holding one parameter value.
type Value struct {
	Kind   Kind
	Scalar float64
	Bool   bool
	Str    string
	Vec    Vec3
	Quat   Quat
}

func ScalarValue(f float64) Value  { return Value{Kind: KindScalar, Scalar: f} }
func BoolValue(b bool) Value       { return Value{Kind: KindBoolean, Bool: b} }
func StringValue(s string) Value   { return Value{Kind: KindString, Str: s} }
func Vector3Value(v Vec3) Value    { return Value{Kind: KindVector3, Vec: v} }
func QuaternionValue(q Quat) Value { return Value{Kind: KindQuaternion, Quat: q} }
