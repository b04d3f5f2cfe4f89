package parameter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	params   *Set
	speed    float64
	visible  bool
	label    string
	position Vec3
	rotation Quat
}

func newSample(t *testing.T) *sample {
	s := &sample{params: NewSet(), rotation: IdentityQuat()}
	require.NoError(t, s.params.Vector3Var("position", &s.position))
	require.NoError(t, s.params.QuaternionVar("rotation", &s.rotation))
	require.NoError(t, s.params.ScalarVar("speed", &s.speed))
	require.NoError(t, s.params.BooleanVar("visible", &s.visible))
	require.NoError(t, s.params.StringVar("label", &s.label))
	return s
}

// TestSet_RegistrationOrder tests that visitors see descriptors in registration order
func TestSet_RegistrationOrder(t *testing.T) {
	s := newSample(t)

	var names []string
	err := s.params.Accept(VisitorFunc(func(d Descriptor, _ Accessor) error {
		names = append(names, d.Name)
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"position", "rotation", "speed", "visible", "label"}, names)
	assert.Equal(t, 5, s.params.Len())
}

func TestSet_RegisterGuards(t *testing.T) {
	s := newSample(t)

	var other float64
	err := s.params.ScalarVar("speed", &other)
	assert.True(t, errors.Is(err, ErrDuplicate))

	assert.ErrorIs(t, s.params.ScalarVar("", &other), ErrEmptyName)
	assert.ErrorIs(t, s.params.ScalarVar("x", nil), ErrNilAccessor)
	assert.ErrorIs(t, s.params.Register("y", KindInvalid, func() Value { return Value{} }, func(Value) {}), ErrUnknownKind)
	assert.Equal(t, 5, s.params.Len())
}

func TestSet_GetSetThroughAccessors(t *testing.T) {
	s := newSample(t)

	require.NoError(t, s.params.Set("position", Vector3Value(Vec3{X: 1, Y: 2, Z: 3})))
	require.NoError(t, s.params.Set("speed", ScalarValue(4.5)))
	require.NoError(t, s.params.Set("label", StringValue("alpha")))

	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, s.position)
	assert.Equal(t, 4.5, s.speed)
	assert.Equal(t, "alpha", s.label)

	s.visible = true
	v, err := s.params.Get("visible")
	require.NoError(t, err)
	assert.Equal(t, BoolValue(true), v)

	_, err = s.params.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSet_KindMismatch(t *testing.T) {
	s := newSample(t)

	err := s.params.Set("position", ScalarValue(1))
	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, KindVector3, mismatch.Expected)
	assert.Equal(t, KindScalar, mismatch.Received)
	assert.Equal(t, "type mismatch: expected vec3, received scalar", err.Error())
	assert.Equal(t, Vec3{}, s.position)
}

func TestSet_AcceptStopsOnError(t *testing.T) {
	s := newSample(t)
	boom := errors.New("boom")

	visited := 0
	err := s.params.Accept(VisitorFunc(func(d Descriptor, _ Accessor) error {
		visited++
		if d.Name == "rotation" {
			return boom
		}
		return nil
	}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, visited)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindScalar, KindBoolean, KindString, KindVector3, KindQuaternion} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("matrix")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestQuat_AxisAngle(t *testing.T) {
	q := AxisAngle(Vec3{Y: 1}, 0)
	assert.Equal(t, IdentityQuat(), q)

	half := AxisAngle(Vec3{Y: 2}, 1)
	full := half.Mul(half)
	expected := AxisAngle(Vec3{Y: 1}, 2)
	assert.InDelta(t, expected.Y, full.Y, 1e-9)
	assert.InDelta(t, expected.W, full.W, 1e-9)
}
