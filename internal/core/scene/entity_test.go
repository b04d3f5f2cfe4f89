package scene

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/parameter"
)

func mustCreate(t *testing.T, s *Scene, name string) *Entity {
	t.Helper()
	e, err := s.CreateEntity(name, RoleNone)
	require.NoError(t, err)
	return e
}

func TestEntity_DefaultParameters(t *testing.T) {
	e := mustCreate(t, New(), "e")

	assert.Equal(t, []parameter.Descriptor{
		{Name: "position", Kind: parameter.KindVector3},
		{Name: "rotation", Kind: parameter.KindQuaternion},
	}, e.Parameters().Descriptors())
	assert.Equal(t, parameter.IdentityQuat(), e.Rotation())

	e.SetPosition(1, 2, 3)
	v, err := e.Parameters().Get("position")
	require.NoError(t, err)
	assert.Equal(t, parameter.Vec3{X: 1, Y: 2, Z: 3}, v.Vec)
}

func TestEntity_AddChildSelfIsNoop(t *testing.T) {
	e := mustCreate(t, New(), "e")

	require.NoError(t, e.AddChild(e))
	require.NoError(t, e.AddChild(nil))
	assert.Equal(t, 0, e.ChildCount())
	assert.Nil(t, e.Parent())
}

func TestEntity_Reparent(t *testing.T) {
	s := New()
	a := mustCreate(t, s, "a")
	b := mustCreate(t, s, "b")
	x := mustCreate(t, s, "x")

	require.NoError(t, a.AddChild(x))
	assert.Same(t, a, x.Parent())

	require.NoError(t, b.AddChild(x))
	assert.Same(t, b, x.Parent())
	assert.Equal(t, 0, a.ChildCount())
	assert.Equal(t, []*Entity{x}, b.Children())
}

func TestEntity_AddChildRejectsCyclesAndForeignEntities(t *testing.T) {
	s := New()
	a := mustCreate(t, s, "a")
	b := mustCreate(t, s, "b")
	require.NoError(t, a.AddChild(b))

	assert.ErrorIs(t, b.AddChild(a), ErrHierarchyCycle)

	foreign := mustCreate(t, New(), "foreign")
	assert.ErrorIs(t, a.AddChild(foreign), ErrForeignEntity)
}

func TestEntity_RemoveChildIgnoresStrangers(t *testing.T) {
	s := New()
	a := mustCreate(t, s, "a")
	b := mustCreate(t, s, "b")
	x := mustCreate(t, s, "x")
	require.NoError(t, a.AddChild(x))

	b.RemoveChild(x)
	assert.Same(t, a, x.Parent())

	a.RemoveChild(x)
	assert.Nil(t, x.Parent())
	assert.Equal(t, 0, a.ChildCount())
}

// TestEntity_DestroyRecursive tests that descendants, scripts and parent links are torn down
func TestEntity_DestroyRecursive(t *testing.T) {
	s := New()
	var calls []string
	parent := mustCreate(t, s, "parent")
	e := mustCreate(t, s, "e")
	c1 := mustCreate(t, s, "c1")
	c2 := mustCreate(t, s, "c2")
	g := mustCreate(t, s, "g")

	require.NoError(t, parent.AddChild(e))
	require.NoError(t, e.AddChild(c1))
	require.NoError(t, e.AddChild(c2))
	require.NoError(t, c1.AddChild(g))

	script := newRecordingScript("s", &calls)
	childScript := newRecordingScript("cs", &calls)
	require.NoError(t, e.AddScript("s", script))
	require.NoError(t, g.AddScript("cs", childScript))

	require.NoError(t, e.Destroy())

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 0, parent.ChildCount())
	assert.True(t, script.destroyed)
	assert.True(t, childScript.destroyed)
	for _, gone := range []*Entity{e, c1, c2, g} {
		assert.Nil(t, gone.Scene(), gone.Name())
		_, ok := s.FindByName(gone.Name())
		assert.False(t, ok, gone.Name())
	}

	require.NoError(t, e.Destroy())
}

func TestEntity_Scripts(t *testing.T) {
	e := mustCreate(t, New(), "e")
	var calls []string

	assert.ErrorIs(t, e.AddScript("s", nil), ErrNilScript)

	script := newRecordingScript("s", &calls)
	require.NoError(t, e.AddScript("s", script))
	assert.ErrorIs(t, e.AddScript("s", newRecordingScript("dup", &calls)), ErrScriptExists)

	got, ok := e.Script("s")
	require.True(t, ok)
	assert.Same(t, script, got)

	_, ok = e.Script("missing")
	assert.False(t, ok)
}

func TestEntity_CreateScripts(t *testing.T) {
	registry := NewScriptRegistry()
	var calls []string
	require.NoError(t, registry.Register("recorder", func(owner *Entity) (Script, error) {
		return newRecordingScript(owner.Name(), &calls), nil
	}))
	require.NoError(t, registry.Register("broken", func(*Entity) (Script, error) {
		return nil, errors.New("no")
	}))
	assert.ErrorIs(t, registry.Register("recorder", func(*Entity) (Script, error) { return nil, nil }), ErrScriptRegistered)
	assert.ErrorIs(t, registry.Register("", func(*Entity) (Script, error) { return nil, nil }), ErrEmptyScriptName)
	assert.ErrorIs(t, registry.Register("ghost", nil), ErrNilScriptFactory)
	assert.Equal(t, []string{"broken", "recorder"}, registry.Names())

	e := mustCreate(t, New(), "e")
	require.NoError(t, e.CreateScripts(registry, []string{"recorder"}))
	e.OnUpdate(UpdateArgs{})
	assert.Equal(t, []string{"e"}, calls)

	assert.ErrorIs(t, e.CreateScripts(registry, []string{"nope"}), ErrUnknownScript)
	assert.Error(t, e.CreateScripts(registry, []string{"broken"}))
}

func TestParseRole(t *testing.T) {
	for _, r := range []Role{RoleNone, RoleLocal, RoleRemote} {
		parsed, err := ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseRole("observer")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
