package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/events/bus"
	"github.com/zeusync/scenesync/internal/core/parameter"
)

type recordingScript struct {
	params    *parameter.Set
	name      string
	log       *[]string
	destroyed bool
	health    float64
}

func newRecordingScript(name string, log *[]string) *recordingScript {
	s := &recordingScript{params: parameter.NewSet(), name: name, log: log}
	parameter.MustRegister(s.params.ScalarVar("health", &s.health))
	return s
}

func (s *recordingScript) Parameters() *parameter.Set { return s.params }
func (s *recordingScript) OnUpdate(UpdateArgs)        { *s.log = append(*s.log, s.name) }
func (s *recordingScript) Destroy()                   { s.destroyed = true }

func TestScene_RootEntity(t *testing.T) {
	s := New()

	root := s.Root()
	require.NotNil(t, root)
	assert.Equal(t, RootID, root.ID())
	assert.Equal(t, RootName, root.Name())
	assert.Equal(t, 1, s.Len())

	byName, ok := s.FindByName(RootName)
	require.True(t, ok)
	assert.Same(t, root, byName)

	assert.ErrorIs(t, root.Destroy(), ErrRootEntity)
	assert.ErrorIs(t, s.RemoveEntity(root), ErrRootEntity)
	assert.Equal(t, 1, s.Len())
}

func TestScene_CreateEntity(t *testing.T) {
	s := New()

	e, err := s.CreateEntity("soldier", RoleLocal)
	require.NoError(t, err)
	assert.Equal(t, ID(1), e.ID())
	assert.Equal(t, RoleLocal, e.Role())
	assert.True(t, e.Enabled())
	assert.Same(t, s, e.Scene())

	dup, err := s.CreateEntity("soldier", RoleNone)
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Nil(t, dup)
	assert.Equal(t, 2, s.Len())

	empty, err := s.CreateEntity("", RoleNone)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Nil(t, empty)

	byID, ok := s.FindByID(e.ID())
	require.True(t, ok)
	byName, ok := s.FindByName("soldier")
	require.True(t, ok)
	assert.Same(t, byID, byName)
}

func TestScene_IdsAreNeverReused(t *testing.T) {
	s := New()

	a, err := s.CreateEntity("a", RoleNone)
	require.NoError(t, err)
	require.NoError(t, a.Destroy())

	b, err := s.CreateEntity("a", RoleNone)
	require.NoError(t, err)
	assert.Equal(t, ID(2), b.ID())
}

func TestScene_RemoveForeignEntity(t *testing.T) {
	s1 := New()
	s2 := New()

	e, err := s1.CreateEntity("x", RoleNone)
	require.NoError(t, err)

	assert.ErrorIs(t, s2.RemoveEntity(e), ErrForeignEntity)
	assert.Equal(t, 2, s1.Len())

	require.NoError(t, s1.RemoveEntity(e))
	assert.Nil(t, e.Scene())
	_, ok := s1.FindByID(e.ID())
	assert.False(t, ok)
	_, ok = s1.FindByName("x")
	assert.False(t, ok)
}

// TestScene_OnUpdateOrder tests that enabled entities update in id order and scripts in attachment order
func TestScene_OnUpdateOrder(t *testing.T) {
	s := New()
	var calls []string

	b, err := s.CreateEntity("b", RoleNone)
	require.NoError(t, err)
	a, err := s.CreateEntity("a", RoleNone)
	require.NoError(t, err)

	require.NoError(t, b.AddScript("second", newRecordingScript("b.second", &calls)))
	require.NoError(t, b.AddScript("first", newRecordingScript("b.first", &calls)))
	require.NoError(t, a.AddScript("only", newRecordingScript("a.only", &calls)))

	s.OnUpdate(UpdateArgs{DeltaTime: 0.016})
	assert.Equal(t, []string{"b.second", "b.first", "a.only"}, calls)
}

func TestScene_OnUpdateSkipsDisabledSubtrees(t *testing.T) {
	s := New()
	var calls []string

	parent, err := s.CreateEntity("parent", RoleNone)
	require.NoError(t, err)
	child, err := s.CreateEntity("child", RoleNone)
	require.NoError(t, err)
	other, err := s.CreateEntity("other", RoleNone)
	require.NoError(t, err)
	require.NoError(t, parent.AddChild(child))

	require.NoError(t, parent.AddScript("s", newRecordingScript("parent", &calls)))
	require.NoError(t, child.AddScript("s", newRecordingScript("child", &calls)))
	require.NoError(t, other.AddScript("s", newRecordingScript("other", &calls)))

	parent.SetEnabled(false)
	s.OnUpdate(UpdateArgs{})
	assert.Equal(t, []string{"other"}, calls)
}

func TestScene_PublishesLifecycleEvents(t *testing.T) {
	b := bus.New()
	var created, removed []uint64
	_, err := b.Subscribe(bus.EntityCreated, func(e bus.Event) error {
		created = append(created, e.Metadata()["entity_id"].(uint64))
		return nil
	})
	require.NoError(t, err)
	_, err = b.Subscribe(bus.EntityRemoved, func(e bus.Event) error {
		removed = append(removed, e.Metadata()["entity_id"].(uint64))
		return nil
	})
	require.NoError(t, err)

	s := New(WithEventBus(b))
	e, err := s.CreateEntity("x", RoleLocal)
	require.NoError(t, err)
	require.NoError(t, e.Destroy())

	assert.Equal(t, []uint64{1}, created)
	assert.Equal(t, []uint64{1}, removed)
}

func TestScene_EntitiesInIdOrder(t *testing.T) {
	s := New()
	for _, name := range []string{"c", "a", "b"} {
		_, err := s.CreateEntity(name, RoleNone)
		require.NoError(t, err)
	}
	mid, _ := s.FindByName("a")
	require.NoError(t, mid.Destroy())

	var names []string
	s.Each(func(e *Entity) bool {
		names = append(names, e.Name())
		return true
	})
	assert.Equal(t, []string{RootName, "c", "b"}, names)
	assert.Len(t, s.Entities(), 3)
}
