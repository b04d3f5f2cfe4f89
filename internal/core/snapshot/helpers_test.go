package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// statsScript carries one parameter of every kind.
type statsScript struct {
	params  *parameter.Set
	health  float64
	alive   bool
	label   string
	heading parameter.Vec3
	aim     parameter.Quat
}

func newStatsScript() *statsScript {
	s := &statsScript{params: parameter.NewSet(), aim: parameter.IdentityQuat()}
	parameter.MustRegister(s.params.ScalarVar("health", &s.health))
	parameter.MustRegister(s.params.BooleanVar("alive", &s.alive))
	parameter.MustRegister(s.params.StringVar("label", &s.label))
	parameter.MustRegister(s.params.Vector3Var("heading", &s.heading))
	parameter.MustRegister(s.params.QuaternionVar("aim", &s.aim))
	return s
}

func (s *statsScript) Parameters() *parameter.Set { return s.params }
func (s *statsScript) OnUpdate(scene.UpdateArgs)  {}
func (s *statsScript) Destroy()                   {}

// emptyScript has no replicated parameters.
type emptyScript struct{}

func (emptyScript) Parameters() *parameter.Set { return parameter.NewSet() }
func (emptyScript) OnUpdate(scene.UpdateArgs)  {}
func (emptyScript) Destroy()                   {}

func encodings() map[Encoding]struct {
	writer func() Writer
	reader func() Reader
} {
	return map[Encoding]struct {
		writer func() Writer
		reader func() Reader
	}{
		EncodingJSON: {
			writer: func() Writer { return NewJSONWriter(3, 0) },
			reader: func() Reader { return NewJSONReader() },
		},
		EncodingBinary: {
			writer: func() Writer { return NewBinaryWriter(3, 0) },
			reader: func() Reader { return NewBinaryReader(3) },
		},
	}
}

func mustEntity(t *testing.T, s *scene.Scene, name string, role scene.Role) *scene.Entity {
	t.Helper()
	e, err := s.CreateEntity(name, role)
	require.NoError(t, err)
	return e
}

func writeScene(t *testing.T, w Writer, s *scene.Scene, calls ...RemoteCall) ([]byte, error) {
	t.Helper()
	require.NoError(t, w.BeginMessage(MessageStateData))
	for _, e := range s.Entities() {
		require.NoError(t, w.WriteEntity(e))
	}
	for _, c := range calls {
		require.NoError(t, w.QueueRemoteCall(c))
	}
	return w.EndMessage()
}
