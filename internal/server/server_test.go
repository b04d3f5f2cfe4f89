package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/events/bus"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/snapshot"
	"github.com/zeusync/scenesync/internal/transport"
	"github.com/zeusync/scenesync/internal/transport/quic"
)

const cratePrefabs = `
- name: crate
  scripts: [health]
  collision:
    shape: box
    halfExtents: {x: 1, y: 1, z: 1}
  rigidBody:
    type: dynamic
    mass: 10
`

type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string           { return c.id }
func (c *fakeConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000} }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrConnectionClosed
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) messages(t *testing.T) []*snapshot.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*snapshot.Message, 0, len(c.sent))
	for _, data := range c.sent {
		m, err := snapshot.DecodeJSON(data)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func testConfig(t *testing.T) Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefabs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cratePrefabs), 0o600))

	cfg := DefaultServerConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.TickRate = 100
	cfg.PrefabFile = path
	cfg.Spawn = []Spawn{{
		Prefab:   "crate",
		Name:     "crate_a",
		Role:     scene.RoleLocal,
		Position: parameter.Vec3{Y: 10},
	}}
	return cfg
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s, err := NewServer(cfg, WithLogger(log.NewNop()))
	require.NoError(t, err)
	return s
}

func findRecord(m *snapshot.Message, id scene.ID) (snapshot.EntityRecord, bool) {
	for _, rec := range m.Entities {
		if rec.ID == uint64(id) {
			return rec, true
		}
	}
	return snapshot.EntityRecord{}, false
}

func paramValue(rec snapshot.EntityRecord, name string) (parameter.Value, bool) {
	for _, p := range rec.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return parameter.Value{}, false
}

func TestNewServer_SpawnsPrefabs(t *testing.T) {
	s := newTestServer(t, testConfig(t))

	crate, ok := s.Scene().FindByName("crate_a")
	require.True(t, ok)
	assert.Equal(t, scene.RoleLocal, crate.Role())
	assert.Equal(t, parameter.Vec3{Y: 10}, crate.Position())

	_, hasHealth := crate.Script("health")
	assert.True(t, hasHealth)
	_, hasBody := s.World().Body(crate.ID())
	assert.True(t, hasBody)
	assert.Equal(t, 1, s.Prefabs().Len())
}

func TestNewServer_Errors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Spawn[0].Prefab = "barrel"
	_, err := NewServer(cfg, WithLogger(log.NewNop()))
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.PrefabFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewServer(cfg, WithLogger(log.NewNop()))
	assert.Error(t, err)

	cfg = DefaultServerConfig()
	cfg.TickRate = 0
	_, err = NewServer(cfg, WithLogger(log.NewNop()))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestServer_TickSimulatesAndReplicates(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	conn := newFakeConn("a")
	require.NoError(t, s.Connected(conn))
	assert.Equal(t, 1, s.Network().Len())

	require.NoError(t, s.Tick(context.Background(), 100*time.Millisecond))
	assert.Equal(t, uint64(1), s.Frame())

	crate, _ := s.Scene().FindByName("crate_a")
	assert.Less(t, crate.Position().Y, 10.0, "gravity should pull the crate down")

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	rec, ok := findRecord(msgs[0], crate.ID())
	require.True(t, ok)
	pos, ok := paramValue(rec, "position")
	require.True(t, ok)
	assert.Equal(t, crate.Position(), pos.Vec)
	require.Len(t, rec.Scripts, 1)
	assert.Equal(t, "health", rec.Scripts[0].Name)
}

func TestServer_SystemsPipeline(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	assert.Equal(t, []string{"scripts", "physics"}, s.Systems().Order())

	require.NoError(t, s.Systems().SetEnabled("physics", false))
	crate, _ := s.Scene().FindByName("crate_a")
	before := crate.Position()

	require.NoError(t, s.Tick(context.Background(), 100*time.Millisecond))
	assert.Equal(t, before, crate.Position())

	m, ok := s.Systems().Metrics("scripts")
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.ExecutionCount)
}

func TestServer_InboundAppliedOnTick(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	puppet, err := s.Scene().CreateEntity("puppet", scene.RoleRemote)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		calls []string
	)
	_, err = s.Events().Subscribe(bus.RemoteCallReceived, func(ev bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, fmt.Sprintf("%s@%v", ev.Data().(snapshot.RemoteCall).Name, ev.Metadata()["client_id"]))
		return nil
	})
	require.NoError(t, err)

	conn := newFakeConn("a")
	require.NoError(t, s.Connected(conn))

	frame := fmt.Sprintf(`{"message":"STATE_DATA","version":1,"entities":[
		{"id":%d,"data":[{"name":"position","type":"vec3","x":1,"y":2,"z":3}]}],
		"rpc":[{"name":"jump","args":{"height":2}}]}`, puppet.ID())
	s.Received(conn, []byte(frame))
	s.Received(conn, []byte("not json"))

	assert.Equal(t, parameter.Vec3{}, puppet.Position(), "frames wait for the tick")

	require.NoError(t, s.Tick(context.Background(), 10*time.Millisecond))
	assert.Equal(t, parameter.Vec3{X: 1, Y: 2, Z: 3}, puppet.Position())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"jump@1000"}, calls)
}

func TestServer_InboundKindMismatchIsDropped(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	puppet, err := s.Scene().CreateEntity("puppet", scene.RoleRemote)
	require.NoError(t, err)

	conn := newFakeConn("a")
	require.NoError(t, s.Connected(conn))

	s.Received(conn, []byte(fmt.Sprintf(`{"message":"STATE_DATA","version":1,"entities":[
		{"id":%d,"data":[{"name":"position","type":"scalar","value":4}]}],"rpc":[]}`, puppet.ID())))
	require.NoError(t, s.Tick(context.Background(), 10*time.Millisecond))
	assert.Equal(t, parameter.Vec3{}, puppet.Position())
}

func TestServer_InboundQueueOverflowDrops(t *testing.T) {
	cfg := testConfig(t)
	cfg.InboundQueueSize = 1
	s := newTestServer(t, cfg)

	conn := newFakeConn("a")
	require.NoError(t, s.Connected(conn))
	s.Received(conn, []byte("{}"))
	s.Received(conn, []byte("{}"))

	assert.Len(t, s.drainInbound(), 1)
}

func TestServer_UnknownConnectionIgnored(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	stranger := newFakeConn("stranger")

	s.Received(stranger, []byte("{}"))
	s.Disconnected(stranger)
	assert.Empty(t, s.drainInbound())
}

func TestServer_DisconnectRemovesClient(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, s.Connected(a))
	require.NoError(t, s.Connected(b))
	assert.Equal(t, 2, s.Sessions())

	s.Disconnected(a)
	assert.Equal(t, 1, s.Sessions())
	assert.Equal(t, 1, s.Network().Len())

	require.NoError(t, s.Tick(context.Background(), 10*time.Millisecond))
	assert.Empty(t, a.messages(t))
	assert.Len(t, b.messages(t), 1)
}

func TestServer_BroadcastRemoteCall(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	conn := newFakeConn("a")
	require.NoError(t, s.Connected(conn))

	require.NoError(t, s.Network().BroadcastRemoteCall("explode", map[string]any{"radius": 3.0}))
	require.NoError(t, s.Tick(context.Background(), 10*time.Millisecond))

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Calls, 1)
	assert.Equal(t, "explode", msgs[0].Calls[0].Name)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewServer(testConfig(t), WithLogger(log.NewNop()), WithRegisterer(reg))
	require.NoError(t, err)
	require.NoError(t, s.Connected(newFakeConn("a")))
	require.NoError(t, s.Tick(context.Background(), 10*time.Millisecond))

	handler := s.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, healthResponse{Status: "ok", Clients: 1, Entities: 2, Frame: 1}, health)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "replication_connected_clients 1")
	assert.Contains(t, body, `replication_snapshots_total{encoding="json"} 1`)
}

func startServer(t *testing.T, cfg Config) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	s := newTestServer(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}
	return s, cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_RunOverWebSocket(t *testing.T) {
	s, cancel, done := startServer(t, testConfig(t))

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", s.Addr()), nil)
	require.NoError(t, err)
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)

	m, err := snapshot.DecodeJSON(data)
	require.NoError(t, err)
	crate, _ := s.Scene().FindByName("crate_a")
	_, ok := findRecord(m, crate.ID())
	assert.True(t, ok)

	cancel()
	waitStopped(t, done)

	// the server closed the socket on the way out
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err = ws.ReadMessage(); err != nil {
			break
		}
	}
	assert.Error(t, err)

	assert.ErrorIs(t, s.Run(context.Background()), ErrServerClosed)
}

func TestServer_RunOverQUIC(t *testing.T) {
	cfg := testConfig(t)
	cfg.QUICAddr = "127.0.0.1:0"
	cfg.Encoding = snapshot.EncodingBinary
	s, cancel, done := startServer(t, cfg)
	defer func() {
		cancel()
		waitStopped(t, done)
	}()
	require.NotNil(t, s.QUICAddr())

	ctx, cancelDial := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDial()
	client, err := quic.Dial(ctx, s.QUICAddr().String(), nil, quic.DefaultConfig())
	require.NoError(t, err)
	defer client.Close()

	data, err := client.Receive()
	require.NoError(t, err)
	m, err := snapshot.DecodeBinary(data, cfg.ProtocolVersion)
	require.NoError(t, err)
	assert.Equal(t, snapshot.MessageStateData, m.Kind)
	assert.NotEmpty(t, m.Entities)
}

func TestServer_RunTwice(t *testing.T) {
	s, cancel, done := startServer(t, testConfig(t))
	assert.ErrorIs(t, s.Run(context.Background()), ErrServerAlreadyRunning)
	cancel()
	waitStopped(t, done)
}

func TestServer_ListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.ListenAddr = ln.Addr().String()
	s := newTestServer(t, cfg)
	assert.ErrorIs(t, s.Run(context.Background()), ErrListenerFailed)
}
