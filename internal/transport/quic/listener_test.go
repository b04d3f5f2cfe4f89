package quic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/transport"
)

type recordingHandler struct {
	reject   error
	conns    chan transport.Conn
	received chan []byte
	gone     chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		conns:    make(chan transport.Conn, 4),
		received: make(chan []byte, 16),
		gone:     make(chan string, 4),
	}
}

func (h *recordingHandler) Connected(conn transport.Conn) error {
	if h.reject != nil {
		return h.reject
	}
	h.conns <- conn
	return nil
}

func (h *recordingHandler) Received(_ transport.Conn, data []byte) { h.received <- data }
func (h *recordingHandler) Disconnected(conn transport.Conn)       { h.gone <- conn.ID() }

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
	}
	var zero T
	return zero
}

func startListener(t *testing.T, config Config, h transport.Handler) *Listener {
	t.Helper()
	tlsConfig, err := GenerateSelfSignedTLS()
	require.NoError(t, err)

	l, err := Listen("127.0.0.1:0", tlsConfig, config, h, log.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = l.Close()
		<-done
	})
	return l
}

func dial(t *testing.T, l *Listener, config Config) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, l.Addr().String(), nil, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListener_RoundTrip(t *testing.T) {
	h := newRecordingHandler()
	l := startListener(t, DefaultConfig(), h)
	client := dial(t, l, DefaultConfig())

	conn := wait(t, h.conns)
	assert.NotEmpty(t, conn.ID())

	require.NoError(t, client.Send([]byte(`{"message":"SNAPSHOT"}`)))
	assert.Equal(t, `{"message":"SNAPSHOT"}`, string(wait(t, h.received)))

	require.NoError(t, conn.Send([]byte{9, 8, 7}))
	data, err := client.Receive()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, data)

	require.NoError(t, client.Close())
	assert.Equal(t, conn.ID(), wait(t, h.gone))
	assert.ErrorIs(t, conn.Send([]byte("late")), transport.ErrConnectionClosed)
}

func TestListener_OversizedFrameDisconnects(t *testing.T) {
	h := newRecordingHandler()
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 32
	l := startListener(t, cfg, h)

	// the client side allows larger frames so the server has to enforce it
	client := dial(t, l, DefaultConfig())
	conn := wait(t, h.conns)

	require.NoError(t, client.Send(make([]byte, 64)))
	assert.Equal(t, conn.ID(), wait(t, h.gone))
	assert.Empty(t, h.received)
}

func TestListener_SendRejectsOversized(t *testing.T) {
	h := newRecordingHandler()
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 8
	l := startListener(t, cfg, h)

	_ = dial(t, l, DefaultConfig())
	conn := wait(t, h.conns)

	assert.ErrorIs(t, conn.Send(make([]byte, 9)), ErrFrameTooLarge)
}

func TestListener_Rejected(t *testing.T) {
	h := newRecordingHandler()
	h.reject = errors.New("server full")
	l := startListener(t, DefaultConfig(), h)

	client := dial(t, l, DefaultConfig())
	_, err := client.Receive()
	assert.Error(t, err)

	select {
	case <-h.gone:
		t.Fatal("rejected connection must not report a disconnect")
	default:
	}
}

func TestListener_CloseStopsServe(t *testing.T) {
	tlsConfig, err := GenerateSelfSignedTLS()
	require.NoError(t, err)
	l, err := Listen("127.0.0.1:0", tlsConfig, DefaultConfig(), newRecordingHandler(), log.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Serve(context.Background()) }()

	require.NoError(t, l.Close())
	assert.ErrorIs(t, wait(t, done), ErrListenerClosed)
	assert.NoError(t, l.Close())
}

func TestListen_RequiresTLS(t *testing.T) {
	_, err := Listen("127.0.0.1:0", nil, DefaultConfig(), newRecordingHandler(), log.NewNop())
	assert.Error(t, err)
}
