package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/transport"
)

type recordingHandler struct {
	mu       sync.Mutex
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
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reject != nil {
		return h.reject
	}
	h.conns <- conn
	return nil
}

func (h *recordingHandler) Received(_ transport.Conn, data []byte) {
	h.received <- data
}

func (h *recordingHandler) Disconnected(conn transport.Conn) {
	h.gone <- conn.ID()
}

func startServer(t *testing.T, cfg Config, h transport.Handler) string {
	t.Helper()
	srv := httptest.NewServer(NewHandler(cfg, h, log.NewNop()))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
	}
	var zero T
	return zero
}

func TestHandler_RoundTrip(t *testing.T) {
	h := newRecordingHandler()
	url := startServer(t, DefaultConfig(), h)

	client := dial(t, url)
	conn := wait(t, h.conns)
	assert.NotEmpty(t, conn.ID())
	assert.NotNil(t, conn.RemoteAddr())

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, wait(t, h.received))

	require.NoError(t, conn.Send([]byte("snapshot")))
	mt, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, "snapshot", string(data))

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Equal(t, conn.ID(), wait(t, h.gone))

	assert.ErrorIs(t, conn.Send([]byte("late")), transport.ErrConnectionClosed)
}

func TestHandler_TextFrames(t *testing.T) {
	h := newRecordingHandler()
	cfg := DefaultConfig()
	cfg.TextFrames = true
	url := startServer(t, cfg, h)

	client := dial(t, url)
	conn := wait(t, h.conns)

	require.NoError(t, conn.Send([]byte(`{"message":"RPC"}`)))
	mt, _, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
}

func TestHandler_Rejected(t *testing.T) {
	h := newRecordingHandler()
	h.reject = errors.New("server full")
	url := startServer(t, DefaultConfig(), h)

	client := dial(t, url)
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	select {
	case <-h.gone:
		t.Fatal("rejected connection must not report a disconnect")
	default:
	}
}

func TestHandler_PlainHTTPRejected(t *testing.T) {
	h := newRecordingHandler()
	srv := httptest.NewServer(NewHandler(DefaultConfig(), h, log.NewNop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
