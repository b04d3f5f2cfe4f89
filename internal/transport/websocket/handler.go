package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/transport"
)

type Config struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	// TextFrames sends outbound messages as text frames, for the JSON encoding.
	TextFrames bool
}

func DefaultConfig() Config {
	return Config{
		ReadTimeout:    time.Minute,
		WriteTimeout:   5 * time.Second,
		MaxMessageSize: 16 * 1024,
	}
}

// Handler upgrades HTTP requests and pumps inbound messages into a
// transport.Handler until the peer goes away.
type Handler struct {
	config   Config
	upgrader websocket.Upgrader
	handler  transport.Handler
	logger   log.Log
}

var _ http.Handler = (*Handler)(nil)

func NewHandler(config Config, handler transport.Handler, logger log.Log) *Handler {
	if logger == nil {
		logger = log.Provide()
	}
	return &Handler{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		handler: handler,
		logger:  logger.With(log.String("transport", "websocket")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		h.logger.Warn("WebSocket upgrade failed",
			log.String("remote_addr", r.RemoteAddr),
			log.Error(err))
		return
	}

	conn := newConn(ws, h.config)
	logger := h.logger.With(log.String("connection_id", conn.ID()))

	if err = h.handler.Connected(conn); err != nil {
		logger.Warn("Connection rejected", log.Error(err))
		_ = conn.Close()
		return
	}
	logger.Info("WebSocket connection established",
		log.String("remote_addr", r.RemoteAddr))

	defer func() {
		_ = conn.Close()
		h.handler.Disconnected(conn)
		logger.Info("WebSocket connection closed",
			log.Uint64("bytes_sent", conn.BytesSent()),
			log.Uint64("bytes_received", conn.BytesReceived()))
	}()

	for {
		data, err := conn.receive()
		if err != nil {
			if !websocket.IsCloseError(errors.Cause(err), websocket.CloseNormalClosure, websocket.CloseGoingAway) && !conn.closed.Load() {
				logger.Debug("WebSocket read ended", log.Error(err))
			}
			return
		}
		h.handler.Received(conn, data)
	}
}
