package websocket

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/transport"
)

var _ transport.Conn = (*Conn)(nil)

// Conn wraps an upgraded WebSocket connection.
type Conn struct {
	id     string
	conn   *websocket.Conn
	config Config
	closed atomic.Bool

	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

func newConn(conn *websocket.Conn, config Config) *Conn {
	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(config.MaxMessageSize)
	}
	return &Conn{
		id:     uuid.New().String(),
		conn:   conn,
		config: config,
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) BytesSent() uint64     { return c.bytesSent.Load() }
func (c *Conn) BytesReceived() uint64 { return c.bytesReceived.Load() }

// Send writes data as one WebSocket message.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return transport.ErrConnectionClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}

	messageType := websocket.BinaryMessage
	if c.config.TextFrames {
		messageType = websocket.TextMessage
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}

	c.bytesSent.Add(uint64(len(data)))
	return nil
}

// receive reads the next text or binary message.
func (c *Conn) receive() ([]byte, error) {
	for {
		if c.config.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read message")
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		c.bytesReceived.Add(uint64(len(data)))
		return data, nil
	}
}

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}
