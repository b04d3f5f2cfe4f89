package quic

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/scenesync/internal/transport"
)

var _ transport.Conn = (*Conn)(nil)

// Conn is a QUIC connection carrying frames on its first bidirectional stream.
type Conn struct {
	id      string
	conn    *quic.Conn
	stream  *quic.Stream
	maxSize int
	closed  atomic.Bool

	writeMu sync.Mutex
}

func newConn(conn *quic.Conn, stream *quic.Stream, maxSize int) *Conn {
	return &Conn{
		id:      uuid.New().String(),
		conn:    conn,
		stream:  stream,
		maxSize: maxSize,
	}
}

func (c *Conn) ID() string           { return c.id }
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return transport.ErrConnectionClosed
	}
	if c.maxSize > 0 && len(data) > c.maxSize {
		return errors.Wrapf(ErrFrameTooLarge, "%d > %d bytes", len(data), c.maxSize)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeFrame(c.stream, data)
}

func (c *Conn) receive() ([]byte, error) {
	return readFrame(c.stream, c.maxSize)
}

func (c *Conn) Close() error {
	return c.closeWithError(0, "closed")
}

func (c *Conn) closeWithError(code quic.ApplicationErrorCode, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.CloseWithError(code, reason)
}
