// Package transport defines the contract between network listeners and the
// server that owns the scene.
package transport

import (
	"net"

	"github.com/pkg/errors"
)

var ErrConnectionClosed = errors.New("connection is closed")

// Conn is one accepted client connection. Send may be called from any
// goroutine.
type Conn interface {
	ID() string
	RemoteAddr() net.Addr
	Send(data []byte) error
	Close() error
}

// Handler receives connection lifecycle and inbound frames. Connected is
// called once before any Received; Disconnected once after the last.
type Handler interface {
	Connected(conn Conn) error
	Received(conn Conn, data []byte)
	Disconnected(conn Conn)
}
