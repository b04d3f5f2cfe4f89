package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/scenesync/internal/core/snapshot"
	"github.com/zeusync/scenesync/internal/transport/quic"
)

// frameConn carries whole snapshot frames in both directions.
type frameConn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

type wsConn struct {
	conn *websocket.Conn
	text bool

	writeMu sync.Mutex
}

func dialWebSocket(ctx context.Context, config Config) (*wsConn, error) {
	u := url.URL{Scheme: "ws", Host: config.ServerAddr, Path: config.Path}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = config.ConnectTimeout
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket handshake failed with status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "failed to dial websocket")
	}
	if config.MaxMessageSize > 0 {
		conn.SetReadLimit(int64(config.MaxMessageSize))
	}
	return &wsConn{conn: conn, text: config.Encoding == snapshot.EncodingJSON}, nil
}

func (c *wsConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	messageType := websocket.BinaryMessage
	if c.text {
		messageType = websocket.TextMessage
	}
	return errors.Wrap(c.conn.WriteMessage(messageType, data), "failed to write message")
}

func (c *wsConn) Receive() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read message")
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func dial(ctx context.Context, config Config) (frameConn, error) {
	switch config.Transport {
	case TransportWebSocket:
		conn, err := dialWebSocket(ctx, config)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case TransportQUIC:
		qc := quic.DefaultConfig()
		if config.MaxMessageSize > 0 {
			qc.MaxMessageSize = config.MaxMessageSize
		}
		conn, err := quic.Dial(ctx, config.ServerAddr, config.TLSConfig, qc)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, config.Transport)
	}
}
