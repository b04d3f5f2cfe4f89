package quic

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/scenesync/internal/transport"
)

// Client is the dialing side of a Listener connection.
type Client struct {
	*Conn
}

// Dial connects to addr, opens the frame stream and sends the empty hello
// frame. A nil tlsConfig skips certificate verification.
func Dial(ctx context.Context, addr string, tlsConfig *tls.Config, config Config) (*Client, error) {
	if tlsConfig == nil {
		tlsConfig = insecureClientTLS()
	} else {
		tlsConfig = tlsConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			tlsConfig.ServerName = host
		} else {
			tlsConfig.ServerName = addr
		}
	}

	qc, err := quic.DialAddr(ctx, addr, tlsConfig, config.quicConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial QUIC connection")
	}

	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(codeProtocolError, "no stream")
		return nil, errors.Wrap(err, "failed to open stream")
	}

	c := &Client{Conn: newConn(qc, stream, config.MaxMessageSize)}
	if err = writeFrame(stream, nil); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Receive blocks for the next frame from the server.
func (c *Client) Receive() ([]byte, error) {
	if c.closed.Load() {
		return nil, transport.ErrConnectionClosed
	}
	return c.receive()
}
