package quic

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/transport"
)

const (
	codeNormal        quic.ApplicationErrorCode = 0
	codeRejected      quic.ApplicationErrorCode = 1
	codeProtocolError quic.ApplicationErrorCode = 2
)

var ErrListenerClosed = errors.New("listener is closed")

type Config struct {
	MaxMessageSize   int
	IdleTimeout      time.Duration
	KeepAlivePeriod  time.Duration
	HandshakeTimeout time.Duration
	// StreamTimeout bounds the wait for the client's first stream.
	StreamTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxMessageSize:   16 * 1024,
		IdleTimeout:      30 * time.Second,
		KeepAlivePeriod:  15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		StreamTimeout:    10 * time.Second,
	}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       c.IdleTimeout,
		KeepAlivePeriod:      c.KeepAlivePeriod,
		HandshakeIdleTimeout: c.HandshakeTimeout,
	}
}

// Listener accepts QUIC connections and feeds their frames to a
// transport.Handler. Clients open one bidirectional stream and announce it
// with an empty frame.
type Listener struct {
	config   Config
	udpConn  *net.UDPConn
	listener *quic.Listener
	handler  transport.Handler
	logger   log.Log

	closed atomic.Bool
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[string]*Conn
}

func Listen(addr string, tlsConfig *tls.Config, config Config, handler transport.Handler, logger log.Log) (*Listener, error) {
	if logger == nil {
		logger = log.Provide()
	}
	if tlsConfig == nil {
		return nil, errors.New("quic listener requires a TLS config")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve UDP address")
	}
	udpConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to listen on UDP")
	}

	listener, err := quic.Listen(udpConn, tlsConfig, config.quicConfig())
	if err != nil {
		_ = udpConn.Close()
		return nil, errors.Wrap(err, "failed to create QUIC listener")
	}

	l := &Listener{
		config:   config,
		udpConn:  udpConn,
		listener: listener,
		handler:  handler,
		logger:   logger.With(log.String("transport", "quic"), log.String("listener_addr", listener.Addr().String())),
		conns:    make(map[string]*Conn),
	}
	l.logger.Info("QUIC listener created")
	return l, nil
}

func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// Serve accepts connections until ctx is done or the listener is closed.
func (l *Listener) Serve(ctx context.Context) error {
	for {
		conn, err := l.listener.Accept(ctx)
		if err != nil {
			if l.closed.Load() {
				return ErrListenerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "failed to accept QUIC connection")
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.serveConn(ctx, conn)
		}()
	}
}

func (l *Listener) serveConn(ctx context.Context, qc *quic.Conn) {
	logger := l.logger.With(log.String("remote_addr", qc.RemoteAddr().String()))

	streamCtx, cancel := ctx, context.CancelFunc(func() {})
	if l.config.StreamTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, l.config.StreamTimeout)
	}
	stream, err := qc.AcceptStream(streamCtx)
	cancel()
	if err != nil {
		logger.Debug("No stream opened", log.Error(err))
		_ = qc.CloseWithError(codeProtocolError, "no stream")
		return
	}

	conn := newConn(qc, stream, l.config.MaxMessageSize)
	logger = logger.With(log.String("connection_id", conn.ID()))

	hello, err := conn.receive()
	if err != nil || len(hello) != 0 {
		logger.Debug("Bad hello frame", log.Int("size", len(hello)), log.Error(err))
		_ = conn.closeWithError(codeProtocolError, "bad hello")
		return
	}

	if err = l.handler.Connected(conn); err != nil {
		logger.Warn("Connection rejected", log.Error(err))
		_ = conn.closeWithError(codeRejected, "rejected")
		return
	}
	l.track(conn)
	logger.Info("QUIC connection established")

	defer func() {
		l.untrack(conn)
		_ = conn.Close()
		l.handler.Disconnected(conn)
		logger.Info("QUIC connection closed")
	}()

	for {
		data, err := conn.receive()
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				logger.Warn("Oversized frame", log.Error(err))
				_ = conn.closeWithError(codeProtocolError, "frame too large")
			} else if err != io.EOF && !conn.closed.Load() {
				logger.Debug("QUIC read ended", log.Error(err))
			}
			return
		}
		l.handler.Received(conn, data)
	}
}

func (l *Listener) track(c *Conn) {
	l.mu.Lock()
	l.conns[c.ID()] = c
	l.mu.Unlock()
}

func (l *Listener) untrack(c *Conn) {
	l.mu.Lock()
	delete(l.conns, c.ID())
	l.mu.Unlock()
}

// Close stops accepting, closes every live connection and waits for their
// handlers to return.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.logger.Info("Closing QUIC listener")

	err := l.listener.Close()

	l.mu.Lock()
	for _, c := range l.conns {
		_ = c.closeWithError(codeNormal, "server shutdown")
	}
	l.mu.Unlock()

	l.wg.Wait()
	// quic.Listen never closes a packet conn it was handed
	_ = l.udpConn.Close()
	if err != nil {
		return errors.Wrap(err, "failed to close QUIC listener")
	}
	return nil
}
