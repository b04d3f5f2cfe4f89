// Package client provides a replica client SDK for SceneSync servers. A
// Client mirrors the server's scene into a local one, dispatches remote calls
// and sends the state of its own LOCAL entities back.
package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/snapshot"
)

type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportQUIC      Transport = "quic"
)

// Config holds configuration for the client
type Config struct {
	// Connection settings
	ServerAddr     string
	Transport      Transport
	Path           string
	ConnectTimeout time.Duration
	// TLSConfig is used by the QUIC transport; nil skips verification.
	TLSConfig *tls.Config

	// Wire settings, matching the server's
	Encoding        snapshot.Encoding
	ProtocolVersion uint32
	MaxMessageSize  int

	// Logging
	LogLevel log.Level
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		ServerAddr:      "127.0.0.1:8080",
		Transport:       TransportWebSocket,
		Path:            "/ws",
		ConnectTimeout:  10 * time.Second,
		Encoding:        snapshot.EncodingJSON,
		ProtocolVersion: 1,
		MaxMessageSize:  snapshot.DefaultMaxMessageSize,
		LogLevel:        log.LevelInfo,
	}
}

// EventType represents client event types
type EventType string

const (
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"
)

// Event represents a client event
type Event struct {
	Type      EventType
	Timestamp time.Time
	Error     error
}

type EventHandler func(event Event)

// RemoteCallHandler runs on the receive goroutine, after the frame carrying
// the call has been applied to the scene.
type RemoteCallHandler func(call snapshot.RemoteCall)

// Client represents a SceneSync replica connection
type Client struct {
	config Config
	logger log.Log

	sceneMu sync.Mutex
	scene   *scene.Scene
	reader  snapshot.Reader
	writer  snapshot.Writer
	calls   []snapshot.RemoteCall

	conn frameConn

	handlerMu     sync.RWMutex
	callHandlers  map[string][]RemoteCallHandler
	eventHandlers map[EventType][]EventHandler

	connected atomic.Bool
	closed    atomic.Bool
	frames    atomic.Uint64
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewClient creates a client replicating into sc. The caller builds sc with
// the same entities, in the same order, as the server.
func NewClient(config Config, sc *scene.Scene, logger log.Log) (*Client, error) {
	if sc == nil || config.ServerAddr == "" {
		return nil, ErrInvalidConfig
	}
	reader, err := snapshot.NewReader(config.Encoding, config.ProtocolVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	writer, err := snapshot.NewWriter(config.Encoding, config.ProtocolVersion, config.MaxMessageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if logger == nil {
		logger = log.New(config.LogLevel)
	}

	return &Client{
		config:        config,
		logger:        logger.With(log.String("component", "client")),
		scene:         sc,
		reader:        reader,
		writer:        writer,
		callHandlers:  make(map[string][]RemoteCallHandler),
		eventHandlers: make(map[EventType][]EventHandler),
		done:          make(chan struct{}),
	}, nil
}

// Connect dials the server and starts applying inbound snapshots.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	c.logger.Info("Connecting to server",
		log.String("addr", c.config.ServerAddr),
		log.String("transport", string(c.config.Transport)))

	connectCtx := ctx
	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	conn, err := dial(connectCtx, c.config)
	if err != nil {
		c.logger.Error("Failed to connect to server", log.Error(err))
		return err
	}
	if !c.connected.CompareAndSwap(false, true) {
		_ = conn.Close()
		return ErrAlreadyConnected
	}
	c.conn = conn

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.receiveLoop()
	}()

	c.logger.Info("Connected to server")
	c.emitEvent(Event{Type: EventTypeConnected, Timestamp: time.Now()})
	return nil
}

// OnRemoteCall registers handler for calls named name.
func (c *Client) OnRemoteCall(name string, handler RemoteCallHandler) {
	c.handlerMu.Lock()
	c.callHandlers[name] = append(c.callHandlers[name], handler)
	c.handlerMu.Unlock()
}

func (c *Client) OnEvent(eventType EventType, handler EventHandler) {
	c.handlerMu.Lock()
	c.eventHandlers[eventType] = append(c.eventHandlers[eventType], handler)
	c.handlerMu.Unlock()
}

// Update runs fn with exclusive access to the replica scene. Never touch the
// scene outside Update while the client is connected.
func (c *Client) Update(fn func(sc *scene.Scene)) {
	c.sceneMu.Lock()
	defer c.sceneMu.Unlock()
	fn(c.scene)
}

// CallServer queues a remote call for the next SendState.
func (c *Client) CallServer(name string, args map[string]any) {
	c.sceneMu.Lock()
	c.calls = append(c.calls, snapshot.RemoteCall{Name: name, Args: args})
	c.sceneMu.Unlock()
}

// SendState writes every LOCAL entity plus queued calls to the server. Queued
// calls are kept when the send fails.
func (c *Client) SendState() error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	data, err := c.serialize()
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	if err = c.conn.Send(data); err != nil {
		return err
	}

	c.sceneMu.Lock()
	c.calls = c.calls[:0]
	c.sceneMu.Unlock()
	return nil
}

func (c *Client) serialize() ([]byte, error) {
	c.sceneMu.Lock()
	defer c.sceneMu.Unlock()

	if err := c.writer.BeginMessage(snapshot.MessageStateData); err != nil {
		return nil, err
	}
	for _, e := range c.scene.Entities() {
		if err := c.writer.WriteEntity(e); err != nil {
			return nil, err
		}
	}
	for _, call := range c.calls {
		if err := c.writer.QueueRemoteCall(call); err != nil {
			return nil, err
		}
	}

	data, err := c.writer.EndMessage()
	if errors.Is(err, snapshot.ErrNothingToSend) {
		return nil, nil
	}
	return data, err
}

// Frames counts snapshots applied since Connect.
func (c *Client) Frames() uint64 { return c.frames.Load() }

func (c *Client) IsConnected() bool { return c.connected.Load() }
func (c *Client) IsClosed() bool    { return c.closed.Load() }

// Done is closed when the client is closed or the server goes away.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the client and releases all resources
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Info("Closing client")
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.wg.Wait()
	c.markDone()
	return err
}

func (c *Client) markDone() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *Client) receiveLoop() {
	c.logger.Debug("Receiver started")
	defer func() {
		c.connected.Store(false)
		c.emitEvent(Event{Type: EventTypeDisconnected, Timestamp: time.Now()})
		if !c.closed.Load() {
			c.markDone()
		}
		c.logger.Debug("Receiver stopped")
	}()

	for {
		data, err := c.conn.Receive()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("Connection lost", log.Error(err))
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	c.sceneMu.Lock()
	calls, err := c.reader.Read(c.scene, data)
	c.sceneMu.Unlock()

	if err != nil {
		c.logger.Warn("Failed to apply snapshot", log.Error(err))
		c.emitEvent(Event{Type: EventTypeError, Timestamp: time.Now(), Error: err})
		return
	}
	c.frames.Add(1)

	for _, call := range calls {
		c.handlerMu.RLock()
		handlers := c.callHandlers[call.Name]
		c.handlerMu.RUnlock()
		for _, h := range handlers {
			h(call)
		}
	}
}

func (c *Client) emitEvent(event Event) {
	c.handlerMu.RLock()
	handlers := c.eventHandlers[event.Type]
	c.handlerMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
