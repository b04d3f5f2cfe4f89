package network

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zeusync/scenesync/internal/core/events/bus"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/snapshot"
	"github.com/zeusync/scenesync/pkg/concurrent"
)

// Config selects the wire format and cadence for every client of a Service.
type Config struct {
	SnapsPerSecond   int
	Encoding         snapshot.Encoding
	ProtocolVersion  uint32
	MaxMessageSize   int
	SerializeWorkers int
}

func DefaultConfig() Config {
	return Config{
		SnapsPerSecond:   DefaultSnapsPerSecond,
		Encoding:         snapshot.EncodingJSON,
		ProtocolVersion:  1,
		MaxMessageSize:   snapshot.DefaultMaxMessageSize,
		SerializeWorkers: 4,
	}
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithLogger(l log.Log) Option {
	return func(s *Service) { s.logger = l }
}

// WithEventBus publishes client connect and disconnect events on b.
func WithEventBus(b bus.EventBus) Option {
	return func(s *Service) { s.events = b }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// Service owns the connected clients and decides when each one receives a
// snapshot. SendAll must be called from the goroutine that mutates the scene.
type Service struct {
	cfg Config

	mu      sync.RWMutex
	clients map[uint64]*Client
	nextID  uint64

	clock   Clock
	events  bus.EventBus
	metrics Recorder
	logger  log.Log
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if cfg.SnapsPerSecond <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRate, cfg.SnapsPerSecond)
	}
	if cfg.Encoding == "" {
		cfg.Encoding = snapshot.EncodingJSON
	}
	// probe the encoding once so CreateClient cannot fail on it later
	if _, err := snapshot.NewWriter(cfg.Encoding, cfg.ProtocolVersion, cfg.MaxMessageSize); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		clients: make(map[uint64]*Client),
		nextID:  BaseClientID,
		clock:   SystemClock,
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	s.logger = s.logger.With(log.String("component", "network"))
	return s, nil
}

// CreateClient registers a new client writing to sink and returns it.
func (s *Service) CreateClient(sink Sink) (*Client, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	writer, err := snapshot.NewWriter(s.cfg.Encoding, s.cfg.ProtocolVersion, s.cfg.MaxMessageSize)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	c := newClient(s.nextID, sink, writer, s.cfg.SnapsPerSecond)
	s.nextID++
	s.clients[c.id] = c
	count := len(s.clients)
	s.mu.Unlock()

	s.metrics.ClientsConnected(count)
	s.logger.Info("Client connected",
		log.Uint64("client_id", c.id),
		log.Int("clients", count))
	s.publish(bus.ClientConnected, c.id)
	return c, nil
}

// RemoveClient drops the client with id. When the last client leaves the id
// counter starts over at BaseClientID.
func (s *Service) RemoveClient(id uint64) error {
	s.mu.Lock()
	if _, ok := s.clients[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrClientNotFound, id)
	}
	delete(s.clients, id)
	count := len(s.clients)
	if count == 0 {
		s.nextID = BaseClientID
	}
	s.mu.Unlock()

	s.metrics.ClientsConnected(count)
	s.logger.Info("Client disconnected",
		log.Uint64("client_id", id),
		log.Int("clients", count))
	s.publish(bus.ClientDisconnected, id)
	return nil
}

func (s *Service) Client(id uint64) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

// Clients returns the connected clients in ascending id order.
func (s *Service) Clients() []*Client {
	s.mu.RLock()
	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Client) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// NextClientID is the id the next CreateClient will assign.
func (s *Service) NextClientID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

// CallRPC queues a remote call on a single client.
func (s *Service) CallRPC(id uint64, name string, args map[string]any) error {
	c, ok := s.Client(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrClientNotFound, id)
	}
	if err := c.CallRPC(name, args); err != nil {
		return err
	}
	s.metrics.RemoteCallsQueued(1)
	return nil
}

// BroadcastRemoteCall queues a remote call on every connected client.
func (s *Service) BroadcastRemoteCall(name string, args map[string]any) error {
	if name == "" {
		return ErrEmptyCallName
	}
	clients := s.Clients()
	for _, c := range clients {
		_ = c.CallRPC(name, args)
	}
	s.metrics.RemoteCallsQueued(len(clients))
	return nil
}

type outbound struct {
	data  []byte
	calls int
	err   error
	done  bool
}

// SendAll runs one send pass over every due client. Messages for due clients
// are serialized in parallel, each client using its own writer, while the
// scene is treated as read-only; sinks are then called one client at a time
// in id order. A client whose writer had nothing to send keeps its timestamp
// and is retried next pass.
func (s *Service) SendAll(ctx context.Context, sc *scene.Scene) error {
	now := s.clock.Now()

	var due []*Client
	for _, c := range s.Clients() {
		if c.IsDue(now) {
			due = append(due, c)
		}
	}
	if len(due) == 0 {
		return nil
	}

	entities := sc.Entities()
	results := make([]outbound, len(due))

	start := time.Now()
	err := concurrent.ForEach(ctx, due, s.cfg.SerializeWorkers, func(_ context.Context, idx int, c *Client) error {
		data, calls, err := c.serialize(entities)
		results[idx] = outbound{data: data, calls: calls, err: err, done: true}
		return nil
	})
	s.metrics.SerializeTook(time.Since(start))
	if err != nil {
		return err
	}

	var errs []error
	for idx, c := range due {
		res := results[idx]
		switch {
		case !res.done:
			continue
		case errors.Is(res.err, snapshot.ErrNothingToSend):
			s.metrics.SnapshotSkipped()
			continue
		case res.err != nil:
			s.logger.Error("Snapshot serialization failed",
				log.Uint64("client_id", c.id),
				log.Error(res.err))
			errs = append(errs, fmt.Errorf("client %d: %w", c.id, res.err))
			continue
		}

		if err = c.sink.Send(res.data); err != nil {
			s.logger.Warn("Snapshot send failed",
				log.Uint64("client_id", c.id),
				log.Error(err))
			errs = append(errs, fmt.Errorf("client %d: %w", c.id, err))
			continue
		}
		c.markSent(now, res.calls)
		s.metrics.SnapshotSent(string(s.cfg.Encoding), len(res.data))
		s.logger.Debug("Snapshot sent",
			log.Uint64("client_id", c.id),
			log.Int("bytes", len(res.data)),
			log.Int("rpc", res.calls))
	}
	return errors.Join(errs...)
}

func (s *Service) publish(eventType string, id uint64) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(bus.NewEvent(eventType, "network", id, map[string]any{
		"client_id": id,
	}))
	if err != nil {
		s.logger.Warn("Client event handler failed",
			log.String("event", eventType),
			log.Error(err))
	}
}
