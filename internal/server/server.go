package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/scenesync/internal/core/events/bus"
	"github.com/zeusync/scenesync/internal/core/network"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/observability/metrics"
	"github.com/zeusync/scenesync/internal/core/prefab"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/scripts"
	"github.com/zeusync/scenesync/internal/core/systems"
	"github.com/zeusync/scenesync/internal/core/systems/physics"
	"github.com/zeusync/scenesync/internal/transport/quic"
)

// Server owns one scene and replicates it to every connected client. All
// scene mutation happens on the tick goroutine; transports only enqueue.
type Server struct {
	cfg    Config
	logger log.Log

	events  bus.EventBus
	scene   *scene.Scene
	scripts *scene.ScriptRegistry
	prefabs *prefab.Registry
	factory *prefab.Factory
	world   *physics.World
	systems *systems.Pipeline
	network *network.Service
	metrics *metrics.ReplicationCollector

	connMu   sync.Mutex
	sessions map[string]*session
	inbound  chan inbound

	frame       atomic.Uint64
	elapsed     time.Duration
	entityCount atomic.Int64

	running atomic.Bool
	closed  atomic.Bool

	ready    chan struct{}
	httpAddr net.Addr
	quicAddr net.Addr
}

type Option func(*options)

type options struct {
	logger     log.Log
	events     bus.EventBus
	registerer prometheus.Registerer
	clock      network.Clock
}

func WithLogger(l log.Log) Option {
	return func(o *options) { o.logger = l }
}

func WithEventBus(b bus.EventBus) Option {
	return func(o *options) { o.events = b }
}

// WithRegisterer registers replication metrics on reg instead of a private
// registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithClock(c network.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewServer wires the scene, physics world, prefab factory and network
// service described by cfg, and spawns the configured prefabs.
func NewServer(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(cfg.LogLevel)
	}
	if o.events == nil {
		o.events = bus.New()
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}

	collector, err := metrics.NewReplicationCollector(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	registry := scene.NewScriptRegistry()
	if err = scripts.Register(registry); err != nil {
		return nil, err
	}

	world := physics.NewWorld(
		physics.WithGravity(cfg.Gravity),
		physics.WithLogger(o.logger))

	prefabs := prefab.NewRegistry()
	if cfg.PrefabFile != "" {
		defs, err := prefab.LoadFile(cfg.PrefabFile)
		if err != nil {
			return nil, err
		}
		if err = prefabs.Register(defs...); err != nil {
			return nil, err
		}
	}

	netOpts := []network.Option{
		network.WithLogger(o.logger),
		network.WithEventBus(o.events),
		network.WithRecorder(collector),
	}
	if o.clock != nil {
		netOpts = append(netOpts, network.WithClock(o.clock))
	}
	service, err := network.NewService(cfg.networkConfig(), netOpts...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		logger:   o.logger.With(log.String("component", "server")),
		events:   o.events,
		scene:    scene.New(scene.WithEventBus(o.events), scene.WithLogger(o.logger)),
		scripts:  registry,
		prefabs:  prefabs,
		factory:  prefab.NewFactory(prefabs, registry, world, o.logger),
		world:    world,
		network:  service,
		metrics:  collector,
		sessions: make(map[string]*session),
		inbound:  make(chan inbound, cfg.InboundQueueSize),
		ready:    make(chan struct{}),
	}

	s.systems = systems.NewPipeline(o.logger)
	scriptSystem := systems.Func("scripts", systems.PhaseUpdate, systems.PriorityNormal,
		func(args scene.UpdateArgs) error {
			s.scene.OnUpdate(args)
			return nil
		})
	if err = s.systems.Register(scriptSystem); err != nil {
		return nil, err
	}
	if err = s.systems.Register(world); err != nil {
		return nil, err
	}

	if err = s.spawn(cfg.Spawn); err != nil {
		return nil, err
	}
	s.entityCount.Store(int64(s.scene.Len()))

	s.logger.Info("Server created",
		log.String("listen_addr", cfg.ListenAddr),
		log.String("quic_addr", cfg.QUICAddr),
		log.String("encoding", string(cfg.Encoding)),
		log.Int("tick_rate", cfg.TickRate),
		log.Int("prefabs", prefabs.Len()))
	return s, nil
}

func (s *Server) spawn(spawns []Spawn) error {
	for _, sp := range spawns {
		e, err := s.factory.Instantiate(s.scene, sp.Prefab, sp.Name, sp.Role)
		if err != nil {
			return fmt.Errorf("spawn %s: %w", sp.Name, err)
		}
		e.SetPositionVec(sp.Position)
	}
	return nil
}

func (s *Server) Config() Config                         { return s.cfg }
func (s *Server) Scene() *scene.Scene                    { return s.scene }
func (s *Server) Scripts() *scene.ScriptRegistry         { return s.scripts }
func (s *Server) Prefabs() *prefab.Registry              { return s.prefabs }
func (s *Server) Factory() *prefab.Factory               { return s.factory }
func (s *Server) World() *physics.World                  { return s.world }
func (s *Server) Systems() *systems.Pipeline             { return s.systems }
func (s *Server) Network() *network.Service              { return s.network }
func (s *Server) Events() bus.EventBus                   { return s.events }
func (s *Server) Metrics() *metrics.ReplicationCollector { return s.metrics }
func (s *Server) Frame() uint64                          { return s.frame.Load() }

// Ready is closed once Run has bound its listeners.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound HTTP address; nil before Ready.
func (s *Server) Addr() net.Addr { return s.httpAddr }

// QUICAddr is the bound QUIC address; nil before Ready or when disabled.
func (s *Server) QUICAddr() net.Addr { return s.quicAddr }

// Tick applies queued inbound frames, updates scripts, steps physics and
// runs one send pass. It must not be called concurrently with itself.
func (s *Server) Tick(ctx context.Context, dt time.Duration) error {
	frame := s.frame.Add(1)
	s.elapsed += dt

	s.applyInbound()
	err := s.systems.Update(scene.UpdateArgs{
		DeltaTime: dt.Seconds(),
		Frame:     frame,
		Elapsed:   s.elapsed,
	})
	if err != nil {
		s.logger.Warn("System update failed", log.Uint64("frame", frame), log.Error(err))
	}
	s.entityCount.Store(int64(s.scene.Len()))

	return s.network.SendAll(ctx, s.scene)
}

// Run binds the HTTP listener (and the QUIC listener when configured), then
// ticks until ctx is canceled. It shuts everything down before returning.
func (s *Server) Run(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}
	defer s.closed.Store(true)

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpAddr = ln.Addr()

	var ql *quic.Listener
	if s.cfg.QUICAddr != "" {
		if ql, err = s.listenQUIC(); err != nil {
			_ = ln.Close()
			return err
		}
		s.quicAddr = ql.Addr()
	}
	close(s.ready)

	s.logger.Info("Server started", log.String("addr", s.httpAddr.String()))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if ql != nil {
		group.Go(func() error {
			err := ql.Serve(gctx)
			if errors.Is(err, quic.ErrListenerClosed) || gctx.Err() != nil {
				return nil
			}
			return err
		})
	}
	group.Go(func() error {
		s.loop(gctx)
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		return s.shutdown(httpServer, ql)
	})

	err = group.Wait()
	s.logger.Info("Server stopped", log.Uint64("frames", s.frame.Load()))
	return err
}

func (s *Server) listenQUIC() (*quic.Listener, error) {
	var (
		tlsConfig *tls.Config
		err       error
	)
	if s.cfg.TLSCertFile != "" {
		tlsConfig, err = quic.LoadTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	} else {
		s.logger.Warn("No TLS certificate configured, using a self-signed one")
		tlsConfig, err = quic.GenerateSelfSignedTLS()
	}
	if err != nil {
		return nil, err
	}

	qc := quic.DefaultConfig()
	qc.MaxMessageSize = s.cfg.MaxMessageSize
	ql, err := quic.Listen(s.cfg.QUICAddr, tlsConfig, qc, s, s.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	return ql, nil
}

func (s *Server) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.tickInterval())
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now
			if err := s.Tick(ctx, dt); err != nil && ctx.Err() == nil {
				s.logger.Warn("Tick finished with errors",
					log.Uint64("frame", s.frame.Load()),
					log.Error(err))
			}
		}
	}
}

func (s *Server) shutdown(httpServer *http.Server, ql *quic.Listener) error {
	s.logger.Info("Stopping server")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// hijacked WebSocket connections outlive http.Server.Shutdown
	s.closeSessions()
	if ql != nil {
		if err := ql.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
