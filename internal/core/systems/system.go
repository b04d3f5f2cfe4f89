package systems

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
)

var (
	ErrNilSystem     = errors.New("system is nil")
	ErrSystemExists  = errors.New("system already registered")
	ErrUnknownSystem = errors.New("unknown system")
)

// System is a per-tick processor run by a Pipeline.
type System interface {
	Name() string
	Phase() ExecutionPhase
	Priority() Priority
	Update(args scene.UpdateArgs) error
}

// Priority orders systems within a phase; higher runs first.
type Priority uint16

const (
	PriorityLowest  Priority = 200
	PriorityLow     Priority = 500
	PriorityNormal  Priority = 600
	PriorityHigh    Priority = 1000
	PriorityHighest Priority = 1300
)

// ExecutionPhase defines when a system runs
type ExecutionPhase uint8

const (
	PhasePreUpdate ExecutionPhase = iota
	PhaseUpdate
	PhaseFixedUpdate
	PhaseLateUpdate
)

func (p ExecutionPhase) String() string {
	switch p {
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhaseFixedUpdate:
		return "fixed_update"
	case PhaseLateUpdate:
		return "late_update"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Metrics provides runtime metrics for a system
type Metrics struct {
	ExecutionCount     uint64
	TotalExecutionTime time.Duration
	MaxExecutionTime   time.Duration
	LastExecutionTime  time.Duration
	ErrorCount         uint64
	LastError          error
}

func (m Metrics) AverageExecutionTime() time.Duration {
	if m.ExecutionCount == 0 {
		return 0
	}
	return m.TotalExecutionTime / time.Duration(m.ExecutionCount)
}

type funcSystem struct {
	name     string
	phase    ExecutionPhase
	priority Priority
	fn       func(args scene.UpdateArgs) error
}

func (s funcSystem) Name() string                       { return s.name }
func (s funcSystem) Phase() ExecutionPhase              { return s.phase }
func (s funcSystem) Priority() Priority                 { return s.priority }
func (s funcSystem) Update(args scene.UpdateArgs) error { return s.fn(args) }

// Func adapts fn into a System.
func Func(name string, phase ExecutionPhase, priority Priority, fn func(args scene.UpdateArgs) error) System {
	return funcSystem{name: name, phase: phase, priority: priority, fn: fn}
}

type entry struct {
	system  System
	seq     int
	enabled bool
	metrics Metrics
}

// Pipeline runs registered systems in phase order, then by descending
// priority, then by registration order.
type Pipeline struct {
	mu      sync.Mutex
	entries []*entry
	seq     int
	logger  log.Log
}

func NewPipeline(logger log.Log) *Pipeline {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{logger: logger.With(log.String("component", "systems"))}
}

func (p *Pipeline) Register(s System) error {
	if s == nil {
		return ErrNilSystem
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.find(s.Name()) != nil {
		return fmt.Errorf("%w: %s", ErrSystemExists, s.Name())
	}

	p.seq++
	p.entries = append(p.entries, &entry{system: s, seq: p.seq, enabled: true})
	slices.SortStableFunc(p.entries, func(a, b *entry) int {
		if c := cmp.Compare(a.system.Phase(), b.system.Phase()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.system.Priority(), a.system.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	p.logger.Debug("System registered",
		log.String("system", s.Name()),
		log.String("phase", s.Phase().String()))
	return nil
}

func (p *Pipeline) Unregister(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if e.system.Name() == name {
			p.entries = slices.Delete(p.entries, i, i+1)
			return true
		}
	}
	return false
}

func (p *Pipeline) SetEnabled(name string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.find(name)
	if e == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSystem, name)
	}
	e.enabled = enabled
	return nil
}

// Order lists system names in execution order, disabled ones included.
func (p *Pipeline) Order() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.system.Name()
	}
	return names
}

func (p *Pipeline) Metrics(name string) (Metrics, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e := p.find(name); e != nil {
		return e.metrics, true
	}
	return Metrics{}, false
}

// Update runs every enabled system once. A failing system does not stop the
// ones after it; all failures are joined.
func (p *Pipeline) Update(args scene.UpdateArgs) error {
	p.mu.Lock()
	run := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.enabled {
			run = append(run, e)
		}
	}
	p.mu.Unlock()

	var errs []error
	for _, e := range run {
		start := time.Now()
		err := e.system.Update(args)
		elapsed := time.Since(start)

		p.mu.Lock()
		m := &e.metrics
		m.ExecutionCount++
		m.TotalExecutionTime += elapsed
		m.LastExecutionTime = elapsed
		m.MaxExecutionTime = max(m.MaxExecutionTime, elapsed)
		if err != nil {
			m.ErrorCount++
			m.LastError = err
		}
		p.mu.Unlock()

		if err != nil {
			errs = append(errs, fmt.Errorf("system %s: %w", e.system.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) find(name string) *entry {
	for _, e := range p.entries {
		if e.system.Name() == name {
			return e
		}
	}
	return nil
}
