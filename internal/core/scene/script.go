package scene

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zeusync/scenesync/internal/core/parameter"
)

// UpdateArgs is passed to every update hook during a tick.
type UpdateArgs struct {
	// DeltaTime is the elapsed simulation time since the previous tick, in seconds.
	DeltaTime float64
	Frame     uint64
	Elapsed   time.Duration
}

// Script is a behaviour attached to exactly one entity. Its parameters are
// replicated alongside the owning entity's.
type Script interface {
	parameter.Owner
	OnUpdate(args UpdateArgs)
	Destroy()
}

// ScriptFactory builds a script bound to owner.
type ScriptFactory func(owner *Entity) (Script, error)

// ScriptRegistry maps script names to factories.
type ScriptRegistry struct {
	mu        sync.RWMutex
	factories map[string]ScriptFactory
}

func NewScriptRegistry() *ScriptRegistry {
	return &ScriptRegistry{factories: make(map[string]ScriptFactory)}
}

func (r *ScriptRegistry) Register(name string, factory ScriptFactory) error {
	if name == "" {
		return ErrEmptyScriptName
	}
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrNilScriptFactory, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrScriptRegistered, name)
	}
	r.factories[name] = factory
	return nil
}

func (r *ScriptRegistry) Create(name string, owner *Entity) (Script, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, name)
	}
	s, err := factory(owner)
	if err != nil {
		return nil, fmt.Errorf("create script %s: %w", name, err)
	}
	if s == nil {
		return nil, fmt.Errorf("create script %s: %w", name, ErrNilScript)
	}
	return s, nil
}

func (r *ScriptRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
