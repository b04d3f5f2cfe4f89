package scene

import (
	"fmt"
	"slices"

	"github.com/zeusync/scenesync/internal/core/events/bus"
	"github.com/zeusync/scenesync/internal/core/observability/log"
)

// Scene owns the entity arena. Entities are indexed by id and by name, and
// both indexes always agree. A Scene is driven from a single goroutine.
type Scene struct {
	byID   map[ID]*Entity
	byName map[string]*Entity
	// ids in ascending order; ids are allocated monotonically so appends keep it sorted
	order  []ID
	nextID ID
	root   *Entity

	events bus.EventBus
	logger log.Log
}

type Option func(*Scene)

// WithEventBus publishes entity lifecycle events on b.
func WithEventBus(b bus.EventBus) Option {
	return func(s *Scene) { s.events = b }
}

func WithLogger(l log.Log) Option {
	return func(s *Scene) { s.logger = l }
}

// New creates a scene holding only the root entity.
func New(opts ...Option) *Scene {
	s := &Scene{
		byID:   make(map[ID]*Entity),
		byName: make(map[string]*Entity),
		nextID: RootID + 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewNop()
	}
	s.logger = s.logger.With(log.String("component", "scene"))

	s.root = newEntity(RootID, RootName, s, RoleNone)
	s.insert(s.root)
	return s
}

func (s *Scene) Root() *Entity { return s.root }

// Len counts the entities in the scene, root included.
func (s *Scene) Len() int { return len(s.byID) }

func (s *Scene) FindByID(id ID) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

func (s *Scene) FindByName(name string) (*Entity, bool) {
	e, ok := s.byName[name]
	return e, ok
}

// CreateEntity allocates the next id and registers a new entity under name.
// No entity is produced when name is empty or already taken.
func (s *Scene) CreateEntity(name string, role Role) (*Entity, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if _, exists := s.byName[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, name)
	}

	e := newEntity(s.nextID, name, s, role)
	s.nextID++
	s.insert(e)

	s.logger.Debug("Entity created",
		log.Uint64("entity_id", uint64(e.id)),
		log.String("name", name),
		log.String("role", role.String()))
	s.publish(bus.EntityCreated, e)
	return e, nil
}

// RemoveEntity drops e from both indexes and clears its scene reference.
// Children and parent links are the caller's concern; Entity.Destroy handles
// them before calling here.
func (s *Scene) RemoveEntity(e *Entity) error {
	if e == nil {
		return nil
	}
	if e.scene != s {
		return fmt.Errorf("remove %s: %w", e.name, ErrForeignEntity)
	}
	if e == s.root {
		return ErrRootEntity
	}

	delete(s.byName, e.name)
	delete(s.byID, e.id)
	if i, found := slices.BinarySearch(s.order, e.id); found {
		s.order = slices.Delete(s.order, i, i+1)
	}
	e.scene = nil

	s.logger.Debug("Entity removed",
		log.Uint64("entity_id", uint64(e.id)),
		log.String("name", e.name))
	s.publish(bus.EntityRemoved, e)
	return nil
}

// Entities returns every entity in ascending id order.
func (s *Scene) Entities() []*Entity {
	out := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Each visits entities in ascending id order until fn returns false.
func (s *Scene) Each(fn func(e *Entity) bool) {
	for _, id := range s.order {
		if !fn(s.byID[id]) {
			return
		}
	}
}

// OnUpdate updates every enabled entity in id order. An entity under a
// disabled ancestor is skipped. Entities created during the pass are picked up
// next tick; entities destroyed during the pass are not visited.
func (s *Scene) OnUpdate(args UpdateArgs) {
	ids := slices.Clone(s.order)
	for _, id := range ids {
		e, ok := s.byID[id]
		if !ok || !e.activeInHierarchy() {
			continue
		}
		e.OnUpdate(args)
	}
}

func (s *Scene) insert(e *Entity) {
	s.byID[e.id] = e
	s.byName[e.name] = e
	s.order = append(s.order, e.id)
}

func (s *Scene) publish(eventType string, e *Entity) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(bus.NewEvent(eventType, "scene", e, map[string]any{
		"entity_id": uint64(e.id),
		"name":      e.name,
	}))
	if err != nil {
		s.logger.Warn("Entity event handler failed",
			log.String("event", eventType),
			log.Error(err))
	}
}
