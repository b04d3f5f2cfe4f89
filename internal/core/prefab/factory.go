package prefab

import (
	"errors"
	"fmt"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/systems/physics"
)

// Factory builds entities from registered prefabs.
type Factory struct {
	prefabs *Registry
	scripts *scene.ScriptRegistry
	physics physics.Capability
	logger  log.Log
}

// NewFactory wires a factory. phys may be nil when no prefab uses collision
// or rigid bodies.
func NewFactory(prefabs *Registry, scripts *scene.ScriptRegistry, phys physics.Capability, logger log.Log) *Factory {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Factory{
		prefabs: prefabs,
		scripts: scripts,
		physics: phys,
		logger:  logger.With(log.String("component", "prefab")),
	}
}

// Instantiate creates an entity named name from the prefab prefabName.
// Children are named name_1, name_2, ... in definition order. Nothing is left
// in the scene when any part fails.
func (f *Factory) Instantiate(s *scene.Scene, prefabName, name string, role scene.Role) (*scene.Entity, error) {
	if prefabName == "" {
		return nil, ErrEmptyPrefabName
	}
	def, ok := f.prefabs.Get(prefabName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrefab, prefabName)
	}

	e, err := f.Build(s, def, name, role)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Prefab instantiated",
		log.String("prefab", prefabName),
		log.String("name", name),
		log.Uint64("entity_id", uint64(e.ID())))
	return e, nil
}

// Build creates an entity directly from def.
func (f *Factory) Build(s *scene.Scene, def Definition, name string, role scene.Role) (*scene.Entity, error) {
	e, err := s.CreateEntity(name, role)
	if err != nil {
		return nil, err
	}
	if err = f.populate(s, e, def, role); err != nil {
		if derr := e.Destroy(); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, err
	}
	return e, nil
}

func (f *Factory) populate(s *scene.Scene, e *scene.Entity, def Definition, role scene.Role) error {
	if len(def.Scripts) > 0 {
		if f.scripts == nil {
			return fmt.Errorf("prefab %s: %w", def.Name, scene.ErrUnknownScript)
		}
		if err := e.CreateScripts(f.scripts, def.Scripts); err != nil {
			return fmt.Errorf("prefab %s: %w", def.Name, err)
		}
	}
	if err := f.attachBody(e, def); err != nil {
		return fmt.Errorf("prefab %s: %w", def.Name, err)
	}

	for i, childDef := range def.Children {
		child, err := f.Build(s, childDef, fmt.Sprintf("%s_%d", e.Name(), i+1), role)
		if err != nil {
			return err
		}
		if err = e.AddChild(child); err != nil {
			return err
		}
	}
	return nil
}

// attachBody gives e a rigid body. A collision shape without a rigid body
// becomes a static collider.
func (f *Factory) attachBody(e *scene.Entity, def Definition) error {
	if def.Collision == nil && def.RigidBody == nil {
		return nil
	}
	if f.physics == nil {
		return ErrNoPhysics
	}

	var shape *physics.Shape
	if c := def.Collision; c != nil {
		kind, err := physics.ParseShapeKind(c.Shape)
		if err != nil {
			return err
		}
		shape, err = f.physics.CreateShape(kind, physics.Dimensions{
			HalfExtents: c.HalfExtents,
			Radius:      c.Radius,
			Length:      c.Length,
		})
		if err != nil {
			return err
		}
	}

	spec := physics.BodySpec{Type: physics.BodyStatic}
	if rb := def.RigidBody; rb != nil {
		spec = physics.DefaultBodySpec()
		if rb.Type != "" {
			t, err := physics.ParseBodyType(rb.Type)
			if err != nil {
				return err
			}
			spec.Type = t
		}
		spec.Mass = rb.Mass
		if rb.Restitution != 0 {
			spec.Restitution = rb.Restitution
		}
		spec.Friction = rb.Friction
		spec.LinearDamping = rb.LinearDamping
		spec.AngularDamping = rb.AngularDamping
	}

	_, err := f.physics.CreateBody(e, shape, spec)
	return err
}
