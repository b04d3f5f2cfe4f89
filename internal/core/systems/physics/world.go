package physics

import (
	"fmt"
	"math"

	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/systems"
)

// EarthGravity is the default world gravity.
var EarthGravity = parameter.Vec3{Y: -9.8}

// Body is a rigid body bound to one entity.
type Body struct {
	entity *scene.Entity
	shape  *Shape
	spec   BodySpec

	linear  parameter.Vec3
	angular parameter.Vec3
}

func (b *Body) Entity() *scene.Entity { return b.entity }
func (b *Body) Shape() *Shape         { return b.shape }
func (b *Body) Spec() BodySpec        { return b.spec }

func (b *Body) LinearVelocity() parameter.Vec3  { return b.linear }
func (b *Body) AngularVelocity() parameter.Vec3 { return b.angular }

// SetLinearVelocity has no effect on static bodies.
func (b *Body) SetLinearVelocity(v parameter.Vec3) {
	if b.spec.Type != BodyStatic {
		b.linear = v
	}
}

func (b *Body) SetAngularVelocity(v parameter.Vec3) {
	if b.spec.Type != BodyStatic {
		b.angular = v
	}
}

// ApplyImpulse changes a dynamic body's velocity by impulse/mass.
func (b *Body) ApplyImpulse(impulse parameter.Vec3) {
	if b.spec.Type != BodyDynamic {
		return
	}
	b.linear = b.linear.Add(impulse.Scale(1 / b.spec.Mass))
}

type WorldOption func(*World)

func WithGravity(g parameter.Vec3) WorldOption {
	return func(w *World) { w.gravity = g }
}

func WithLogger(l log.Log) WorldOption {
	return func(w *World) { w.logger = l }
}

// World integrates rigid bodies and writes their motion back into the owning
// entities' position and rotation. It is driven from the tick goroutine.
type World struct {
	gravity parameter.Vec3
	bodies  map[scene.ID]*Body
	order   []scene.ID
	logger  log.Log
}

var _ Capability = (*World)(nil)

func NewWorld(opts ...WorldOption) *World {
	w := &World{
		gravity: EarthGravity,
		bodies:  make(map[scene.ID]*Body),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = log.NewNop()
	}
	w.logger = w.logger.With(log.String("component", "physics"))
	return w
}

func (w *World) Gravity() parameter.Vec3 { return w.gravity }

func (w *World) SetGravity(x, y, z float64) {
	w.gravity = parameter.Vec3{X: x, Y: y, Z: z}
}

// CreateShape validates dims for kind.
func (w *World) CreateShape(kind ShapeKind, dims Dimensions) (*Shape, error) {
	positive := func(vs ...float64) bool {
		for _, v := range vs {
			if !(v > 0) {
				return false
			}
		}
		return true
	}

	var ok bool
	switch kind {
	case ShapeBox, ShapeCylinder:
		ok = positive(dims.HalfExtents.X, dims.HalfExtents.Y, dims.HalfExtents.Z)
	case ShapeSphere:
		ok = positive(dims.Radius)
	case ShapeCone:
		ok = positive(dims.Radius, dims.Length)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidShape, kind)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %+v", ErrInvalidDimensions, kind, dims)
	}
	return &Shape{Kind: kind, Dims: dims}, nil
}

// CreateBody attaches a rigid body to e. Static and kinematic bodies ignore
// mass.
func (w *World) CreateBody(e *scene.Entity, shape *Shape, spec BodySpec) (*Body, error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	if _, ok := bodyTypeNames[spec.Type]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBodyType, uint8(spec.Type))
	}
	if spec.Type == BodyDynamic && !(spec.Mass > 0) {
		return nil, fmt.Errorf("%w: %s has mass %v", ErrInvalidMass, e.Name(), spec.Mass)
	}
	if spec.Type != BodyDynamic {
		spec.Mass = 0
	}
	if _, exists := w.bodies[e.ID()]; exists {
		return nil, fmt.Errorf("%w: %s", ErrBodyExists, e.Name())
	}

	b := &Body{entity: e, shape: shape, spec: spec}
	w.bodies[e.ID()] = b
	w.order = append(w.order, e.ID())

	w.logger.Debug("Rigid body created",
		log.Uint64("entity_id", uint64(e.ID())),
		log.String("type", spec.Type.String()))
	return b, nil
}

func (w *World) Body(id scene.ID) (*Body, bool) {
	b, ok := w.bodies[id]
	return b, ok
}

func (w *World) RemoveBody(id scene.ID) bool {
	if _, ok := w.bodies[id]; !ok {
		return false
	}
	delete(w.bodies, id)
	for i, bid := range w.order {
		if bid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return true
}

func (w *World) Len() int { return len(w.bodies) }

// Step advances every body by dt seconds using semi-implicit Euler. Bodies
// whose entity has left its scene are dropped; bodies on disabled entities
// are frozen.
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	for _, id := range append([]scene.ID(nil), w.order...) {
		b := w.bodies[id]
		if b.entity.Scene() == nil {
			w.RemoveBody(id)
			continue
		}
		if !b.entity.Enabled() {
			continue
		}
		w.integrate(b, dt)
	}
}

var _ systems.System = (*World)(nil)

func (w *World) Name() string                  { return "physics" }
func (w *World) Phase() systems.ExecutionPhase { return systems.PhaseFixedUpdate }
func (w *World) Priority() systems.Priority    { return systems.PriorityNormal }

// Update steps the world as part of a systems.Pipeline.
func (w *World) Update(args scene.UpdateArgs) error {
	w.Step(args.DeltaTime)
	return nil
}

func (w *World) integrate(b *Body, dt float64) {
	switch b.spec.Type {
	case BodyStatic:
		return
	case BodyDynamic:
		b.linear = b.linear.Add(w.gravity.Scale(dt))
		b.linear = b.linear.Scale(dampingFactor(b.spec.LinearDamping, dt))
		b.angular = b.angular.Scale(dampingFactor(b.spec.AngularDamping, dt))
	}

	e := b.entity
	e.SetPositionVec(e.Position().Add(b.linear.Scale(dt)))

	if l := b.angular.Length(); l > 0 {
		turn := parameter.AxisAngle(b.angular, l*dt)
		e.SetRotation(turn.Mul(e.Rotation()))
	}
}

// dampingFactor is the velocity retained after dt seconds.
func dampingFactor(damping, dt float64) float64 {
	if damping <= 0 {
		return 1
	}
	if damping >= 1 {
		return 0
	}
	return math.Pow(1-damping, dt)
}
