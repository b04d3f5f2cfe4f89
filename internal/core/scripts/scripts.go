// Package scripts holds the built-in script capabilities.
package scripts

import (
	"errors"

	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

const (
	HealthName  = "health"
	SpinnerName = "spinner"
)

// Register adds every built-in script to r.
func Register(r *scene.ScriptRegistry) error {
	return errors.Join(
		r.Register(HealthName, NewHealth),
		r.Register(SpinnerName, NewSpinner),
	)
}

const DefaultMaxHealth = 100

// Health tracks hit points. alive follows health on every update.
type Health struct {
	params *parameter.Set
	owner  *scene.Entity

	health float64
	alive  bool
	max    float64
}

func NewHealth(owner *scene.Entity) (scene.Script, error) {
	h := &Health{
		params: parameter.NewSet(),
		owner:  owner,
		health: DefaultMaxHealth,
		alive:  true,
		max:    DefaultMaxHealth,
	}
	if err := h.params.ScalarVar("health", &h.health); err != nil {
		return nil, err
	}
	if err := h.params.BooleanVar("alive", &h.alive); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Health) Parameters() *parameter.Set { return h.params }

func (h *Health) Health() float64 { return h.health }
func (h *Health) Alive() bool     { return h.alive }

// Damage lowers health, never below zero.
func (h *Health) Damage(amount float64) {
	if amount <= 0 {
		return
	}
	h.health = max(0, h.health-amount)
}

// Heal raises health up to the maximum. Dead owners stay dead.
func (h *Health) Heal(amount float64) {
	if amount <= 0 || !h.alive {
		return
	}
	h.health = min(h.max, h.health+amount)
}

func (h *Health) OnUpdate(scene.UpdateArgs) {
	h.alive = h.health > 0
}

func (h *Health) Destroy() {
	h.owner = nil
}

var yAxis = parameter.Vec3{Y: 1}

// Spinner turns its owner about the Y axis at speed radians per second.
type Spinner struct {
	params *parameter.Set
	owner  *scene.Entity
	speed  float64
}

func NewSpinner(owner *scene.Entity) (scene.Script, error) {
	s := &Spinner{params: parameter.NewSet(), owner: owner}
	if err := s.params.ScalarVar("speed", &s.speed); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Spinner) Parameters() *parameter.Set { return s.params }

func (s *Spinner) Speed() float64           { return s.speed }
func (s *Spinner) SetSpeed(radians float64) { s.speed = radians }

func (s *Spinner) OnUpdate(args scene.UpdateArgs) {
	if s.owner == nil || s.speed == 0 {
		return
	}
	turn := parameter.AxisAngle(yAxis, s.speed*args.DeltaTime)
	s.owner.SetRotation(turn.Mul(s.owner.Rotation()))
}

func (s *Spinner) Destroy() {
	s.owner = nil
}
