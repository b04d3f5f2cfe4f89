package scene

import (
	"fmt"
	"slices"

	"github.com/zeusync/scenesync/internal/core/parameter"
)

// ID identifies an entity within a scene. Ids are never reused.
type ID uint64

// RootID and RootName are reserved for the scene's root entity.
const RootID ID = 0

const RootName = "root"

// NamedScript pairs a script with the slot name it was attached under.
type NamedScript struct {
	Name   string
	Script Script
}

// Entity is a node in the scene hierarchy. Parent and children are held as
// ids and resolved through the owning scene, which alone owns entity lifetime.
type Entity struct {
	id    ID
	name  string
	scene *Scene

	parent    ID
	hasParent bool
	children  []ID

	role    Role
	enabled bool

	params   *parameter.Set
	position parameter.Vec3
	rotation parameter.Quat

	scripts     []NamedScript
	scriptIndex map[string]int
}

func newEntity(id ID, name string, s *Scene, role Role) *Entity {
	e := &Entity{
		id:          id,
		name:        name,
		scene:       s,
		role:        role,
		enabled:     true,
		params:      parameter.NewSet(),
		rotation:    parameter.IdentityQuat(),
		scriptIndex: make(map[string]int),
	}
	parameter.MustRegister(e.params.Vector3Var("position", &e.position))
	parameter.MustRegister(e.params.QuaternionVar("rotation", &e.rotation))
	return e
}

func (e *Entity) ID() ID       { return e.id }
func (e *Entity) Name() string { return e.name }

// Scene returns the owning scene, or nil once the entity has been removed.
func (e *Entity) Scene() *Scene { return e.scene }

func (e *Entity) Role() Role         { return e.role }
func (e *Entity) SetRole(role Role)  { e.role = role }
func (e *Entity) Enabled() bool      { return e.enabled }
func (e *Entity) SetEnabled(on bool) { e.enabled = on }

// Parameters exposes the entity's replicated fields. position and rotation
// are always registered first.
func (e *Entity) Parameters() *parameter.Set { return e.params }

func (e *Entity) Position() parameter.Vec3 { return e.position }

func (e *Entity) SetPosition(x, y, z float64) {
	e.position = parameter.Vec3{X: x, Y: y, Z: z}
}

func (e *Entity) SetPositionVec(v parameter.Vec3) { e.position = v }

func (e *Entity) Rotation() parameter.Quat     { return e.rotation }
func (e *Entity) SetRotation(q parameter.Quat) { e.rotation = q }

// Parent returns the parent entity, or nil for a detached entity.
func (e *Entity) Parent() *Entity {
	if !e.hasParent || e.scene == nil {
		return nil
	}
	return e.scene.byID[e.parent]
}

// Children resolves the child list in attachment order.
func (e *Entity) Children() []*Entity {
	if e.scene == nil {
		return nil
	}
	out := make([]*Entity, 0, len(e.children))
	for _, id := range e.children {
		if child, ok := e.scene.byID[id]; ok {
			out = append(out, child)
		}
	}
	return out
}

func (e *Entity) ChildCount() int { return len(e.children) }

// AddChild attaches child under e, detaching it from any previous parent.
// A nil child or e itself is ignored.
func (e *Entity) AddChild(child *Entity) error {
	if child == nil || child == e {
		return nil
	}
	if child.scene != e.scene {
		return fmt.Errorf("add child %s to %s: %w", child.name, e.name, ErrForeignEntity)
	}
	for p := e.Parent(); p != nil; p = p.Parent() {
		if p == child {
			return fmt.Errorf("add child %s to %s: %w", child.name, e.name, ErrHierarchyCycle)
		}
	}

	if parent := child.Parent(); parent != nil {
		parent.RemoveChild(child)
	}
	e.children = append(e.children, child.id)
	child.parent = e.id
	child.hasParent = true
	return nil
}

// RemoveChild detaches child if e is its parent.
func (e *Entity) RemoveChild(child *Entity) {
	if child == nil || !child.hasParent || child.parent != e.id {
		return
	}
	if i := slices.Index(e.children, child.id); i >= 0 {
		e.children = slices.Delete(e.children, i, i+1)
		child.hasParent = false
		child.parent = 0
	}
}

// AddScript attaches s under name. Scripts update and serialize in the order
// they were added.
func (e *Entity) AddScript(name string, s Script) error {
	if s == nil {
		return fmt.Errorf("add script %s: %w", name, ErrNilScript)
	}
	if _, exists := e.scriptIndex[name]; exists {
		return fmt.Errorf("add script %s: %w", name, ErrScriptExists)
	}
	e.scriptIndex[name] = len(e.scripts)
	e.scripts = append(e.scripts, NamedScript{Name: name, Script: s})
	return nil
}

// Script returns the script attached under name.
func (e *Entity) Script(name string) (Script, bool) {
	i, ok := e.scriptIndex[name]
	if !ok {
		return nil, false
	}
	return e.scripts[i].Script, true
}

// Scripts returns the attached scripts in attachment order.
func (e *Entity) Scripts() []NamedScript {
	return slices.Clone(e.scripts)
}

// CreateScripts instantiates each named script through registry and
// attaches it under the same name.
func (e *Entity) CreateScripts(registry *ScriptRegistry, names []string) error {
	for _, name := range names {
		s, err := registry.Create(name, e)
		if err != nil {
			return err
		}
		if err = e.AddScript(name, s); err != nil {
			return err
		}
	}
	return nil
}

// OnUpdate runs every attached script's update hook.
func (e *Entity) OnUpdate(args UpdateArgs) {
	for _, ns := range e.scripts {
		ns.Script.OnUpdate(args)
	}
}

// Destroy tears the entity down: descendants first, then the link to the
// parent, then scripts, and finally the scene entry. Destroying an entity
// that has already left its scene does nothing.
func (e *Entity) Destroy() error {
	if e.scene == nil {
		return nil
	}
	if e.id == RootID && e.scene.root == e {
		return ErrRootEntity
	}

	for len(e.children) > 0 {
		child, ok := e.scene.byID[e.children[0]]
		if !ok {
			e.children = e.children[1:]
			continue
		}
		if err := child.Destroy(); err != nil {
			return err
		}
		if len(e.children) > 0 && e.children[0] == child.id {
			e.children = e.children[1:]
		}
	}

	if parent := e.Parent(); parent != nil {
		parent.RemoveChild(e)
	}

	for _, ns := range e.scripts {
		ns.Script.Destroy()
	}

	return e.scene.RemoveEntity(e)
}

// activeInHierarchy reports whether e and all of its ancestors are enabled.
func (e *Entity) activeInHierarchy() bool {
	for cur := e; cur != nil; cur = cur.Parent() {
		if !cur.enabled {
			return false
		}
	}
	return true
}
