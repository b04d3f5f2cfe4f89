package parameter

import "fmt"

// Descriptor names and types one replicated field.
type Descriptor struct {
	Name string
	Kind Kind
}

// Accessor reads and writes the field bound to a descriptor.
type Accessor interface {
	Get() Value
	Set(Value) error
}

// Visitor is implemented by every encoder and decoder. It is invoked once per
// registered parameter, in registration order.
type Visitor interface {
	VisitParameter(d Descriptor, a Accessor) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(d Descriptor, a Accessor) error

func (f VisitorFunc) VisitParameter(d Descriptor, a Accessor) error {
	return f(d, a)
}

// Owner is anything carrying a replicated parameter set.
type Owner interface {
	Parameters() *Set
}

type binding struct {
	desc Descriptor
	get  func() Value
	set  func(Value)
}

func (b *binding) Get() Value {
	return b.get()
}

func (b *binding) Set(v Value) error {
	if v.Kind != b.desc.Kind {
		return &MismatchError{Name: b.desc.Name, Expected: b.desc.Kind, Received: v.Kind}
	}
	b.set(v)
	return nil
}

// Set holds parameter descriptors and their accessors. The registration order
// is the wire order. A Set is not safe for concurrent registration.
type Set struct {
	bindings []*binding
	index    map[string]int
}

func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Register binds name to the given accessor closures.
func (s *Set) Register(name string, kind Kind, get func() Value, set func(Value)) error {
	if name == "" {
		return ErrEmptyName
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if get == nil || set == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, exists := s.index[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}

	s.index[name] = len(s.bindings)
	s.bindings = append(s.bindings, &binding{
		desc: Descriptor{Name: name, Kind: kind},
		get:  get,
		set:  set,
	})
	return nil
}

func (s *Set) BindScalar(name string, get func() float64, set func(float64)) error {
	if get == nil || set == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.Register(name, KindScalar,
		func() Value { return ScalarValue(get()) },
		func(v Value) { set(v.Scalar) })
}

func (s *Set) BindBoolean(name string, get func() bool, set func(bool)) error {
	if get == nil || set == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.Register(name, KindBoolean,
		func() Value { return BoolValue(get()) },
		func(v Value) { set(v.Bool) })
}

func (s *Set) BindString(name string, get func() string, set func(string)) error {
	if get == nil || set == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.Register(name, KindString,
		func() Value { return StringValue(get()) },
		func(v Value) { set(v.Str) })
}

func (s *Set) BindVector3(name string, get func() Vec3, set func(Vec3)) error {
	if get == nil || set == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.Register(name, KindVector3,
		func() Value { return Vector3Value(get()) },
		func(v Value) { set(v.Vec) })
}

func (s *Set) BindQuaternion(name string, get func() Quat, set func(Quat)) error {
	if get == nil || set == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.Register(name, KindQuaternion,
		func() Value { return QuaternionValue(get()) },
		func(v Value) { set(v.Quat) })
}

// ScalarVar binds name directly to *p.
func (s *Set) ScalarVar(name string, p *float64) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.BindScalar(name, func() float64 { return *p }, func(f float64) { *p = f })
}

func (s *Set) BooleanVar(name string, p *bool) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.BindBoolean(name, func() bool { return *p }, func(b bool) { *p = b })
}

func (s *Set) StringVar(name string, p *string) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.BindString(name, func() string { return *p }, func(v string) { *p = v })
}

func (s *Set) Vector3Var(name string, p *Vec3) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.BindVector3(name, func() Vec3 { return *p }, func(v Vec3) { *p = v })
}

func (s *Set) QuaternionVar(name string, p *Quat) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNilAccessor, name)
	}
	return s.BindQuaternion(name, func() Quat { return *p }, func(q Quat) { *p = q })
}

// MustRegister panics on registration failure. Intended for constructors
// registering a fixed, known-good set of parameters.
func MustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

// Accept walks every descriptor in registration order, stopping at the first
// error returned by the visitor.
func (s *Set) Accept(v Visitor) error {
	if s == nil {
		return nil
	}
	for _, b := range s.bindings {
		if err := v.VisitParameter(b.desc, b); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors returns a copy of the descriptors in registration order.
func (s *Set) Descriptors() []Descriptor {
	if s == nil {
		return nil
	}
	out := make([]Descriptor, len(s.bindings))
	for i, b := range s.bindings {
		out[i] = b.desc
	}
	return out
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.bindings)
}

func (s *Set) Lookup(name string) (Descriptor, bool) {
	if s == nil {
		return Descriptor{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.bindings[i].desc, true
}

// Get reads the current value of name.
func (s *Set) Get(name string) (Value, error) {
	if s == nil {
		return Value{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	i, ok := s.index[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.bindings[i].Get(), nil
}

// Set writes v into the field bound to name. A kind mismatch returns a
// *MismatchError and leaves the field untouched.
func (s *Set) Set(name string, v Value) error {
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	i, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.bindings[i].Set(v)
}
