package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

type jsonParam struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Value any      `json:"value,omitempty"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Z     *float64 `json:"z,omitempty"`
	W     *float64 `json:"w,omitempty"`
}

type jsonScript struct {
	Name string      `json:"name"`
	Data []jsonParam `json:"data"`
}

type jsonEntity struct {
	ID      uint64       `json:"id"`
	Data    []jsonParam  `json:"data"`
	Scripts []jsonScript `json:"scripts,omitempty"`
}

type jsonMessage struct {
	Message  MessageKind  `json:"message"`
	Version  uint32       `json:"version"`
	Entities []jsonEntity `json:"entities"`
	RPC      []RemoteCall `json:"rpc"`
}

func ptr(f float64) *float64 { return &f }

func encodeJSONParam(d parameter.Descriptor, v parameter.Value) (jsonParam, error) {
	if err := checkKind(d, v); err != nil {
		return jsonParam{}, err
	}
	p := jsonParam{Name: d.Name, Type: d.Kind.String()}
	switch d.Kind {
	case parameter.KindScalar:
		p.Value = v.Scalar
	case parameter.KindBoolean:
		p.Value = v.Bool
	case parameter.KindString:
		p.Value = v.Str
	case parameter.KindVector3:
		p.X, p.Y, p.Z = ptr(v.Vec.X), ptr(v.Vec.Y), ptr(v.Vec.Z)
	case parameter.KindQuaternion:
		p.X, p.Y, p.Z, p.W = ptr(v.Quat.X), ptr(v.Quat.Y), ptr(v.Quat.Z), ptr(v.Quat.W)
	}
	return p, nil
}

func decodeJSONParam(p jsonParam) (ParamRecord, error) {
	kind, err := parameter.ParseKind(p.Type)
	if err != nil {
		return ParamRecord{}, fmt.Errorf("parameter %s: %w", p.Name, err)
	}
	rec := ParamRecord{Name: p.Name}
	malformed := func() error {
		return fmt.Errorf("%w: parameter %s has no %s value", ErrMalformed, p.Name, kind)
	}

	switch kind {
	case parameter.KindScalar:
		f, ok := p.Value.(float64)
		if !ok {
			return rec, malformed()
		}
		rec.Value = parameter.ScalarValue(f)
	case parameter.KindBoolean:
		b, ok := p.Value.(bool)
		if !ok {
			return rec, malformed()
		}
		rec.Value = parameter.BoolValue(b)
	case parameter.KindString:
		s, ok := p.Value.(string)
		if !ok {
			return rec, malformed()
		}
		rec.Value = parameter.StringValue(s)
	case parameter.KindVector3:
		if p.X == nil || p.Y == nil || p.Z == nil {
			return rec, malformed()
		}
		rec.Value = parameter.Vector3Value(parameter.Vec3{X: *p.X, Y: *p.Y, Z: *p.Z})
	case parameter.KindQuaternion:
		if p.X == nil || p.Y == nil || p.Z == nil || p.W == nil {
			return rec, malformed()
		}
		rec.Value = parameter.QuaternionValue(parameter.Quat{X: *p.X, Y: *p.Y, Z: *p.Z, W: *p.W})
	}
	return rec, nil
}

// JSONWriter produces the structured encoding.
type JSONWriter struct {
	version uint32
	maxSize int

	started bool
	msg     jsonMessage
	// size is the exact encoded length of msg so far
	size int

	current *jsonEntity
	script  *jsonScript
}

var _ Writer = (*JSONWriter)(nil)

func NewJSONWriter(version uint32, maxSize int) *JSONWriter {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &JSONWriter{version: version, maxSize: maxSize}
}

func (w *JSONWriter) BeginMessage(kind MessageKind) error {
	w.reset()
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, kind)
	}
	w.msg.Message = kind

	envelope, err := json.Marshal(&w.msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(envelope) > w.maxSize {
		return fmt.Errorf("%w: envelope of %d bytes", ErrBufferFull, len(envelope))
	}
	w.size = len(envelope)
	w.started = true
	return nil
}

// WriteEntity appends e's record. A record that would push the message past
// the size limit is dropped with ErrBufferFull; earlier records are kept.
func (w *JSONWriter) WriteEntity(e *scene.Entity) error {
	if !w.started {
		return ErrNotStarted
	}
	n := len(w.msg.Entities)
	wrote, err := writeEntity(w, e)
	if err != nil || !wrote {
		return err
	}

	if err = w.grow(&w.msg.Entities[n], n); err != nil {
		w.msg.Entities = w.msg.Entities[:n]
		return fmt.Errorf("entity %d: %w", e.ID(), err)
	}
	return nil
}

func (w *JSONWriter) QueueRemoteCall(call RemoteCall) error {
	if !w.started {
		return ErrNotStarted
	}
	if call.Args == nil {
		call.Args = map[string]any{}
	}
	if err := w.grow(&call, len(w.msg.RPC)); err != nil {
		return fmt.Errorf("remote call %s: %w", call.Name, err)
	}
	w.msg.RPC = append(w.msg.RPC, call)
	return nil
}

// grow accounts for one more array element, plus its separator when the
// array already has siblings.
func (w *JSONWriter) grow(element any, siblings int) error {
	encoded, err := json.Marshal(element)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	need := len(encoded)
	if siblings > 0 {
		need++
	}
	if w.size+need > w.maxSize {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrBufferFull, need, w.maxSize-w.size)
	}
	w.size += need
	return nil
}

func (w *JSONWriter) EndMessage() ([]byte, error) {
	defer w.reset()
	if !w.started {
		return nil, ErrNotStarted
	}
	if len(w.msg.Entities) == 0 && len(w.msg.RPC) == 0 {
		return nil, ErrNothingToSend
	}

	data, err := json.Marshal(&w.msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(data) > w.maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrBufferFull, len(data), w.maxSize)
	}
	return data, nil
}

func (w *JSONWriter) reset() {
	w.started = false
	w.size = 0
	w.msg = jsonMessage{
		Version:  w.version,
		Entities: []jsonEntity{},
		RPC:      []RemoteCall{},
	}
	w.current = nil
	w.script = nil
}

func (w *JSONWriter) VisitParameter(d parameter.Descriptor, a parameter.Accessor) error {
	p, err := encodeJSONParam(d, a.Get())
	if err != nil {
		return err
	}
	switch {
	case w.script != nil:
		w.script.Data = append(w.script.Data, p)
	case w.current != nil:
		w.current.Data = append(w.current.Data, p)
	default:
		return ErrNotStarted
	}
	return nil
}

func (w *JSONWriter) beginEntity(id scene.ID) error {
	w.current = &jsonEntity{ID: uint64(id), Data: []jsonParam{}}
	return nil
}

func (w *JSONWriter) beginScript(name string) error {
	w.script = &jsonScript{Name: name}
	return nil
}

func (w *JSONWriter) endScript() error {
	if w.script != nil && len(w.script.Data) > 0 {
		w.current.Scripts = append(w.current.Scripts, *w.script)
	}
	w.script = nil
	return nil
}

func (w *JSONWriter) endEntity() error {
	w.msg.Entities = append(w.msg.Entities, *w.current)
	w.current = nil
	return nil
}

func (w *JSONWriter) abortEntity() {
	w.current = nil
	w.script = nil
}

// DecodeJSON parses a structured-encoding message.
func DecodeJSON(data []byte) (*Message, error) {
	var raw jsonMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !raw.Message.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, raw.Message)
	}

	m := &Message{Kind: raw.Message, Version: raw.Version, Calls: raw.RPC}
	for _, je := range raw.Entities {
		rec := EntityRecord{ID: je.ID}
		for _, p := range je.Data {
			pr, err := decodeJSONParam(p)
			if err != nil {
				return nil, err
			}
			rec.Params = append(rec.Params, pr)
		}
		for _, js := range je.Scripts {
			sr := ScriptRecord{Name: js.Name}
			for _, p := range js.Data {
				pr, err := decodeJSONParam(p)
				if err != nil {
					return nil, err
				}
				sr.Params = append(sr.Params, pr)
			}
			rec.Scripts = append(rec.Scripts, sr)
		}
		m.Entities = append(m.Entities, rec)
	}
	return m, nil
}

// JSONReader applies structured-encoding messages.
type JSONReader struct{}

var _ Reader = JSONReader{}

func NewJSONReader() JSONReader { return JSONReader{} }

func (JSONReader) Read(s *scene.Scene, data []byte) ([]RemoteCall, error) {
	m, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	if err = Apply(s, m); err != nil {
		return nil, err
	}
	return m.Calls, nil
}
