package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

// BinaryWriter produces checksummed big-endian frames:
//
//	[checksum u32][version u32][tag u32][entity count u16][entities...][rpc count u16][calls...]
//
// The checksum covers every byte after its own slot and is written last.
type BinaryWriter struct {
	version uint32
	maxSize int

	scratch *[]byte
	buf     *BufferWriter

	started  bool
	entities int
	calls    []RemoteCall

	entityMark    int
	paramCountAt  int
	params        int
	scriptCountAt int
	scripts       int

	inScript           bool
	scriptMark         int
	scriptParamCountAt int
	scriptParams       int
}

var _ Writer = (*BinaryWriter)(nil)

func NewBinaryWriter(version uint32, maxSize int) *BinaryWriter {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &BinaryWriter{version: version, maxSize: maxSize}
}

func (w *BinaryWriter) BeginMessage(kind MessageKind) error {
	w.release()
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, kind)
	}
	if w.maxSize < HeaderSize+2*sizeofUint16 {
		return fmt.Errorf("%w: limit %d is smaller than an empty frame", ErrBufferFull, w.maxSize)
	}

	w.scratch = scratchPool.Get()
	w.buf = NewBufferWriter(*w.scratch, w.maxSize)
	// header and entity count always fit, checked above
	_ = w.buf.Uint32(0)
	_ = w.buf.Uint32(w.version)
	_ = w.buf.Uint32(kind.Tag())
	_ = w.buf.Uint16(0)
	w.started = true
	return nil
}

func (w *BinaryWriter) WriteEntity(e *scene.Entity) error {
	if !w.started {
		return ErrNotStarted
	}
	wrote, err := writeEntity(w, e)
	if wrote {
		w.entities++
	}
	return err
}

func (w *BinaryWriter) QueueRemoteCall(call RemoteCall) error {
	if !w.started {
		return ErrNotStarted
	}
	w.calls = append(w.calls, call)
	return nil
}

func (w *BinaryWriter) EndMessage() ([]byte, error) {
	defer w.release()
	if !w.started {
		return nil, ErrNotStarted
	}
	if w.entities == 0 && len(w.calls) == 0 {
		return nil, ErrNothingToSend
	}
	if w.entities > math.MaxUint16 || len(w.calls) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: too many records", ErrBufferFull)
	}

	if err := w.buf.Uint16(uint16(len(w.calls))); err != nil {
		return nil, err
	}
	for _, call := range w.calls {
		args := call.Args
		if args == nil {
			args = map[string]any{}
		}
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode args for %s: %w", call.Name, err)
		}
		if err = w.buf.Text(call.Name); err != nil {
			return nil, err
		}
		if err = w.buf.Blob(encoded); err != nil {
			return nil, err
		}
	}

	w.buf.PutUint16At(HeaderSize, uint16(w.entities))
	if !w.buf.Checksum() {
		return nil, ErrShortMessage
	}
	return bytes.Clone(w.buf.Bytes()), nil
}

func (w *BinaryWriter) release() {
	if w.scratch != nil {
		*w.scratch = w.buf.Bytes()
		scratchPool.Put(w.scratch)
	}
	w.scratch = nil
	w.buf = nil
	w.started = false
	w.entities = 0
	w.calls = nil
	w.inScript = false
}

func (w *BinaryWriter) beginEntity(id scene.ID) error {
	w.entityMark = w.buf.Len()
	w.params, w.scripts, w.scriptCountAt = 0, 0, -1
	if err := w.buf.Uint64(uint64(id)); err != nil {
		return err
	}
	w.paramCountAt = w.buf.Len()
	return w.buf.Uint16(0)
}

func (w *BinaryWriter) beginScript(name string) error {
	if w.scriptCountAt < 0 {
		w.scriptCountAt = w.buf.Len()
		if err := w.buf.Uint8(0); err != nil {
			return err
		}
	}
	w.inScript = true
	w.scriptMark = w.buf.Len()
	w.scriptParams = 0
	if err := w.buf.Text(name); err != nil {
		return err
	}
	w.scriptParamCountAt = w.buf.Len()
	return w.buf.Uint16(0)
}

func (w *BinaryWriter) endScript() error {
	w.inScript = false
	if w.scriptParams == 0 {
		w.buf.Truncate(w.scriptMark)
		return nil
	}
	if w.scripts == math.MaxUint8 {
		return fmt.Errorf("%w: more than %d scripts", ErrBufferFull, math.MaxUint8)
	}
	w.buf.PutUint16At(w.scriptParamCountAt, uint16(w.scriptParams))
	w.scripts++
	return nil
}

func (w *BinaryWriter) endEntity() error {
	if w.scriptCountAt < 0 {
		w.scriptCountAt = w.buf.Len()
		if err := w.buf.Uint8(0); err != nil {
			return err
		}
	}
	w.buf.PutUint16At(w.paramCountAt, uint16(w.params))
	w.buf.Bytes()[w.scriptCountAt] = uint8(w.scripts)
	return nil
}

func (w *BinaryWriter) abortEntity() {
	w.buf.Truncate(w.entityMark)
	w.inScript = false
}

func (w *BinaryWriter) VisitParameter(d parameter.Descriptor, a parameter.Accessor) error {
	count := &w.params
	if w.inScript {
		count = &w.scriptParams
	}
	if *count == math.MaxUint16 {
		return fmt.Errorf("%w: more than %d parameters", ErrBufferFull, math.MaxUint16)
	}

	v := a.Get()
	if err := checkKind(d, v); err != nil {
		return err
	}
	if err := w.buf.Text(d.Name); err != nil {
		return err
	}
	if err := w.buf.Uint8(uint8(d.Kind)); err != nil {
		return err
	}
	if err := writeValue(w.buf, v); err != nil {
		return err
	}
	*count++
	return nil
}

func writeValue(buf *BufferWriter, v parameter.Value) error {
	switch v.Kind {
	case parameter.KindScalar:
		return buf.Float64(v.Scalar)
	case parameter.KindBoolean:
		return buf.Bool(v.Bool)
	case parameter.KindString:
		return buf.Text(v.Str)
	case parameter.KindVector3:
		for _, f := range [...]float64{v.Vec.X, v.Vec.Y, v.Vec.Z} {
			if err := buf.Float64(f); err != nil {
				return err
			}
		}
		return nil
	case parameter.KindQuaternion:
		for _, f := range [...]float64{v.Quat.X, v.Quat.Y, v.Quat.Z, v.Quat.W} {
			if err := buf.Float64(f); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, v.Kind)
	}
}

// DecodeBinary verifies and parses a binary frame produced for version.
func DecodeBinary(data []byte, version uint32) (*Message, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}
	stored := binary.BigEndian.Uint32(data)
	if sum := crc32.ChecksumIEEE(data[sizeofUint32:]); sum != stored {
		return nil, fmt.Errorf("%w: frame says %#08x, computed %#08x", ErrChecksumMismatch, stored, sum)
	}
	got := binary.BigEndian.Uint32(data[sizeofUint32:])
	if got != version {
		return nil, fmt.Errorf("%w: expected %d, received %d", ErrVersionMismatch, version, got)
	}
	kind, err := kindFromTag(binary.BigEndian.Uint32(data[2*sizeofUint32:]))
	if err != nil {
		return nil, err
	}

	r := &bufferReader{buf: data, off: HeaderSize}
	m := &Message{Kind: kind, Version: got}

	entityCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(entityCount); i++ {
		rec, err := readEntityRecord(r)
		if err != nil {
			return nil, err
		}
		m.Entities = append(m.Entities, rec)
	}

	callCount, err := r.u16()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(callCount); i++ {
		call, err := readRemoteCall(r)
		if err != nil {
			return nil, err
		}
		m.Calls = append(m.Calls, call)
	}

	if r.off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-r.off)
	}
	return m, nil
}

func readEntityRecord(r *bufferReader) (EntityRecord, error) {
	var rec EntityRecord
	id, err := r.u64()
	if err != nil {
		return rec, err
	}
	rec.ID = id
	if rec.Params, err = readParams(r); err != nil {
		return rec, err
	}

	scriptCount, err := r.u8()
	if err != nil {
		return rec, err
	}
	for i := 0; i < int(scriptCount); i++ {
		name, err := r.str()
		if err != nil {
			return rec, err
		}
		params, err := readParams(r)
		if err != nil {
			return rec, err
		}
		rec.Scripts = append(rec.Scripts, ScriptRecord{Name: name, Params: params})
	}
	return rec, nil
}

func readParams(r *bufferReader) ([]ParamRecord, error) {
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	params := make([]ParamRecord, 0, count)
	for i := 0; i < int(count); i++ {
		name, err := r.str()
		if err != nil {
			return nil, err
		}
		rawKind, err := r.u8()
		if err != nil {
			return nil, err
		}
		v, err := readValue(r, parameter.Kind(rawKind))
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		params = append(params, ParamRecord{Name: name, Value: v})
	}
	return params, nil
}

func readValue(r *bufferReader, kind parameter.Kind) (parameter.Value, error) {
	switch kind {
	case parameter.KindScalar:
		f, err := r.f64()
		return parameter.ScalarValue(f), err
	case parameter.KindBoolean:
		b, err := r.u8()
		return parameter.BoolValue(b != 0), err
	case parameter.KindString:
		s, err := r.str()
		return parameter.StringValue(s), err
	case parameter.KindVector3:
		var c [3]float64
		for i := range c {
			f, err := r.f64()
			if err != nil {
				return parameter.Value{}, err
			}
			c[i] = f
		}
		return parameter.Vector3Value(parameter.Vec3{X: c[0], Y: c[1], Z: c[2]}), nil
	case parameter.KindQuaternion:
		var c [4]float64
		for i := range c {
			f, err := r.f64()
			if err != nil {
				return parameter.Value{}, err
			}
			c[i] = f
		}
		return parameter.QuaternionValue(parameter.Quat{X: c[0], Y: c[1], Z: c[2], W: c[3]}), nil
	default:
		return parameter.Value{}, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
}

func readRemoteCall(r *bufferReader) (RemoteCall, error) {
	name, err := r.str()
	if err != nil {
		return RemoteCall{}, err
	}
	raw, err := r.blob()
	if err != nil {
		return RemoteCall{}, err
	}
	call := RemoteCall{Name: name}
	if err = json.Unmarshal(raw, &call.Args); err != nil {
		return RemoteCall{}, fmt.Errorf("%w: args for %s: %v", ErrMalformed, name, err)
	}
	return call, nil
}

// BinaryReader applies binary frames for a fixed protocol version.
type BinaryReader struct {
	version uint32
}

var _ Reader = (*BinaryReader)(nil)

func NewBinaryReader(version uint32) *BinaryReader {
	return &BinaryReader{version: version}
}

func (r *BinaryReader) Read(s *scene.Scene, data []byte) ([]RemoteCall, error) {
	m, err := DecodeBinary(data, r.version)
	if err != nil {
		return nil, err
	}
	if err = Apply(s, m); err != nil {
		return nil, err
	}
	return m.Calls, nil
}
