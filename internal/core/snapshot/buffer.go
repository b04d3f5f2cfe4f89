package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/zeusync/scenesync/pkg/generic"
)

const (
	sizeofUint8  = 1
	sizeofUint16 = 2
	sizeofUint32 = 4
	sizeofUint64 = 8

	// HeaderSize is checksum + protocol version + message tag.
	HeaderSize = 3 * sizeofUint32
)

// scratch buffers are shared by every binary writer in the process
var scratchPool = generic.NewPoolWithReset(func() *[]byte {
	b := make([]byte, 0, DefaultMaxMessageSize)
	return &b
}, func(b *[]byte) {
	*b = (*b)[:0]
})

// BufferWriter appends big-endian fixed-width fields to a bounded buffer.
// Every write fails with ErrBufferFull instead of growing past the limit.
type BufferWriter struct {
	buf   []byte
	limit int
}

func NewBufferWriter(buf []byte, limit int) *BufferWriter {
	return &BufferWriter{buf: buf[:0], limit: limit}
}

func (w *BufferWriter) Len() int      { return len(w.buf) }
func (w *BufferWriter) Bytes() []byte { return w.buf }

// Truncate drops everything written after offset n.
func (w *BufferWriter) Truncate(n int) {
	if n >= 0 && n <= len(w.buf) {
		w.buf = w.buf[:n]
	}
}

func (w *BufferWriter) reserve(n int) error {
	if len(w.buf)+n > w.limit {
		return fmt.Errorf("%w: need %d bytes, %d available", ErrBufferFull, n, w.limit-len(w.buf))
	}
	return nil
}

func (w *BufferWriter) Uint8(v uint8) error {
	if err := w.reserve(sizeofUint8); err != nil {
		return err
	}
	w.buf = append(w.buf, v)
	return nil
}

func (w *BufferWriter) Uint16(v uint16) error {
	if err := w.reserve(sizeofUint16); err != nil {
		return err
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return nil
}

func (w *BufferWriter) Uint32(v uint32) error {
	if err := w.reserve(sizeofUint32); err != nil {
		return err
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return nil
}

func (w *BufferWriter) Uint64(v uint64) error {
	if err := w.reserve(sizeofUint64); err != nil {
		return err
	}
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	return nil
}

func (w *BufferWriter) Float64(v float64) error {
	return w.Uint64(math.Float64bits(v))
}

func (w *BufferWriter) Bool(v bool) error {
	if v {
		return w.Uint8(1)
	}
	return w.Uint8(0)
}

// Text writes a 16-bit length prefix followed by the raw bytes of s.
func (w *BufferWriter) Text(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: string of %d bytes", ErrBufferFull, len(s))
	}
	if err := w.reserve(sizeofUint16 + len(s)); err != nil {
		return err
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

// Blob writes a 32-bit length prefix followed by b.
func (w *BufferWriter) Blob(b []byte) error {
	if err := w.reserve(sizeofUint32 + len(b)); err != nil {
		return err
	}
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

// PutUint16At overwrites a previously reserved 16-bit slot.
func (w *BufferWriter) PutUint16At(offset int, v uint16) {
	binary.BigEndian.PutUint16(w.buf[offset:], v)
}

// Checksum computes CRC-32 (IEEE) over everything after the checksum slot
// and stores it in the first four bytes. It reports false when the buffer
// holds no more than the checksum slot itself.
func (w *BufferWriter) Checksum() bool {
	if len(w.buf) <= sizeofUint32 {
		return false
	}
	binary.BigEndian.PutUint32(w.buf, crc32.ChecksumIEEE(w.buf[sizeofUint32:]))
	return true
}

// bufferReader is the decoding counterpart of BufferWriter.
type bufferReader struct {
	buf []byte
	off int
}

func (r *bufferReader) need(n int) error {
	if r.off+n > len(r.buf) {
		return fmt.Errorf("%w: truncated at offset %d", ErrMalformed, r.off)
	}
	return nil
}

func (r *bufferReader) u8() (uint8, error) {
	if err := r.need(sizeofUint8); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off += sizeofUint8
	return v, nil
}

func (r *bufferReader) u16() (uint16, error) {
	if err := r.need(sizeofUint16); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += sizeofUint16
	return v, nil
}

func (r *bufferReader) u32() (uint32, error) {
	if err := r.need(sizeofUint32); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += sizeofUint32
	return v, nil
}

func (r *bufferReader) u64() (uint64, error) {
	if err := r.need(sizeofUint64); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += sizeofUint64
	return v, nil
}

func (r *bufferReader) f64() (float64, error) {
	bits, err := r.u64()
	return math.Float64frombits(bits), err
}

func (r *bufferReader) str() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	if err = r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func (r *bufferReader) blob() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(r.off)+uint64(n) > uint64(len(r.buf)) {
		return nil, fmt.Errorf("%w: blob of %d bytes overruns frame", ErrMalformed, n)
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}
