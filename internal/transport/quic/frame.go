package quic

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const frameHeaderSize = 8

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// writeFrame writes an 8-byte big-endian length followed by data in a single
// Write so that concurrent writers never interleave.
func writeFrame(w io.Writer, data []byte) error {
	frame := make([]byte, frameHeaderSize+len(data))
	binary.BigEndian.PutUint64(frame, uint64(len(data)))
	copy(frame[frameHeaderSize:], data)

	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

// readFrame returns io.EOF untouched when the stream ends on a frame boundary.
func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read frame header")
	}

	length := binary.BigEndian.Uint64(header[:])
	if maxSize > 0 && length > uint64(maxSize) {
		return nil, errors.Wrapf(ErrFrameTooLarge, "%d > %d bytes", length, maxSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Wrap(err, "failed to read frame body")
	}
	return data, nil
}
