package snapshot

import (
	"fmt"
	"hash/crc32"

	"github.com/zeusync/scenesync/internal/core/parameter"
	"github.com/zeusync/scenesync/internal/core/scene"
)

type MessageKind string

const (
	MessageStateData MessageKind = "STATE_DATA"
	MessageRPC       MessageKind = "RPC"
)

func (k MessageKind) Valid() bool {
	return k == MessageStateData || k == MessageRPC
}

// Tag is the 32-bit identifier carried in a binary frame header.
func (k MessageKind) Tag() uint32 {
	return crc32.ChecksumIEEE([]byte(k))
}

func kindFromTag(tag uint32) (MessageKind, error) {
	for _, k := range []MessageKind{MessageStateData, MessageRPC} {
		if k.Tag() == tag {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: tag %#08x", ErrUnknownMessage, tag)
}

// RemoteCall is a fire-and-forget named invocation.
type RemoteCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ParamRecord is one decoded parameter value.
type ParamRecord struct {
	Name  string
	Value parameter.Value
}

type ScriptRecord struct {
	Name   string
	Params []ParamRecord
}

type EntityRecord struct {
	ID      uint64
	Params  []ParamRecord
	Scripts []ScriptRecord
}

// Message is the decoded, encoding-independent form of an inbound frame.
type Message struct {
	Kind     MessageKind
	Version  uint32
	Entities []EntityRecord
	Calls    []RemoteCall
}

// Writer serializes one outbound message at a time. A Writer is owned by a
// single client and must not be shared between goroutines.
type Writer interface {
	// BeginMessage discards any previous state and starts a message of kind.
	BeginMessage(kind MessageKind) error
	// WriteEntity appends e according to its network role.
	WriteEntity(e *scene.Entity) error
	// QueueRemoteCall adds call to the message being built.
	QueueRemoteCall(call RemoteCall) error
	// EndMessage finalizes the message. It returns ErrNothingToSend when no
	// entity or call was queued. The returned slice is owned by the caller.
	EndMessage() ([]byte, error)
}

// Reader applies an inbound frame onto a scene and returns the remote calls
// it carried.
type Reader interface {
	Read(s *scene.Scene, data []byte) ([]RemoteCall, error)
}

type Encoding string

const (
	EncodingJSON   Encoding = "json"
	EncodingBinary Encoding = "binary"
)

// DefaultMaxMessageSize bounds a single serialized message.
const DefaultMaxMessageSize = 16 * 1024

// NewWriter builds a writer for enc. maxSize <= 0 selects DefaultMaxMessageSize.
func NewWriter(enc Encoding, version uint32, maxSize int) (Writer, error) {
	switch enc {
	case EncodingJSON, "":
		return NewJSONWriter(version, maxSize), nil
	case EncodingBinary:
		return NewBinaryWriter(version, maxSize), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}

func NewReader(enc Encoding, version uint32) (Reader, error) {
	switch enc {
	case EncodingJSON, "":
		return NewJSONReader(), nil
	case EncodingBinary:
		return NewBinaryReader(version), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)
	}
}
