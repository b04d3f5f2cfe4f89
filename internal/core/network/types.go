package network

import (
	"errors"
	"fmt"
	"time"
)

const (
	// BaseClientID is the first id handed out, and the value the counter
	// returns to once every client has disconnected.
	BaseClientID uint64 = 1000

	DefaultSnapsPerSecond = 60
)

var (
	ErrNilSink        = errors.New("client sink is nil")
	ErrInvalidRate    = errors.New("snapshot rate must be positive")
	ErrClientNotFound = errors.New("client not found")
	ErrEmptyCallName  = errors.New("remote call name is empty")
)

// Sink is the transport-side handoff for one client. Send must not retain
// data after it returns.
type Sink interface {
	Send(data []byte) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(data []byte) error

func (f SinkFunc) Send(data []byte) error { return f(data) }

// Clock supplies the time used for snapshot cadence.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
var SystemClock Clock = systemClock{}

// RPCType says where a remote call executes.
type RPCType uint8

const (
	RPCClient RPCType = iota
	RPCServer
	RPCMulticast
)

var rpcTypeNames = map[RPCType]string{
	RPCClient:    "CLIENT",
	RPCServer:    "SERVER",
	RPCMulticast: "MULTICAST",
}

func (t RPCType) String() string {
	if name, ok := rpcTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("RPCType(%d)", uint8(t))
}

func ParseRPCType(s string) (RPCType, error) {
	for t, name := range rpcTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown rpc type %q", s)
}

// Recorder receives replication measurements. *metrics.ReplicationCollector
// satisfies it.
type Recorder interface {
	SnapshotSent(encoding string, size int)
	SnapshotSkipped()
	RemoteCallsQueued(n int)
	ClientsConnected(n int)
	SerializeTook(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SnapshotSent(string, int)    {}
func (nopRecorder) SnapshotSkipped()            {}
func (nopRecorder) RemoteCallsQueued(int)       {}
func (nopRecorder) ClientsConnected(int)        {}
func (nopRecorder) SerializeTook(time.Duration) {}
