package network

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeusync/scenesync/internal/core/scene"
	"github.com/zeusync/scenesync/internal/core/snapshot"
)

// Client is the connection record for one remote observer. The writer and
// send timestamp belong to the tick goroutine; the remote-call queue may be
// appended to from any goroutine.
type Client struct {
	id     uint64
	sink   Sink
	writer snapshot.Writer

	interval time.Duration
	lastSent time.Time
	sentOnce bool

	mu      sync.Mutex
	pending []snapshot.RemoteCall
}

func newClient(id uint64, sink Sink, writer snapshot.Writer, snapsPerSecond int) *Client {
	c := &Client{id: id, sink: sink, writer: writer}
	_ = c.SetSnapsPerSecond(snapsPerSecond)
	return c
}

func (c *Client) ID() uint64 { return c.id }

// Interval is the minimum time between two snapshots for this client.
func (c *Client) Interval() time.Duration { return c.interval }

// SetSnapsPerSecond changes the client's snapshot cadence.
func (c *Client) SetSnapsPerSecond(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRate, n)
	}
	c.interval = time.Second / time.Duration(n)
	return nil
}

// LastSent returns the time of the last snapshot handed to the sink, and
// false if none has been sent yet.
func (c *Client) LastSent() (time.Time, bool) { return c.lastSent, c.sentOnce }

// IsDue reports whether at least one interval has passed since the last
// send. A client that has never been sent to is always due.
func (c *Client) IsDue(now time.Time) bool {
	if !c.sentOnce {
		return true
	}
	return now.Sub(c.lastSent) >= c.interval
}

// CallRPC queues a remote call for this client's next message.
func (c *Client) CallRPC(name string, args map[string]any) error {
	if name == "" {
		return ErrEmptyCallName
	}
	c.mu.Lock()
	c.pending = append(c.pending, snapshot.RemoteCall{Name: name, Args: args})
	c.mu.Unlock()
	return nil
}

// PendingCalls counts queued remote calls.
func (c *Client) PendingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) pendingSnapshot() []snapshot.RemoteCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]snapshot.RemoteCall(nil), c.pending...)
}

// serialize builds one message from entities and the calls queued so far. It
// reports how many queued calls went into the message.
func (c *Client) serialize(entities []*scene.Entity) ([]byte, int, error) {
	calls := c.pendingSnapshot()

	if err := c.writer.BeginMessage(snapshot.MessageStateData); err != nil {
		return nil, 0, err
	}
	for _, e := range entities {
		if err := c.writer.WriteEntity(e); err != nil {
			// the writer dropped the partial record; a full buffer still
			// leaves the entities written so far
			if errors.Is(err, snapshot.ErrBufferFull) {
				break
			}
			_, _ = c.writer.EndMessage()
			return nil, 0, err
		}
	}
	for _, call := range calls {
		if err := c.writer.QueueRemoteCall(call); err != nil {
			_, _ = c.writer.EndMessage()
			return nil, 0, err
		}
	}

	data, err := c.writer.EndMessage()
	if err != nil {
		return nil, 0, err
	}
	return data, len(calls), nil
}

// markSent records a successful handoff and drops the first n queued calls,
// which are the ones included in the message.
func (c *Client) markSent(now time.Time, n int) {
	c.lastSent = now
	c.sentOnce = true

	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= len(c.pending) {
		c.pending = c.pending[:0]
		return
	}
	c.pending = append(c.pending[:0], c.pending[n:]...)
}
