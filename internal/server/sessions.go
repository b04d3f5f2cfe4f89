package server

import (
	"github.com/zeusync/scenesync/internal/core/events/bus"
	"github.com/zeusync/scenesync/internal/core/network"
	"github.com/zeusync/scenesync/internal/core/observability/log"
	"github.com/zeusync/scenesync/internal/core/snapshot"
	"github.com/zeusync/scenesync/internal/transport"
	"github.com/zeusync/scenesync/pkg/concurrent"
)

var _ transport.Handler = (*Server)(nil)

type session struct {
	conn   transport.Conn
	client *network.Client
}

// inbound is a frame waiting for the tick goroutine.
type inbound struct {
	clientID uint64
	data     []byte
}

type decoded struct {
	msg *snapshot.Message
	err error
}

// Connected registers a network client whose sink is conn.
func (s *Server) Connected(conn transport.Conn) error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	client, err := s.network.CreateClient(network.SinkFunc(conn.Send))
	if err != nil {
		return err
	}

	s.connMu.Lock()
	s.sessions[conn.ID()] = &session{conn: conn, client: client}
	s.connMu.Unlock()

	s.logger.Debug("Session opened",
		log.String("connection_id", conn.ID()),
		log.Uint64("client_id", client.ID()),
		log.String("remote_addr", conn.RemoteAddr().String()))
	return nil
}

// Received queues data for the next tick. Frames are dropped while the queue
// is full.
func (s *Server) Received(conn transport.Conn, data []byte) {
	s.connMu.Lock()
	sess, ok := s.sessions[conn.ID()]
	s.connMu.Unlock()
	if !ok {
		return
	}

	select {
	case s.inbound <- inbound{clientID: sess.client.ID(), data: data}:
	default:
		s.logger.Warn("Inbound queue full, dropping frame",
			log.Uint64("client_id", sess.client.ID()),
			log.Int("bytes", len(data)))
	}
}

func (s *Server) Disconnected(conn transport.Conn) {
	s.connMu.Lock()
	sess, ok := s.sessions[conn.ID()]
	delete(s.sessions, conn.ID())
	s.connMu.Unlock()
	if !ok {
		return
	}

	if err := s.network.RemoveClient(sess.client.ID()); err != nil {
		s.logger.Warn("Failed to remove client",
			log.Uint64("client_id", sess.client.ID()),
			log.Error(err))
	}
}

// Sessions counts live transport connections.
func (s *Server) Sessions() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return len(s.sessions)
}

func (s *Server) closeSessions() {
	s.connMu.Lock()
	conns := make([]transport.Conn, 0, len(s.sessions))
	for _, sess := range s.sessions {
		conns = append(conns, sess.conn)
	}
	s.connMu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (s *Server) drainInbound() []inbound {
	var frames []inbound
	for {
		select {
		case f := <-s.inbound:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func (s *Server) decode(f inbound) decoded {
	var (
		msg *snapshot.Message
		err error
	)
	switch s.cfg.Encoding {
	case snapshot.EncodingBinary:
		msg, err = snapshot.DecodeBinary(f.data, s.cfg.ProtocolVersion)
	default:
		msg, err = snapshot.DecodeJSON(f.data)
	}
	return decoded{msg: msg, err: err}
}

// applyInbound decodes queued frames in parallel and applies them to the
// scene in arrival order.
func (s *Server) applyInbound() {
	frames := s.drainInbound()
	if len(frames) == 0 {
		return
	}

	results := concurrent.ParallelMap(frames, s.cfg.SerializeWorkers, s.decode)
	for i, res := range results {
		clientID := frames[i].clientID
		if res.err != nil {
			s.logger.Warn("Dropping malformed inbound frame",
				log.Uint64("client_id", clientID),
				log.Error(res.err))
			continue
		}
		if err := snapshot.Apply(s.scene, res.msg); err != nil {
			s.logger.Error("Failed to apply inbound state",
				log.Uint64("client_id", clientID),
				log.Error(err))
			continue
		}
		for _, call := range res.msg.Calls {
			s.publishCall(clientID, call)
		}
	}
}

func (s *Server) publishCall(clientID uint64, call snapshot.RemoteCall) {
	err := s.events.Publish(bus.NewEvent(bus.RemoteCallReceived, "server", call, map[string]any{
		"client_id": clientID,
		"name":      call.Name,
	}))
	if err != nil {
		s.logger.Warn("Remote call handler failed",
			log.String("name", call.Name),
			log.Uint64("client_id", clientID),
			log.Error(err))
	}
}
