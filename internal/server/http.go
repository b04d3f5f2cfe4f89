package server

import (
	"encoding/json"
	"net/http"

	"github.com/zeusync/scenesync/internal/core/snapshot"
	"github.com/zeusync/scenesync/internal/transport/websocket"
)

type healthResponse struct {
	Status   string `json:"status"`
	Clients  int    `json:"clients"`
	Entities int    `json:"entities"`
	Frame    uint64 `json:"frame"`
}

// Handler routes /ws to the WebSocket transport, /metrics to Prometheus and
// /healthz to a JSON status document.
func (s *Server) Handler() http.Handler {
	wsConfig := websocket.DefaultConfig()
	wsConfig.MaxMessageSize = int64(s.cfg.MaxMessageSize)
	// observers may never send anything
	wsConfig.ReadTimeout = 0
	wsConfig.TextFrames = s.cfg.Encoding == snapshot.EncodingJSON

	mux := http.NewServeMux()
	mux.Handle("/ws", withRequestLogging(s.logger, websocket.NewHandler(wsConfig, s, s.logger)))
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := healthResponse{
		Status:   "ok",
		Clients:  s.network.Len(),
		Entities: int(s.entityCount.Load()),
		Frame:    s.frame.Load(),
	}
	if s.closed.Load() {
		status.Status = "closed"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
