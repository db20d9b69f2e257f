package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleParseStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"window":      s.cfg.StatsWindow.String(),
		"queue_depth": s.orchestrator.QueueDepth(),
		"stats":       s.orchestrator.Stats().Snapshot(),
	})
}
