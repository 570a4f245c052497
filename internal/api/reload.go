package api

import (
	"net/http"

	"go.uber.org/zap"
)

// ReloadHandler reloads advertisements and campaigns from Postgres.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		s.Logger.Error("reload", zap.Error(err))
		http.Error(w, "reload failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"reloaded"}`))
}
