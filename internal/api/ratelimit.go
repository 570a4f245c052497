package api

import (
	"net/http"

	"github.com/panelworks/adserve/internal/logic/ratelimit"
)

// RateLimitStatsHandler handles GET /api/admin/ratelimit, reporting per-ad
// token bucket statistics for every ad the limiter has seen.
func (s *Server) RateLimitStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]ratelimit.Stats{}
	if s.Resolver != nil && s.Resolver.Limiter != nil {
		stats = s.Resolver.Limiter.GetStats()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ads": stats})
}
