package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.readDB.PingContext(r.Context()) == nil

	status := "ok"
	code := http.StatusOK
	if !dbOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": map[string]any{
			"database":          dbOK,
			"llm":               s.cfg.OpenAIAPIKey != "",
			"dev_fallback_mode": s.cfg.DevFallback,
		},
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	logs := s.recorder.RecentLogs(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.recorder.DashboardStats())
}

func (s *Server) handleSlowest(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	slowest := s.recorder.SlowestQueries(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"slowest_queries": slowest,
		"count":           len(slowest),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.results.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_stats": map[string]any{
			"total_entries": stats.Entries,
			"max_entries":   stats.MaxEntries,
			"total_hits":    stats.TotalHits,
			"ttl_seconds":   int(stats.TTL.Seconds()),
		},
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())
	s.results.Clear()
	s.logger.Info("result cache cleared", "user_id", p.ID)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Cache cleared"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
