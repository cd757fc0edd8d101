package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

type queryRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	p, ok := domain.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	resp, err := s.query.Ask(r.Context(), p, req.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type exportRequest struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Format  string           `json:"format"`
}

// handleExport serializes a previously returned result set as a download.
// The client round-trips columns and rows rather than re-running the query.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	if len(req.Columns) == 0 || len(req.Rows) == 0 {
		writeError(w, domain.ErrValidation("columns and rows are required"))
		return
	}

	switch req.Format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="query_results.json"`)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(req.Rows)

	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="query_results.csv"`)
		cw := csv.NewWriter(w)
		_ = cw.Write(req.Columns)
		for _, row := range req.Rows {
			record := make([]string, len(req.Columns))
			for i, col := range req.Columns {
				if v, ok := row[col]; ok && v != nil {
					record[i] = fmt.Sprint(v)
				}
			}
			_ = cw.Write(record)
		}
		cw.Flush()

	default:
		writeError(w, domain.ErrValidation("unsupported export format %q", req.Format))
	}
}
