package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

type savedCreateRequest struct {
	Name         string `json:"name"`
	Question     string `json:"question"`
	GeneratedSQL string `json:"generated_sql"`
}

func (s *Server) handleSavedCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())

	var req savedCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	saved, err := s.saved.Save(p.ID, req.Name, req.Question, req.GeneratedSQL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Query saved",
		"query":   saved,
	})
}

func (s *Server) handleSavedList(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())

	queries := s.saved.List(p.ID, queryInt(r, "limit", 50))
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": queries,
		"count":   len(queries),
	})
}

func (s *Server) handleSavedSearch(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())

	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		writeError(w, domain.ErrValidation("search keyword 'q' is required"))
		return
	}

	queries := s.saved.Search(p.ID, keyword)
	writeJSON(w, http.StatusOK, map[string]any{
		"queries": queries,
		"count":   len(queries),
	})
}

func (s *Server) handleSavedGet(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())

	saved, err := s.saved.Get(p.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleSavedDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())

	if err := s.saved.Delete(p.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Query deleted"})
}

// handleSavedRun re-asks the stored question through the full pipeline, so
// the result reflects current data and current permissions.
func (s *Server) handleSavedRun(w http.ResponseWriter, r *http.Request) {
	p, _ := domain.PrincipalFromContext(r.Context())

	saved, err := s.saved.RecordRun(p.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.query.Ask(r.Context(), p, saved.Question)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":  saved,
		"result": resp,
	})
}
