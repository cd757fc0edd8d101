package api

import (
	"encoding/json"
	"net/http"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
	"github.com/mhr-212/talk-to-your-data/internal/middleware"
)

type tokenRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// handleMintToken issues a short-lived HS256 token for local development.
// The endpoint mirrors what a real identity provider would hand out, minus
// any actual authentication, so it is refused in production.
func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.IsProduction() {
		writeError(w, domain.ErrAccessDenied("token minting is disabled in production"))
		return
	}

	req := tokenRequest{UserID: "user_1", Username: "analyst", Role: domain.RoleAnalyst}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	token, err := middleware.MintHS256Token(s.cfg.Auth.JWTSecret, req.UserID, req.Username, req.Role, s.cfg.Auth.TokenExpiry)
	if err != nil {
		writeError(w, domain.ErrExecution("mint token: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"user_id":    req.UserID,
		"role":       req.Role,
		"expires_in": int(s.cfg.Auth.TokenExpiry.Seconds()),
	})
}
