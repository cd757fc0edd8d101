package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

// Authenticator resolves each request to a domain.Principal and stores it in
// the request context. Resolution order:
//
//  1. Bearer JWT validated by the configured validator (sub/name/role claims)
//  2. X-User-ID / X-Role headers, accepted only outside production
//
// Requests that resolve to no principal get 401.
type Authenticator struct {
	validator  JWTValidator
	roleClaim  string
	devHeaders bool
}

func NewAuthenticator(validator JWTValidator, roleClaim string, devHeaders bool) *Authenticator {
	if roleClaim == "" {
		roleClaim = "role"
	}
	return &Authenticator{validator: validator, roleClaim: roleClaim, devHeaders: devHeaders}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") && a.validator != nil {
			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			claims, err := a.validator.Validate(r.Context(), tokenStr)
			if err == nil && claims.Subject != "" {
				p := domain.Principal{ID: claims.Subject}
				if claims.Name != nil {
					p.Name = *claims.Name
				}
				if role, ok := claims.Raw[a.roleClaim].(string); ok {
					p.Role = role
				}
				next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
				return
			}
		}

		// Header-based identity for local development and tests only.
		if a.devHeaders {
			if userID := r.Header.Get("X-User-ID"); userID != "" {
				p := domain.Principal{
					ID:   userID,
					Name: userID,
					Role: r.Header.Get("X-Role"),
				}
				if p.Role == "" {
					p.Role = domain.RoleAnalyst
				}
				next.ServeHTTP(w, r.WithContext(domain.WithPrincipal(r.Context(), p)))
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "unauthorized: provide a valid JWT Bearer token",
		})
	})
}

// RequireRole gates a handler on the principal's role. It assumes the
// authenticator already ran; a missing principal gets 401.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := domain.PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "unauthorized"})
				return
			}
			if p.Role != role {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "insufficient role"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
