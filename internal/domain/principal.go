package domain

// Known roles. The role set is closed — anything else resolves to no tables.
const (
	RoleAnalyst  = "analyst"
	RoleAdmin    = "admin"
	RoleReadonly = "readonly"
)

// Principal represents the authenticated actor making a request.
// It is derived per request from the bearer token (or dev headers) and is
// never persisted by the gateway.
type Principal struct {
	ID   string
	Name string
	Role string
}

// Validate checks that the principal is well-formed enough to serve a request.
func (p *Principal) Validate() error {
	if p.ID == "" {
		return ErrValidation("principal id is required")
	}
	if p.Role == "" {
		return ErrValidation("principal role is required")
	}
	return nil
}

// IsAdmin reports whether the principal carries the admin role.
func (p *Principal) IsAdmin() bool { return p.Role == RoleAdmin }
