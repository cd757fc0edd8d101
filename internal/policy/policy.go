// Package policy provides role-based table access control for the gateway.
//
// Roles map to table allow-lists through a static table that is fixed at
// construction time, so the resolver is read-only and safe for concurrent
// use without locking.
package policy

import (
	"sort"
	"strings"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

// Wildcard grants access to every table.
const Wildcard = "*"

// TableSet is the set of tables a principal may reference. It is either the
// "all tables" sentinel or an explicit, lowercase set of table names.
type TableSet struct {
	all    bool
	tables map[string]struct{}
}

// AllTables returns the sentinel set that matches every table.
func AllTables() TableSet {
	return TableSet{all: true}
}

// NewTableSet builds an explicit set from table names (case-insensitive).
// A Wildcard entry collapses the whole set into the sentinel.
func NewTableSet(names ...string) TableSet {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == Wildcard {
			return AllTables()
		}
		set[strings.ToLower(n)] = struct{}{}
	}
	return TableSet{tables: set}
}

// All reports whether this is the "all tables" sentinel.
func (s TableSet) All() bool { return s.all }

// Empty reports whether the set allows nothing. The sentinel is never empty.
func (s TableSet) Empty() bool { return !s.all && len(s.tables) == 0 }

// Contains reports whether the table is allowed (case-insensitive).
func (s TableSet) Contains(table string) bool {
	if s.all {
		return true
	}
	_, ok := s.tables[strings.ToLower(table)]
	return ok
}

// Names returns the sorted table names of an explicit set. The sentinel
// returns [Wildcard].
func (s TableSet) Names() []string {
	if s.all {
		return []string{Wildcard}
	}
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String renders the set for rejection messages: a sorted comma-separated
// list, so callers can self-correct.
func (s TableSet) String() string {
	return strings.Join(s.Names(), ", ")
}

// Resolver maps principal roles to table allow-lists.
type Resolver struct {
	roles map[string]TableSet
}

// NewResolver creates a resolver with the built-in role table:
// analyst -> sales, users, orders; admin -> all tables;
// readonly -> sales, users.
func NewResolver() *Resolver {
	return &Resolver{roles: map[string]TableSet{
		domain.RoleAnalyst:  NewTableSet("sales", "users", "orders"),
		domain.RoleAdmin:    AllTables(),
		domain.RoleReadonly: NewTableSet("sales", "users"),
	}}
}

// NewResolverFromRoles creates a resolver from an explicit role table,
// e.g. one loaded from a YAML policy file.
func NewResolverFromRoles(roles map[string][]string) *Resolver {
	r := &Resolver{roles: make(map[string]TableSet, len(roles))}
	for role, tables := range roles {
		r.roles[strings.ToLower(role)] = NewTableSet(tables...)
	}
	return r
}

// Resolve returns the allow-list for the principal's role. An unknown role
// yields the empty set; callers must reject requests with an empty effective
// set rather than fall through to full access.
func (r *Resolver) Resolve(p domain.Principal) TableSet {
	if set, ok := r.roles[strings.ToLower(p.Role)]; ok {
		return set
	}
	return TableSet{}
}

// Authorize verifies that the principal may access every named table.
// It returns an AccessDeniedError naming the first denied table; the
// wildcard sentinel short-circuits the check.
func (r *Resolver) Authorize(p domain.Principal, tables []string) error {
	allowed := r.Resolve(p)
	if allowed.All() {
		return nil
	}
	for _, t := range tables {
		if !allowed.Contains(t) {
			return domain.ErrAccessDenied("principal %q is not authorized to access table %q", p.Name, t)
		}
	}
	return nil
}
