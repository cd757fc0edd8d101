package service

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
)

// SavedQuery is a per-user bookmark of a question and the SQL it produced.
type SavedQuery struct {
	ID           string    `json:"query_id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	Question     string    `json:"question"`
	GeneratedSQL string    `json:"generated_sql"`
	CreatedAt    time.Time `json:"created_at"`
	RunCount     int       `json:"run_count"`
}

// SavedQueryStore is an in-memory bookmark store. Lookups are owner-scoped:
// another user's ID behaves exactly like a missing one, so IDs leak nothing.
type SavedQueryStore struct {
	mu         sync.Mutex
	queries    map[string]*SavedQuery
	maxQueries int

	clock func() time.Time
}

func NewSavedQueryStore(maxQueries int) *SavedQueryStore {
	return &SavedQueryStore{
		queries:    make(map[string]*SavedQuery),
		maxQueries: maxQueries,
		clock:      time.Now,
	}
}

// Save stores a new bookmark. The store-wide capacity cap keeps an
// unauthenticated dev deployment from growing without bound.
func (s *SavedQueryStore) Save(userID, name, question, generatedSQL string) (*SavedQuery, error) {
	name = strings.TrimSpace(name)
	question = strings.TrimSpace(question)
	if name == "" || question == "" {
		return nil, domain.ErrValidation("name and question are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queries) >= s.maxQueries {
		return nil, domain.ErrValidation("saved query limit (%d) reached", s.maxQueries)
	}

	q := &SavedQuery{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		Question:     question,
		GeneratedSQL: generatedSQL,
		CreatedAt:    s.clock(),
	}
	s.queries[q.ID] = q
	return copyOf(q), nil
}

// Get returns the bookmark with the given ID if it belongs to userID.
func (s *SavedQueryStore) Get(userID, id string) (*SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queries[id]
	if !ok || q.UserID != userID {
		return nil, domain.ErrNotFound("saved query %s not found", id)
	}
	return copyOf(q), nil
}

// List returns up to limit of the user's bookmarks, newest first.
func (s *SavedQueryStore) List(userID string, limit int) []*SavedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.collectLocked(userID, func(*SavedQuery) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Search returns the user's bookmarks whose name or question contains the
// keyword, case-insensitively.
func (s *SavedQueryStore) Search(userID, keyword string) []*SavedQuery {
	keyword = strings.ToLower(keyword)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.collectLocked(userID, func(q *SavedQuery) bool {
		return strings.Contains(strings.ToLower(q.Name), keyword) ||
			strings.Contains(strings.ToLower(q.Question), keyword)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Delete removes the user's bookmark with the given ID.
func (s *SavedQueryStore) Delete(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queries[id]
	if !ok || q.UserID != userID {
		return domain.ErrNotFound("saved query %s not found", id)
	}
	delete(s.queries, id)
	return nil
}

// RecordRun increments the bookmark's run counter and returns its new state.
func (s *SavedQueryStore) RecordRun(userID, id string) (*SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queries[id]
	if !ok || q.UserID != userID {
		return nil, domain.ErrNotFound("saved query %s not found", id)
	}
	q.RunCount++
	return copyOf(q), nil
}

func (s *SavedQueryStore) collectLocked(userID string, keep func(*SavedQuery) bool) []*SavedQuery {
	out := make([]*SavedQuery, 0)
	for _, q := range s.queries {
		if q.UserID == userID && keep(q) {
			out = append(out, copyOf(q))
		}
	}
	return out
}

func copyOf(q *SavedQuery) *SavedQuery {
	c := *q
	return &c
}
