package domain

import "time"

// Audit statuses.
const (
	AuditStatusSuccess = "success"
	AuditStatusError   = "error"
)

// AuditRecord is an immutable snapshot of one gateway request, success or
// failure. Records are appended to a fixed-capacity ring buffer; the oldest
// entries are dropped silently once capacity is reached.
type AuditRecord struct {
	UserID       string    `json:"user_id"`
	Question     string    `json:"question"`
	GeneratedSQL string    `json:"generated_sql"`
	Status       string    `json:"status"`
	LatencyMs    float64   `json:"latency_ms"`
	RowsReturned int       `json:"rows_returned"`
	Cached       bool      `json:"cached,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"timestamp"`
}
