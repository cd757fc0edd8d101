// Package analytics keeps an in-memory audit trail of query executions and
// computes usage aggregates over it on demand.
package analytics

import (
	"sort"
	"sync"
	"time"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
	"github.com/mhr-212/talk-to-your-data/internal/sqlguard"
)

// Recorder is a fixed-capacity ring buffer of audit records. Once full, each
// new record overwrites the oldest one. Recording never returns an error:
// audit capture must not be able to fail a query that already succeeded.
type Recorder struct {
	mu    sync.Mutex
	buf   []domain.AuditRecord
	next  int // index the next record is written to
	count int // number of valid records, <= len(buf)

	clock func() time.Time
}

// NewRecorder creates a recorder that retains at most capacity records.
func NewRecorder(capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{
		buf:   make([]domain.AuditRecord, capacity),
		clock: time.Now,
	}
}

// Record appends one audit record, overwriting the oldest when full.
func (r *Recorder) Record(rec domain.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.clock()
	}
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// RecentLogs returns up to limit of the most recent records, oldest first.
// The result is a copy; callers may not mutate recorder state through it.
func (r *Recorder) RecentLogs(limit int) []domain.AuditRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.snapshotLocked()
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// snapshotLocked copies the ring contents in insertion order.
func (r *Recorder) snapshotLocked() []domain.AuditRecord {
	out := make([]domain.AuditRecord, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// CountStat is a labelled counter used in the dashboard aggregates.
type CountStat struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SlowQuery is one entry in the slowest-queries report.
type SlowQuery struct {
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	UserID    string    `json:"user_id"`
	LatencyMs float64   `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// HourBucket is one slot of the hourly query-volume histogram.
type HourBucket struct {
	Hour  string `json:"hour"` // "2006-01-02T15" in UTC
	Count int    `json:"count"`
}

// Dashboard aggregates query activity over the trailing 24 hours.
type Dashboard struct {
	TotalQueries  int          `json:"total_queries"`
	SuccessCount  int          `json:"success_count"`
	ErrorCount    int          `json:"error_count"`
	ErrorRatePct  float64      `json:"error_rate_pct"`
	AvgLatencyMs  float64      `json:"avg_latency_ms"`
	TopTables     []CountStat  `json:"top_tables"`
	TopUsers      []CountStat  `json:"top_users"`
	QueriesByHour []HourBucket `json:"queries_by_hour"`
}

const dashboardWindow = 24 * time.Hour

// DashboardStats computes the trailing-24h dashboard. An empty window yields
// zero values, never an error.
func (r *Recorder) DashboardStats() Dashboard {
	r.mu.Lock()
	records := r.snapshotLocked()
	now := r.clock()
	r.mu.Unlock()

	cutoff := now.Add(-dashboardWindow)

	var d Dashboard
	var latencySum float64
	tableCounts := map[string]int{}
	userCounts := map[string]int{}
	hourCounts := map[string]int{}

	for _, rec := range records {
		if rec.CreatedAt.Before(cutoff) {
			continue
		}
		d.TotalQueries++
		userCounts[rec.UserID]++
		hourCounts[rec.CreatedAt.UTC().Format("2006-01-02T15")]++

		if rec.Status == domain.AuditStatusSuccess {
			d.SuccessCount++
			latencySum += rec.LatencyMs
		} else {
			d.ErrorCount++
		}

		for _, table := range sqlguard.ExtractTableRefs(rec.GeneratedSQL) {
			tableCounts[table]++
		}
	}

	if d.SuccessCount > 0 {
		d.AvgLatencyMs = latencySum / float64(d.SuccessCount)
	}
	if d.TotalQueries > 0 {
		d.ErrorRatePct = float64(d.ErrorCount) / float64(d.TotalQueries) * 100
	}

	d.TopTables = topCounts(tableCounts, 5)
	d.TopUsers = topCounts(userCounts, 5)
	d.QueriesByHour = hourBuckets(hourCounts)
	return d
}

// SlowestQueries returns the n highest-latency successful queries in the
// trailing 24 hours, slowest first.
func (r *Recorder) SlowestQueries(n int) []SlowQuery {
	r.mu.Lock()
	records := r.snapshotLocked()
	now := r.clock()
	r.mu.Unlock()

	cutoff := now.Add(-dashboardWindow)

	slow := make([]SlowQuery, 0, len(records))
	for _, rec := range records {
		if rec.CreatedAt.Before(cutoff) || rec.Status != domain.AuditStatusSuccess {
			continue
		}
		slow = append(slow, SlowQuery{
			Question:  rec.Question,
			SQL:       rec.GeneratedSQL,
			UserID:    rec.UserID,
			LatencyMs: rec.LatencyMs,
			CreatedAt: rec.CreatedAt,
		})
	}
	sort.SliceStable(slow, func(i, j int) bool { return slow[i].LatencyMs > slow[j].LatencyMs })
	if n > 0 && len(slow) > n {
		slow = slow[:n]
	}
	return slow
}

// topCounts ranks a counter map descending by count, then by name for a
// stable order, keeping the first n.
func topCounts(counts map[string]int, n int) []CountStat {
	stats := make([]CountStat, 0, len(counts))
	for name, count := range counts {
		stats = append(stats, CountStat{Name: name, Count: count})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Name < stats[j].Name
	})
	if len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

func hourBuckets(counts map[string]int) []HourBucket {
	buckets := make([]HourBucket, 0, len(counts))
	for hour, count := range counts {
		buckets = append(buckets, HourBucket{Hour: hour, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Hour < buckets[j].Hour })
	return buckets
}
