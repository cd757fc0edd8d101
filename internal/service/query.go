// Package service orchestrates question answering: authorization, schema
// scoping, SQL generation, validation, execution, and audit capture.
package service

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/mhr-212/talk-to-your-data/internal/analytics"
	"github.com/mhr-212/talk-to-your-data/internal/domain"
	"github.com/mhr-212/talk-to-your-data/internal/executor"
	"github.com/mhr-212/talk-to-your-data/internal/llm"
	"github.com/mhr-212/talk-to-your-data/internal/policy"
	"github.com/mhr-212/talk-to-your-data/internal/resultcache"
	"github.com/mhr-212/talk-to-your-data/internal/schema"
	"github.com/mhr-212/talk-to-your-data/internal/sqlguard"
)

// Response is the full answer to one natural-language question.
type Response struct {
	Question     string           `json:"question"`
	GeneratedSQL string           `json:"generated_sql"`
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	Explanation  string           `json:"explanation"`
	LatencyMs    float64          `json:"latency_ms"`
	Cached       bool             `json:"cached"`
}

// QueryService wires the gateway pipeline together. All collaborators are
// required except results, which may be nil to disable response caching.
type QueryService struct {
	readDB   *sql.DB
	schemas  *schema.Cache
	resolver *policy.Resolver
	provider llm.Provider
	fallback *llm.FallbackProvider
	engine   *executor.Engine
	results  *resultcache.Cache
	recorder *analytics.Recorder
	maxLimit int
	logger   *slog.Logger

	clock func() time.Time
}

func NewQueryService(
	readDB *sql.DB,
	schemas *schema.Cache,
	resolver *policy.Resolver,
	provider llm.Provider,
	engine *executor.Engine,
	results *resultcache.Cache,
	recorder *analytics.Recorder,
	maxLimit int,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		readDB:   readDB,
		schemas:  schemas,
		resolver: resolver,
		provider: provider,
		fallback: llm.NewFallbackProvider(),
		engine:   engine,
		results:  results,
		recorder: recorder,
		maxLimit: maxLimit,
		logger:   logger.With("component", "query"),
	}
}

// Ask answers one question for the given principal. Every terminal path,
// success or failure, leaves an audit record; audit and cache writes can
// never fail the request itself.
func (s *QueryService) Ask(ctx context.Context, p domain.Principal, question string) (*Response, error) {
	started := s.now()
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.ErrValidation("question is required")
	}

	allowed := s.resolver.Resolve(p)

	full, err := s.schemas.Get(ctx, s.readDB)
	if err != nil {
		err = domain.ErrExecution("schema introspection failed: %v", err)
		s.audit(p, question, "", started, 0, err)
		return nil, err
	}
	visible := full.Filter(allowed)
	if len(visible) == 0 {
		err := domain.ErrAccessDenied("no accessible tables for this user")
		s.audit(p, question, "", started, 0, err)
		return nil, err
	}

	if s.results != nil {
		if hit := s.results.Get(p.ID, question); hit != nil {
			// Hits still count toward dashboard volume and per-user totals.
			s.recorder.Record(domain.AuditRecord{
				UserID:       p.ID,
				Question:     question,
				GeneratedSQL: hit.SQL,
				Status:       domain.AuditStatusSuccess,
				Cached:       true,
				LatencyMs:    s.sinceMs(started),
				RowsReturned: len(hit.Rows),
			})
			return &Response{
				Question:     question,
				GeneratedSQL: hit.SQL,
				Columns:      hit.Columns,
				Rows:         hit.Rows,
				Explanation:  hit.Explanation,
				LatencyMs:    s.sinceMs(started),
				Cached:       true,
			}, nil
		}
	}

	rawSQL, degraded := s.generate(ctx, question, visible)

	stmt, err := sqlguard.Validate(rawSQL, allowed, s.maxLimit)
	if err != nil {
		s.audit(p, question, rawSQL, started, 0, err)
		return nil, err
	}
	safeSQL := string(stmt)

	result, err := s.engine.Execute(ctx, stmt)
	if err != nil {
		s.audit(p, question, safeSQL, started, 0, err)
		return nil, err
	}

	explanation := s.explain(ctx, question, safeSQL, result, degraded)

	s.audit(p, question, safeSQL, started, len(result.Rows), nil)

	if s.results != nil {
		s.results.Put(p.ID, question, &resultcache.Entry{
			SQL:         safeSQL,
			Columns:     result.Columns,
			Rows:        result.Rows,
			Explanation: explanation,
		})
	}

	return &Response{
		Question:     question,
		GeneratedSQL: safeSQL,
		Columns:      result.Columns,
		Rows:         result.Rows,
		Explanation:  explanation,
		LatencyMs:    s.sinceMs(started),
	}, nil
}

// generate asks the configured provider for SQL and degrades to the
// rule-based generator when the provider fails. The rule-based generator
// itself cannot fail, so generation always yields a candidate statement.
func (s *QueryService) generate(ctx context.Context, question string, visible schema.Map) (rawSQL string, degraded bool) {
	rawSQL, err := s.provider.GenerateSQL(ctx, question, visible)
	if err == nil {
		return rawSQL, false
	}

	s.logger.Warn("sql generation degraded to rule-based fallback", "error", err)
	rawSQL, _ = s.fallback.GenerateSQL(ctx, question, visible)
	return rawSQL, true
}

// explain produces the user-facing summary. In the degraded path the model
// is known to be down, so it is not consulted a second time.
func (s *QueryService) explain(ctx context.Context, question, safeSQL string, result *executor.Result, degraded bool) string {
	if degraded {
		text, _ := s.fallback.Explain(ctx, question, safeSQL, result.Columns, result.Rows)
		return "AI unavailable, results matched by keywords. " + text
	}

	text, err := s.provider.Explain(ctx, question, safeSQL, result.Columns, result.Rows)
	if err != nil {
		s.logger.Warn("explanation degraded to summary", "error", err)
		text, _ = s.fallback.Explain(ctx, question, safeSQL, result.Columns, result.Rows)
	}
	return text
}

func (s *QueryService) audit(p domain.Principal, question, generatedSQL string, started time.Time, rows int, cause error) {
	rec := domain.AuditRecord{
		UserID:       p.ID,
		Question:     question,
		GeneratedSQL: generatedSQL,
		Status:       domain.AuditStatusSuccess,
		LatencyMs:    s.sinceMs(started),
		RowsReturned: rows,
	}
	if cause != nil {
		rec.Status = domain.AuditStatusError
		rec.Error = cause.Error()
	}
	s.recorder.Record(rec)
}

func (s *QueryService) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *QueryService) sinceMs(started time.Time) float64 {
	return float64(s.now().Sub(started)) / float64(time.Millisecond)
}
