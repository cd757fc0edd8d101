package llm

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mhr-212/talk-to-your-data/internal/schema"
)

// FallbackProvider is a rule-based SQL generator that needs no model. It
// serves two roles: the whole provider in dev-fallback mode, and the safety
// net when the real model errors mid-request.
type FallbackProvider struct{}

func NewFallbackProvider() *FallbackProvider { return &FallbackProvider{} }

var (
	countRe  = regexp.MustCompile(`\b(count|how many|total number)\b`)
	aggRe    = regexp.MustCompile(`\b(sum|total|average|avg)\b`)
	limitRe  = regexp.MustCompile(`\b(?:top|limit)\s+(\d+)`)
	quotedRe = regexp.MustCompile(`['"](.*?)['"]`)
)

// GenerateSQL parses the question for common patterns: row counts, sum and
// average aggregates, column selection, result limits, and a single quoted
// equality filter. Anything it cannot place falls through to a bounded
// SELECT * over the best-matching table.
func (FallbackProvider) GenerateSQL(_ context.Context, question string, sch schema.Map) (string, error) {
	q := strings.ToLower(strings.TrimSpace(question))

	tables := sch.Tables()
	table := "unknown_table"
	if len(tables) > 0 {
		table = tables[0]
	}
	for _, t := range tables {
		if strings.Contains(q, strings.ToLower(t)) {
			table = t
			break
		}
	}
	columns := sch[table]

	if countRe.MatchString(q) {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s", table), nil
	}

	if m := aggRe.FindStringSubmatch(q); m != nil && len(columns) > 0 {
		fn := "SUM"
		if m[1] == "average" || m[1] == "avg" {
			fn = "AVG"
		}
		for _, col := range columns {
			if strings.Contains(q, strings.ToLower(col)) {
				return fmt.Sprintf("SELECT %s(%s) FROM %s", fn, col, table), nil
			}
		}
	}

	// Longest column names first so "user_id" wins over "id".
	byLength := append([]string(nil), columns...)
	sort.Slice(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	var selected []string
	for _, col := range byLength {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(col)) + `\b`)
		if re.MatchString(q) {
			selected = append(selected, col)
		}
	}

	limit := 100
	if m := limitRe.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			limit = n
		}
	} else if strings.Contains(q, "top") {
		limit = 10
	}

	where := ""
	if m := quotedRe.FindStringSubmatch(question); m != nil {
		val := strings.ReplaceAll(m[1], "'", "''")
		// Only filter when the question also names the column; guessing a
		// column for the value produces wrong answers more often than none.
		for _, col := range columns {
			if strings.Contains(q, strings.ToLower(col)) {
				where = fmt.Sprintf(" WHERE %s = '%s'", col, val)
				break
			}
		}
	}

	colsSQL := "*"
	if len(selected) > 0 {
		colsSQL = strings.Join(selected, ", ")
		if limit == 100 {
			limit = 1000
		}
	}

	return fmt.Sprintf("SELECT %s FROM %s%s LIMIT %d", colsSQL, table, where, limit), nil
}

// Explain summarizes the result shape without calling a model.
func (FallbackProvider) Explain(_ context.Context, _ string, _ string, columns []string, rows []map[string]any) (string, error) {
	return fmt.Sprintf("Retrieved %d record(s) with columns: %s.", len(rows), summarizeColumns(columns)), nil
}
