// Package llm turns natural-language questions into SQL, with a rule-based
// generator standing in when no model is reachable.
package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/mhr-212/talk-to-your-data/internal/schema"
)

// Provider generates SQL for a question and explains result sets.
// Implementations return *domain.UpstreamError when the model is unreachable
// so callers can switch to the rule-based generator.
type Provider interface {
	GenerateSQL(ctx context.Context, question string, sch schema.Map) (string, error)
	Explain(ctx context.Context, question, sql string, columns []string, rows []map[string]any) (string, error)
}

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z0-9]*\\s*")
	fenceClose = regexp.MustCompile("\\s*```\\s*$")
	sqlLabel   = regexp.MustCompile(`(?i)^SQL\s*:\s*`)
)

// NormalizeSQL strips markdown code fences, a leading "SQL:" label, and a
// trailing semicolon from model output. Models ignore formatting instructions
// often enough that this runs on every response.
func NormalizeSQL(output string) string {
	s := strings.TrimSpace(output)

	if strings.HasPrefix(s, "```") {
		s = fenceOpen.ReplaceAllString(s, "")
		s = fenceClose.ReplaceAllString(s, "")
	}
	s = sqlLabel.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

// summarizeColumns renders the first three column names for the canned
// explanation, with an ellipsis when more exist.
func summarizeColumns(columns []string) string {
	head := columns
	suffix := ""
	if len(columns) > 3 {
		head = columns[:3]
		suffix = "..."
	}
	return strings.Join(head, ", ") + suffix
}
