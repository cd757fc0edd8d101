// Package sqlguard validates machine-generated SQL before execution.
//
// The gateway defends by pattern and keyword denial over the statement text,
// not by semantic SQL understanding: a fixed keyword denylist, an ordered
// table of unsafe-construct matchers, heuristic table-reference extraction,
// and an allow-list check. This is a deliberate design choice — the matchers
// are easy to audit and unit-test in isolation, at the cost of rejecting a
// few exotic-but-safe queries.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mhr-212/talk-to-your-data/internal/domain"
	"github.com/mhr-212/talk-to-your-data/internal/policy"
)

// Statement is a SQL string that passed every safety check, with a row limit
// injected when none was present. It is the only form the execution engine
// accepts, and is immutable once produced.
type Statement string

// String returns the raw SQL text.
func (s Statement) String() string { return string(s) }

// forbiddenKeywords are mutating and schema-administration verbs, matched as
// whole words anywhere in the statement, case-insensitively.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP",
	"ALTER", "TRUNCATE", "CREATE", "GRANT", "REVOKE",
	"COPY", "VACUUM", "ANALYZE", "LOCK",
}

var keywordPatterns = compileKeywords(forbiddenKeywords)

func compileKeywords(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`(?i)\b` + w + `\b`)
	}
	return out
}

// unsafePattern pairs a compiled matcher with its human-readable rejection
// reason. Patterns are checked in order; the first match wins.
type unsafePattern struct {
	re     *regexp.Regexp
	reason string
}

var unsafePatterns = []unsafePattern{
	{regexp.MustCompile(`;`), "multi-statement queries (semicolon) are not allowed"},
	{regexp.MustCompile(`--`), "inline comments are not allowed"},
	{regexp.MustCompile(`/\*`), "block comments are not allowed"},
	{regexp.MustCompile(`(?i)\bUNION\b`), "UNION queries are not allowed"},
	{regexp.MustCompile(`(?i)\bINTERSECT\b`), "INTERSECT queries are not allowed"},
	{regexp.MustCompile(`(?i)\bEXCEPT\b`), "EXCEPT queries are not allowed"},
	{regexp.MustCompile(`(?i)\bWITH\s*\(`), "complex CTEs are not allowed"},
	{regexp.MustCompile(`(?i)\bINTO\b`), "SELECT INTO is not allowed"},
	{regexp.MustCompile(`(?i)\bFOR\s+UPDATE\b`), "FOR UPDATE clauses are not allowed"},
	{regexp.MustCompile(`(?i)\bINFORMATION_SCHEMA\b`), "system schema access is not allowed"},
	{regexp.MustCompile(`(?i)\bpg_\w+\b`), "PostgreSQL system objects are not allowed"},
	{regexp.MustCompile(`(?i)\bsqlite_\w+\b`), "SQLite system objects are not allowed"},
}

var (
	tableRefPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z0-9_.]+)`)
	limitPattern    = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
)

// Validate sanitizes a raw generated SQL string against the allow-list and
// returns the limit-bounded Statement. Checks run in a fixed order and the
// first failure wins — there is no partial sanitization. The function is pure
// and safe for concurrent use.
func Validate(rawSQL string, allowed policy.TableSet, maxLimit int) (Statement, error) {
	s := strings.TrimSpace(rawSQL)

	if strings.Count(s, ";") > 1 {
		return "", domain.ErrValidation("only single SQL statements are allowed")
	}

	if err := ensureSelectOnly(s); err != nil {
		return "", err
	}

	for i, re := range keywordPatterns {
		if re.MatchString(s) {
			return "", domain.ErrValidation(
				"forbidden keyword detected: %s. This system is read-only and only supports SELECT queries. "+
					"Please rephrase your question to retrieve information instead of modifying data.",
				forbiddenKeywords[i])
		}
	}

	for _, p := range unsafePatterns {
		if p.re.MatchString(s) {
			return "", domain.ErrValidation("unsafe SQL pattern: %s", p.reason)
		}
	}

	for _, table := range ExtractTableRefs(s) {
		if !allowed.Contains(table) {
			return "", domain.ErrValidation(
				"access to table '%s' is not permitted. Available tables: %s. "+
					"Please use one of the available tables in your question.",
				table, allowed)
		}
	}

	return Statement(injectLimit(s, maxLimit)), nil
}

// ensureSelectOnly rejects any statement that does not begin with the
// read-only query keyword, naming the offending leading keyword.
func ensureSelectOnly(s string) error {
	upper := strings.ToUpper(s)
	if strings.HasPrefix(upper, "SELECT") {
		return nil
	}
	keyword := upper
	if i := strings.IndexAny(keyword, " \t\r\n("); i > 0 {
		keyword = keyword[:i]
	}
	if keyword == "" {
		keyword = "(empty)"
	}
	return domain.ErrValidation(
		"only SELECT statements are allowed, got %s. This system is read-only and cannot modify data. "+
			"Try rephrasing your question to retrieve data instead of changing it.",
		keyword)
}

// ExtractTableRefs scans for identifiers following FROM and JOIN clauses
// (all join variants end in JOIN), strips any schema qualifier, lowercases,
// and deduplicates preserving first-seen order.
//
// This is a heuristic, not a parse. It is deliberately shared between the
// validator and the analytics recorder so both approximations of "what
// tables does this touch" stay in sync.
func ExtractTableRefs(sql string) []string {
	matches := tableRefPattern.FindAllStringSubmatch(sql, -1)
	seen := make(map[string]struct{}, len(matches))
	var tables []string
	for _, m := range matches {
		name := m[1]
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		name = strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	return tables
}

// HasLimit reports whether the statement already carries a LIMIT clause.
func HasLimit(sql string) bool {
	return limitPattern.MatchString(sql)
}

// injectLimit appends a LIMIT clause bounding rows to maxLimit when none is
// present. An existing explicit limit is left untouched, even when it exceeds
// maxLimit — intent (cap vs. default) is ambiguous, so the permissive reading
// is preserved.
func injectLimit(sql string, maxLimit int) string {
	if HasLimit(sql) {
		return sql
	}
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(sql, "; \t\r\n"), maxLimit)
}
