// Package schema introspects the SQLite data file and caches the result.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/mhr-212/talk-to-your-data/internal/policy"
)

// Map is the table -> ordered column list mapping produced by introspection.
// Keys are stored lowercase. A Map is regenerated wholesale on every refresh,
// never partially mutated.
type Map map[string][]string

// Tables returns the sorted table names.
func (m Map) Tables() []string {
	names := make([]string, 0, len(m))
	for t := range m {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

// Filter returns a new Map containing only tables in the allow-list. This is
// a security boundary: the filtered map is the only schema the SQL generator
// may ever see.
func (m Map) Filter(allowed policy.TableSet) Map {
	if allowed.All() {
		return m
	}
	out := make(Map, len(m))
	for table, cols := range m {
		if allowed.Contains(table) {
			out[table] = cols
		}
	}
	return out
}

// FormatForPrompt renders the map as one "table(col, col)" line per table,
// sorted by table name, for inclusion in the generation prompt.
func (m Map) FormatForPrompt() string {
	var b strings.Builder
	for i, table := range m.Tables() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s(%s)", table, strings.Join(m[table], ", "))
	}
	return b.String()
}

// Introspect reads the full table/column layout from a SQLite database.
// Internal sqlite_* bookkeeping tables are skipped.
func Introspect(ctx context.Context, db *sql.DB) (Map, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		// goose bookkeeping is an implementation detail, not user data
		if name == "goose_db_version" {
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	m := make(Map, len(tables))
	for _, table := range tables {
		cols, err := tableColumns(ctx, db, table)
		if err != nil {
			return nil, err
		}
		m[strings.ToLower(table)] = cols
	}
	return m, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close() //nolint:errcheck

	var cols []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	return cols, nil
}
