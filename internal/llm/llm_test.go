package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/mhr-212/talk-to-your-data/internal/schema"
)

func TestNormalizeSQL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT 1", "SELECT 1"},
		{"whitespace", "  SELECT 1  \n", "SELECT 1"},
		{"code fence", "```sql\nSELECT * FROM sales\n```", "SELECT * FROM sales"},
		{"bare fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"label", "SQL: SELECT 1", "SELECT 1"},
		{"label lowercase", "sql:SELECT 1", "SELECT 1"},
		{"trailing semicolon", "SELECT 1;", "SELECT 1"},
		{"all combined", "```sql\nSQL: SELECT amount FROM sales;\n```", "SELECT amount FROM sales"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeSQL(tc.in); got != tc.want {
				t.Errorf("NormalizeSQL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func demoSchema() schema.Map {
	return schema.Map{
		"sales":  {"id", "user_id", "amount", "region", "created_at"},
		"users":  {"user_id", "name", "email", "signup_date"},
		"orders": {"order_id", "user_id", "product", "quantity", "status", "ordered_at"},
	}
}

func TestFallbackGenerateSQL(t *testing.T) {
	p := NewFallbackProvider()
	ctx := context.Background()

	cases := []struct {
		name     string
		question string
		want     string
	}{
		{"count", "how many users are there?", "SELECT COUNT(*) FROM users"},
		{"sum", "total amount of sales", "SELECT SUM(amount) FROM sales"},
		{"avg", "average amount in sales", "SELECT AVG(amount) FROM sales"},
		{"top n", "top 5 sales", "SELECT * FROM sales LIMIT 5"},
		{"bare top", "top sales please", "SELECT * FROM sales LIMIT 10"},
		{"default", "show me sales", "SELECT * FROM sales LIMIT 100"},
		{"columns", "show name and email from users", "SELECT email, name FROM users LIMIT 1000"},
		{"quoted filter", `orders with status "shipped"`, "SELECT status FROM orders WHERE status = 'shipped' LIMIT 1000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.GenerateSQL(ctx, tc.question, demoSchema())
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if got != tc.want {
				t.Errorf("question %q:\n got %q\nwant %q", tc.question, got, tc.want)
			}
		})
	}
}

func TestFallbackSkipsFilterWithoutColumnMatch(t *testing.T) {
	p := NewFallbackProvider()

	// A quoted value with no recognizable column must not guess a filter.
	got, err := p.GenerateSQL(context.Background(), `orders containing 'widget'`, demoSchema())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "WHERE") {
		t.Errorf("no WHERE clause expected, got %q", got)
	}
}

func TestFallbackWithEmptySchema(t *testing.T) {
	p := NewFallbackProvider()

	got, err := p.GenerateSQL(context.Background(), "show everything", schema.Map{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "SELECT * FROM unknown_table LIMIT 100" {
		t.Errorf("got %q", got)
	}
}

func TestFallbackExplain(t *testing.T) {
	p := NewFallbackProvider()

	rows := []map[string]any{{"a": 1}, {"a": 2}}
	got, err := p.Explain(context.Background(), "q", "SELECT 1", []string{"id", "name", "email", "region"}, rows)
	if err != nil {
		t.Fatal(err)
	}
	want := "Retrieved 2 record(s) with columns: id, name, email...."
	if got != want {
		t.Errorf("explain = %q, want %q", got, want)
	}
}
