package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhr-212/talk-to-your-data/internal/analytics"
	"github.com/mhr-212/talk-to-your-data/internal/config"
	internaldb "github.com/mhr-212/talk-to-your-data/internal/db"
	"github.com/mhr-212/talk-to-your-data/internal/executor"
	"github.com/mhr-212/talk-to-your-data/internal/llm"
	"github.com/mhr-212/talk-to-your-data/internal/middleware"
	"github.com/mhr-212/talk-to-your-data/internal/policy"
	"github.com/mhr-212/talk-to-your-data/internal/resultcache"
	"github.com/mhr-212/talk-to-your-data/internal/schema"
	"github.com/mhr-212/talk-to-your-data/internal/service"
)

const testSecret = "api-test-secret"

// newTestServer wires the full stack against a migrated temp database, with
// the rule-based generator standing in for the model.
func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWithConfig(t, nil)
}

func newTestServerWithConfig(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	writeDB, readDB := internaldb.OpenTestSQLite(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		Env:                "development",
		MaxLimit:           1000,
		StatementTimeout:   5 * time.Second,
		RateLimitRPS:        1000,
		RateLimitBurst:      1000,
		QueryRateLimitRPM:   60000,
		QueryRateLimitBurst: 1000,
		CORSAllowedOrigins: []string{"*"},
		DevFallback:        true,
	}
	cfg.Auth.JWTSecret = testSecret
	cfg.Auth.TokenExpiry = time.Hour
	cfg.Auth.RoleClaim = "role"
	if mutate != nil {
		mutate(cfg)
	}

	schemas := schema.NewCache(time.Hour)
	results := resultcache.New(100, time.Hour)
	recorder := analytics.NewRecorder(100)
	engine := executor.NewEngine(readDB, cfg.StatementTimeout, logger)

	query := service.NewQueryService(
		readDB, schemas, policy.NewResolver(), llm.NewFallbackProvider(),
		engine, results, recorder, cfg.MaxLimit, logger,
	)
	saved := service.NewSavedQueryStore(100)

	validator, err := middleware.NewHS256Validator(testSecret)
	require.NoError(t, err)
	auth := middleware.NewAuthenticator(validator, cfg.Auth.RoleClaim, true)

	srv := NewServer(cfg, logger, query, saved, recorder, results, schemas, readDB, writeDB, auth)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func analystHeaders() map[string]string {
	return map[string]string{"X-User-ID": "u_1", "X-Role": "analyst"}
}

func adminHeaders() map[string]string {
	return map[string]string{"X-User-ID": "u_admin", "X-Role": "admin"}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestQueryRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/query", map[string]string{"question": "how many users?"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestQueryWithMintedToken(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/auth/token",
		map[string]string{"user_id": "u_9", "username": "nine", "role": "analyst"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/query",
		map[string]string{"question": "how many users are there?"},
		map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "SELECT COUNT(*) FROM users LIMIT 1000", body["generated_sql"])
	rows, _ := body["rows"].([]any)
	require.Len(t, rows, 1)
}

func TestQueryValidationError(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/query",
		map[string]string{"question": "   "}, analystHeaders())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "question is required")
}

func TestQueryUnknownRoleForbidden(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/query",
		map[string]string{"question": "show sales"},
		map[string]string{"X-User-ID": "u_x", "X-Role": "intern"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, body["error"], "no accessible tables")
}

func TestQueryCachedOnSecondCall(t *testing.T) {
	ts := newTestServer(t)
	req := map[string]string{"question": "how many users are there?"}

	resp, first := doJSON(t, http.MethodPost, ts.URL+"/v1/query", req, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, first["cached"])

	resp, second := doJSON(t, http.MethodPost, ts.URL+"/v1/query", req, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["generated_sql"], second["generated_sql"],
		"a cache hit must still show the SQL that produced it")
}

func TestQueryEndpointHasTighterBudget(t *testing.T) {
	ts := newTestServerWithConfig(t, func(cfg *config.Config) {
		cfg.QueryRateLimitRPM = 60
		cfg.QueryRateLimitBurst = 1
	})
	req := map[string]string{"question": "how many users are there?"}

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/query", req, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/query", req, analystHeaders())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body["error"], "rate limit")

	// The tighter budget is scoped to the query endpoint only.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/cache/stats", nil, analystHeaders())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogsAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/logs", nil, analystHeaders())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Generate one audit record, then read it back as admin.
	_, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/query",
		map[string]string{"question": "how many sales?"}, analystHeaders())

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/logs", nil, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
}

func TestCacheStatsAndClear(t *testing.T) {
	ts := newTestServer(t)

	_, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/query",
		map[string]string{"question": "how many users?"}, analystHeaders())

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/cache/stats", nil, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats, _ := body["cache_stats"].(map[string]any)
	require.NotNil(t, stats)
	assert.Equal(t, float64(1), stats["total_entries"])

	// Clearing is admin-only.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/cache/clear", nil, analystHeaders())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/cache/clear", nil, adminHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = doJSON(t, http.MethodGet, ts.URL+"/v1/cache/stats", nil, analystHeaders())
	stats, _ = body["cache_stats"].(map[string]any)
	assert.Equal(t, float64(0), stats["total_entries"])
}

func TestSavedQueryFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/saved-queries",
		map[string]string{
			"name":          "user count",
			"question":      "how many users are there?",
			"generated_sql": "SELECT COUNT(*) FROM users LIMIT 1000",
		}, analystHeaders())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	saved, _ := body["query"].(map[string]any)
	id, _ := saved["query_id"].(string)
	require.NotEmpty(t, id)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/saved-queries", nil, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/saved-queries/search?q=count", nil, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	// Running executes the stored question and bumps the run counter.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/saved-queries/"+id+"/run", nil, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ranQuery, _ := body["query"].(map[string]any)
	assert.Equal(t, float64(1), ranQuery["run_count"])
	result, _ := body["result"].(map[string]any)
	require.NotNil(t, result)

	// Another user cannot see it.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/saved-queries/"+id, nil,
		map[string]string{"X-User-ID": "u_2", "X-Role": "analyst"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/saved-queries/"+id, nil, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/saved-queries/"+id, nil, analystHeaders())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t)

	payload := map[string]any{
		"columns": []string{"region", "amount"},
		"rows": []map[string]any{
			{"region": "north", "amount": 1250.5},
			{"region": "south", "amount": 830},
		},
		"format": "csv",
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/query/export", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range analystHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "query_results.csv")

	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "region,amount", lines[0])
	assert.Equal(t, "north,1250.5", lines[1])
}

func TestExportRejectsEmptyPayload(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/query/export",
		map[string]any{"format": "csv"}, analystHeaders())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadCSVCreatesQueryableTable(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "inventory.csv")
	require.NoError(t, err)
	fmt.Fprintln(part, "sku,stock")
	fmt.Fprintln(part, "w-100,25")
	fmt.Fprintln(part, "g-200,7")
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range adminHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "inventory", body["table"])
	assert.Equal(t, float64(2), body["rows"])

	// The new table is immediately visible to the admin's wildcard grant.
	qResp, qBody := doJSON(t, http.MethodPost, ts.URL+"/v1/query",
		map[string]string{"question": "how many inventory?"}, adminHeaders())
	require.Equal(t, http.StatusOK, qResp.StatusCode)
	assert.Equal(t, "SELECT COUNT(*) FROM inventory LIMIT 1000", qBody["generated_sql"])
}

func TestUploadIsAdminOnly(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "data.csv")
	require.NoError(t, err)
	fmt.Fprintln(part, "a,b")
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range analystHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAnalyticsEndpoints(t *testing.T) {
	ts := newTestServer(t)

	_, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/query",
		map[string]string{"question": "how many sales?"}, analystHeaders())

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/analytics/dashboard", nil, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_queries"])

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/analytics/slowest", nil, analystHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
}
