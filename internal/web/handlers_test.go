package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/podscribe/internal/cache"
	"github.com/hpungsan/podscribe/internal/cachekey"
	"github.com/hpungsan/podscribe/internal/db"
	"github.com/hpungsan/podscribe/internal/errors"
	"github.com/hpungsan/podscribe/internal/store"
	"github.com/hpungsan/podscribe/internal/transcript"
)

const testURL = "https://youtu.be/abc123"

type fakePipeline struct {
	rec   *transcript.Record
	err   error
	calls atomic.Int64
}

func (f *fakePipeline) Compute(url string) cache.ComputeFunc {
	return func(ctx context.Context) (*transcript.Record, error) {
		f.calls.Add(1)
		return f.rec, f.err
	}
}

func helloWorld() *transcript.Record {
	return &transcript.Record{
		Text: "hello world",
		Utterances: []transcript.Utterance{
			{Speaker: "A", Start: 0, End: 1000, Text: "hello"},
			{Speaker: "B", Start: 1000, End: 2000, Text: "world"},
		},
		Summary: "greeting",
	}
}

type testEnv struct {
	db     *sql.DB
	svc    *cache.Service
	pipe   *fakePipeline
	router http.Handler
}

func setupTest(t *testing.T) *testEnv {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	svc := cache.New(store.NewSQLite(database))
	pipe := &fakePipeline{rec: helloWorld()}
	return &testEnv{
		db:     database,
		svc:    svc,
		pipe:   pipe,
		router: NewRouter(NewHandlers(database, svc, pipe), Options{}),
	}
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody(t, rec)["error"].(map[string]any)["code"].(string)
}

func keyOf(url string) string {
	return cachekey.Derive(url).String()
}

func TestHealth(t *testing.T) {
	env := setupTest(t)
	rec := env.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestSecurityHeaders(t *testing.T) {
	env := setupTest(t)
	rec := env.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func preflight(router http.Handler, origin, method string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/transcripts/abc", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	env := setupTest(t)

	rec := preflight(env.router, "https://evil.example", http.MethodDelete)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	get := httptest.NewRecorder()
	env.router.ServeHTTP(get, req)
	assert.Equal(t, http.StatusOK, get.Code)
	assert.Empty(t, get.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ConfiguredOrigin(t *testing.T) {
	env := setupTest(t)
	router := NewRouter(NewHandlers(env.db, env.svc, env.pipe), Options{
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	rec := preflight(router, "http://localhost:5173", http.MethodDelete)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight(router, "https://evil.example", http.MethodDelete)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsOptions_Credentials(t *testing.T) {
	assert.True(t, corsOptions([]string{"https://app.example.com"}).AllowCredentials)
	assert.False(t, corsOptions([]string{"https://a.example.com", "*"}).AllowCredentials)
}

func TestProcess_RequiresJSONContentType(t *testing.T) {
	env := setupTest(t)

	req := httptest.NewRequest(http.MethodPost, "/api/transcripts", strings.NewReader(fmt.Sprintf(`{"url":%q}`, testURL)))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, int64(0), env.pipe.calls.Load())
}

func TestProcess_MissThenHit(t *testing.T) {
	env := setupTest(t)

	rec := env.do(http.MethodPost, "/api/transcripts", fmt.Sprintf(`{"url":%q}`, testURL))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeBody(t, rec)
	assert.Equal(t, false, out["hit"])
	assert.Equal(t, keyOf(testURL), out["key"])

	rec = env.do(http.MethodPost, "/api/transcripts", fmt.Sprintf(`{"url":%q}`, testURL))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["hit"])
	assert.Equal(t, int64(1), env.pipe.calls.Load())
}

func TestProcess_BadRequests(t *testing.T) {
	env := setupTest(t)

	for name, body := range map[string]string{
		"not json":      "{",
		"unknown field": `{"url":"https://youtu.be/x","force":true}`,
		"missing url":   `{}`,
	} {
		rec := env.do(http.MethodPost, "/api/transcripts", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, string(errors.ErrInvalidRequest), errorCode(t, rec), name)
	}
	assert.Equal(t, int64(0), env.pipe.calls.Load())
}

func TestProcess_ComputeFailure(t *testing.T) {
	env := setupTest(t)
	env.pipe.rec = nil
	env.pipe.err = errors.NewComputeFailed("transcribe", fmt.Errorf("upstream 500"))

	rec := env.do(http.MethodPost, "/api/transcripts", fmt.Sprintf(`{"url":%q}`, testURL))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(errors.ErrComputeFailed), errorCode(t, rec))

	count, _, err := db.Totals(context.Background(), env.db)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestProcess_NoPipeline(t *testing.T) {
	env := setupTest(t)
	router := NewRouter(NewHandlers(env.db, env.svc, nil), Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/transcripts", strings.NewReader(fmt.Sprintf(`{"url":%q}`, testURL)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet(t *testing.T) {
	env := setupTest(t)

	rec := env.do(http.MethodGet, "/api/transcripts/"+keyOf(testURL), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(errors.ErrNotFound), errorCode(t, rec))

	require.NoError(t, env.svc.Put(context.Background(), testURL, helloWorld()))

	rec = env.do(http.MethodGet, "/api/transcripts/"+keyOf(testURL), "")
	require.Equal(t, http.StatusOK, rec.Code)
	record := decodeBody(t, rec)["record"].(map[string]any)
	assert.Equal(t, "hello world", record["text"])
	assert.Len(t, record["utterances"], 2)

	rec = env.do(http.MethodGet, "/api/transcripts/not-a-key", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGet_Analytics(t *testing.T) {
	env := setupTest(t)
	require.NoError(t, env.svc.Put(context.Background(), testURL, helloWorld()))
	path := "/api/transcripts/" + keyOf(testURL)

	rec := env.do(http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decodeBody(t, rec), "analytics")

	rec = env.do(http.MethodGet, path+"?analytics=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	analytics := decodeBody(t, rec)["analytics"].(map[string]any)
	assert.Equal(t, float64(2000), analytics["duration_ms"])
	assert.Len(t, analytics["speakers"], 2)

	rec = env.do(http.MethodGet, path+"?analytics=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.ErrInvalidRequest), errorCode(t, rec))
}

func TestDownload(t *testing.T) {
	env := setupTest(t)
	require.NoError(t, env.svc.Put(context.Background(), testURL, helloWorld()))
	key := keyOf(testURL)

	rec := env.do(http.MethodGet, "/api/transcripts/"+key+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf(`attachment; filename="transcript-%s.txt"`, key[:12]), rec.Header().Get("Content-Disposition"))

	rec = env.do(http.MethodGet, "/api/transcripts/"+key+"/download?format=html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h2>Transcript</h2>")
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = env.do(http.MethodGet, "/api/transcripts/"+key+"/download?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/transcripts/"+keyOf("https://youtu.be/other")+"/download", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList(t *testing.T) {
	env := setupTest(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.svc.Put(context.Background(), fmt.Sprintf("https://youtu.be/%d", i), helloWorld()))
	}

	rec := env.do(http.MethodGet, "/api/transcripts?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Len(t, out["items"], 2)
	pagination := out["pagination"].(map[string]any)
	assert.Equal(t, true, pagination["has_more"])
	assert.Equal(t, float64(3), pagination["total"])

	rec = env.do(http.MethodGet, "/api/transcripts?limit=bogus&offset=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["items"], 1)
}

func TestForget(t *testing.T) {
	env := setupTest(t)
	require.NoError(t, env.svc.Put(context.Background(), testURL, helloWorld()))
	key := keyOf(testURL)

	rec := env.do(http.MethodDelete, "/api/transcripts/"+key, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["forgotten"])

	rec = env.do(http.MethodDelete, "/api/transcripts/"+key, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	env := setupTest(t)
	env.do(http.MethodPost, "/api/transcripts", fmt.Sprintf(`{"url":%q}`, testURL))
	env.do(http.MethodPost, "/api/transcripts", fmt.Sprintf(`{"url":%q}`, testURL))

	rec := env.do(http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody(t, rec)
	assert.Equal(t, float64(1), out["entries"])
	service := out["service"].(map[string]any)
	assert.Equal(t, float64(1), service["hits"])
	assert.Equal(t, float64(1), service["misses"])
}

func TestWriteError_InternalHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, fmt.Errorf("open /secret/podscribe.db: permission denied"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Equal(t, string(errors.ErrInternal), errorCode(t, rec))
}

func TestNewServer_Addr(t *testing.T) {
	env := setupTest(t)
	srv := NewServer(env.db, env.svc, env.pipe, Options{Bind: "127.0.0.1", Port: 8484})
	assert.Equal(t, "127.0.0.1:8484", srv.Addr)
	assert.NotNil(t, srv.Handler)
}
