package app

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dessources/Go-rate-limited-url-shortener/auth"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/codegen"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/metrics"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/ratelimit"
	"github.com/dessources/Go-rate-limited-url-shortener/internal/store"
	"github.com/dessources/Go-rate-limited-url-shortener/models"
)

const testKey = "somekey"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	server   *Server
	limiter  *ratelimit.Limiter
	registry *metrics.Registry
	links    *store.URLStore
	keys     *auth.KeyRing
	clock    *testClock
}

func newTestEnv(t testing.TB, cfg ratelimit.Config, opts Options) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	registry := metrics.NewRegistry()

	limiter, err := ratelimit.New(cfg, ratelimit.WithClock(clock.Now), ratelimit.WithRecorder(registry))
	require.NoError(t, err)
	registry.SetGlobal(limiter.Global())

	gen, err := codegen.New()
	require.NoError(t, err)
	links := store.New(store.NewMemoryRepository(), gen, store.WithRecorder(registry))

	keys := auth.NewKeyRing("test-secret", []string{testKey, "otherkey"})

	service := &Service{
		Links:   links,
		Limiter: limiter,
		Auth:    keys,
		Metrics: registry,
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8090"
	}
	if opts.StreamInterval == 0 {
		opts.StreamInterval = 10 * time.Millisecond
	}

	return &testEnv{
		server:   NewServer(service, zap.NewNop().Sugar(), opts),
		limiter:  limiter,
		registry: registry,
		links:    links,
		keys:     keys,
		clock:    clock,
	}
}

func defaultLimits() ratelimit.Config {
	return ratelimit.Config{
		GlobalCapacity: 100,
		GlobalRate:     10,
		ClientCapacity: 5,
		ClientRate:     1,
		ClientIdleTTL:  time.Minute,
		EvictEvery:     time.Minute,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.server.Router.ServeHTTP(rr, req)
	return rr
}

func shortenRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/shorten", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(auth.HeaderAPIKey, key)
	}
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoErrorf(t, json.Unmarshal(rr.Body.Bytes(), &resp), "body: %s", rr.Body.String())
	return resp
}

// TestShortenAndRedirect проверяет полный путь: сокращение и переход по коду
func TestShortenAndRedirect(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	rr := env.do(shortenRequest(`{"original":"https://example.com/very/long/path"}`, testKey))
	require.Equalf(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp models.ShortenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, codegen.IsValid(resp.ShortCode))
	assert.Equal(t, "http://localhost:8090/s/"+resp.ShortCode, resp.ShortURL)

	rr = env.do(httptest.NewRequest(http.MethodGet, "/s/"+resp.ShortCode, nil))
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com/very/long/path", rr.Header().Get("Location"))

	s := env.registry.Snapshot()
	assert.EqualValues(t, 1, s.TotalLinksStored)
	assert.EqualValues(t, 1, s.LinksResolved)
	assert.EqualValues(t, 2, s.Admitted)
	assert.EqualValues(t, 1, s.ActiveClientCount)
}

func TestShortenValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantReason string
	}{
		{name: "not a url", body: `{"original":"not a url"}`, wantReason: ReasonInvalidURL},
		{name: "empty url", body: `{"original":""}`, wantReason: ReasonInvalidURL},
		{name: "missing field", body: `{}`, wantReason: ReasonInvalidURL},
		{name: "unsupported scheme", body: `{"original":"ftp://example.com/file"}`, wantReason: ReasonUnsupportedScheme},
		{name: "too long", body: `{"original":"https://example.com/` + strings.Repeat("a", 3000) + `"}`, wantReason: ReasonURLTooLong},
		{name: "far too long body", body: `{"original":"https://example.com/` + strings.Repeat("a", 100000) + `"}`, wantReason: ReasonURLTooLong},
		{name: "broken json", body: `{"original":`, wantReason: ReasonBadRequest},
		{name: "empty body", body: ``, wantReason: ReasonBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, defaultLimits(), Options{})

			rr := env.do(shortenRequest(tt.body, testKey))
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			resp := decodeError(t, rr)
			assert.Equal(t, tt.wantReason, resp.Reason)
			assert.NotEmpty(t, resp.ErrorMessage)

			// невалидный запрос не тратит токены ни одного уровня
			assert.InDelta(t, 100, env.limiter.Global().Tokens(), 1e-9)
			assert.Zero(t, env.limiter.Clients().Len())
			assert.Zero(t, env.registry.Snapshot().Admitted)
		})
	}
}

func TestShortenUnauthorized(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "missing key", key: ""},
		{name: "unknown key", key: "intruder"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, defaultLimits(), Options{})

			rr := env.do(shortenRequest(`{"original":"https://example.com"}`, tt.key))
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, ReasonUnauthorized, decodeError(t, rr).Reason)
			assert.InDelta(t, 100, env.limiter.Global().Tokens(), 1e-9)
		})
	}
}

func TestShortenClientRateLimited(t *testing.T) {
	limits := defaultLimits()
	limits.ClientCapacity = 2
	env := newTestEnv(t, limits, Options{})

	for i := 0; i < 2; i++ {
		rr := env.do(shortenRequest(`{"original":"https://example.com"}`, testKey))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := env.do(shortenRequest(`{"original":"https://example.com"}`, testKey))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "client", rr.Header().Get(HeaderRateLimitTier))
	assert.Equal(t, "1", rr.Header().Get(HeaderRetryAfter))
	assert.Equal(t, ReasonClientRateLimited, decodeError(t, rr).Reason)

	// другой клиент не затронут
	rr = env.do(shortenRequest(`{"original":"https://example.com"}`, "otherkey"))
	assert.Equal(t, http.StatusOK, rr.Code)

	// через секунду у клиента появляется токен
	env.clock.Advance(time.Second)
	rr = env.do(shortenRequest(`{"original":"https://example.com"}`, testKey))
	assert.Equal(t, http.StatusOK, rr.Code)

	s := env.registry.Snapshot()
	assert.EqualValues(t, 1, s.ClientRejected)
	assert.EqualValues(t, 4, s.TotalLinksStored)
}

func TestShortenGlobalRateLimited(t *testing.T) {
	limits := defaultLimits()
	limits.GlobalCapacity = 1
	limits.GlobalRate = 0.5
	env := newTestEnv(t, limits, Options{})

	rr := env.do(shortenRequest(`{"original":"https://example.com"}`, testKey))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(shortenRequest(`{"original":"https://example.com"}`, "otherkey"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "global", rr.Header().Get(HeaderRateLimitTier))
	assert.Equal(t, "2", rr.Header().Get(HeaderRetryAfter))
	assert.Equal(t, ReasonGlobalRateLimited, decodeError(t, rr).Reason)

	// отклонённый глобально клиент не получил bucket
	_, ok := env.limiter.Clients().Tokens(env.keys.Fingerprint("otherkey"))
	assert.False(t, ok)
}

func TestRedirectUnknownCode(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	for _, code := range []string{"kkkkkk", "nope", "0000000"} {
		rr := env.do(httptest.NewRequest(http.MethodGet, "/s/"+code, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rr.Body.String(), "404")
	}
	assert.Zero(t, env.registry.Snapshot().LinksResolved)
}

func TestRedirectGlobalRateLimited(t *testing.T) {
	limits := defaultLimits()
	limits.GlobalCapacity = 1
	env := newTestEnv(t, limits, Options{})

	link, err := env.links.Shorten(context.Background(), "https://example.com")
	require.NoError(t, err)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/s/"+link.Code, nil))
	assert.Equal(t, http.StatusFound, rr.Code)

	rr = env.do(httptest.NewRequest(http.MethodGet, "/s/"+link.Code, nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "global", rr.Header().Get(HeaderRateLimitTier))
	assert.Zero(t, env.limiter.Clients().Len(), "redirects never create client buckets")
}

func TestLinkInfo(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	link, err := env.links.Shorten(context.Background(), "https://example.com/info")
	require.NoError(t, err)
	env.do(httptest.NewRequest(http.MethodGet, "/s/"+link.Code, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/links/"+link.Code, nil)
	req.Header.Set(auth.HeaderAPIKey, testKey)
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code)

	var info models.LinkResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, link.Code, info.Code)
	assert.Equal(t, "https://example.com/info", info.OriginalURL)
	assert.EqualValues(t, 1, info.HitCount)

	req = httptest.NewRequest(http.MethodGet, "/api/links/kkkkkk", nil)
	req.Header.Set(auth.HeaderAPIKey, testKey)
	rr = env.do(req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, ReasonNotFound, decodeError(t, rr).Reason)

	rr = env.do(httptest.NewRequest(http.MethodGet, "/api/links/"+link.Code, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMetricsHandler(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	env.do(shortenRequest(`{"original":"https://example.com"}`, testKey))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var m models.MetricsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	assert.Equal(t, 100, m.GlobalCapacity)
	assert.Equal(t, 99, m.GlobalTokensAvailable)
	assert.Equal(t, 1, m.GlobalTokensUsed)
	assert.EqualValues(t, 1, m.ActiveClientCount)
	assert.EqualValues(t, 1, m.TotalLinksStored)

	// чтение метрик ограничителем не учитывается
	assert.InDelta(t, 99, env.limiter.Global().Tokens(), 1e-9)
}

func TestMetricsStream(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{StreamInterval: 5 * time.Millisecond})
	srv := httptest.NewServer(env.server.Router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/metrics/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	events := 0
	for events < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m models.MetricsResponse
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
		assert.Equal(t, 100, m.GlobalCapacity)
		events++
	}
}

func TestPrometheusEndpointTrustedSubnet(t *testing.T) {
	tests := []struct {
		name       string
		subnet     string
		realIP     string
		wantStatus int
	}{
		{name: "no subnet configured", subnet: "", realIP: "10.0.0.5", wantStatus: http.StatusForbidden},
		{name: "inside subnet", subnet: "10.0.0.0/8", realIP: "10.0.0.5", wantStatus: http.StatusOK},
		{name: "outside subnet", subnet: "10.0.0.0/8", realIP: "192.168.1.1", wantStatus: http.StatusForbidden},
		{name: "garbage ip", subnet: "10.0.0.0/8", realIP: "not-an-ip", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := metrics.NewRegistry()
			env := newTestEnv(t, defaultLimits(), Options{
				TrustedSubnet: tt.subnet,
				Exporter:      metrics.NewExporter(registry),
			})

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.Header.Set("X-Real-IP", tt.realIP)
			rr := env.do(req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestGzipResponse(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)

	var m models.MetricsResponse
	require.NoError(t, json.Unmarshal(body, &m))
	assert.Equal(t, 100, m.GlobalCapacity)
}

func TestGzipRequest(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"original":"https://example.com/gz"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/shorten", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set(auth.HeaderAPIKey, testKey)
	rr := env.do(req)
	assert.Equalf(t, http.StatusOK, rr.Code, "body: %s", rr.Body.String())
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rr = env.do(req)
	assert.Equal(t, "req-42", rr.Header().Get(HeaderRequestID))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/shorten", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", auth.HeaderAPIKey)
	rr := env.do(req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverer(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Recoverer(zap.NewNop().Sugar()))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, ReasonInternal, decodeError(t, rr).Reason)
}

func TestStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("secret"), 0o600))

	env := newTestEnv(t, defaultLimits(), Options{StaticDir: dir})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "app")

	rr = env.do(httptest.NewRequest(http.MethodGet, "/notes.txt", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotContains(t, rr.Body.String(), "secret")

	rr = env.do(httptest.NewRequest(http.MethodGet, "/missing/page", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNotFoundWithoutStatic(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{})

	rr := env.do(httptest.NewRequest(http.MethodGet, "/whatever", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(100*time.Millisecond))
	assert.Equal(t, 1, retryAfterSeconds(time.Second))
	assert.Equal(t, 2, retryAfterSeconds(1001*time.Millisecond))
}

func BenchmarkShortenHandler(b *testing.B) {
	b.StopTimer() // останавливаем таймер
	limits := defaultLimits()
	limits.GlobalCapacity = b.N + 1
	limits.ClientCapacity = b.N + 1

	env := newTestEnv(b, limits, Options{})
	b.StartTimer() // Запускаем таймер после подготовки данных

	for i := 0; i < b.N; i++ {
		env.do(shortenRequest(`{"original":"https://example.com"}`, testKey))
	}
}

func TestMetricsStreamClosesOnShutdown(t *testing.T) {
	env := newTestEnv(t, defaultLimits(), Options{StreamInterval: time.Hour})
	srv := httptest.NewServer(env.server.Router)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/metrics/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	env.server.Handler.CloseStreams()
	env.server.Handler.CloseStreams() // повторный вызов безопасен

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(reader)
		done <- err
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not closed")
	}
}
