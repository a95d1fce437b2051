package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if v, ok := c.Get(requestIDKey); !ok || v == "" {
			t.Fatalf("requestID not set in context")
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated %s header", requestIDHeader)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), "abc-123")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}

	// Oversized ids are replaced.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", 200))
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected fresh uuid, got %q", got)
	}
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"/bot123456:AAE-x_yz/getUpdates": "/bot[REDACTED]/getUpdates",
		"key=sk-abcdefghijkl":            "key=[REDACTED:key]",
		"tvly-1234567890abc":             "[REDACTED:key]",
		"to=peter@example.com":           "to=[REDACTED:email]",
		"page=2&page_size=10":            "page=2&page_size=10",
		"":                               "",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Fatalf("Redact(%q) = %q; want %q", in, got, want)
		}
	}
}

func TestAccessLog_LevelsRedactionAndSkip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(LogOptions{MaskHeaders: []string{"X-Api-Key"}, SkipPaths: []string{"/metrics"}}))
	r.GET("/ok", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusOK)
	})
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ok?email=a@b.io", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Api-Key", "k")
	req.Header.Set("X-Forwarded-For", "peter@example.com")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 { // inside + ok + bad + boom + nope
		t.Fatalf("expected 5 log lines, got %d:\n%s", len(lines), buf.String())
	}

	var inside, ok, bad, boom, nope map[string]any
	for _, pair := range []struct {
		line string
		dst  *map[string]any
	}{{lines[0], &inside}, {lines[1], &ok}, {lines[2], &bad}, {lines[3], &boom}, {lines[4], &nope}} {
		if err := json.Unmarshal([]byte(pair.line), pair.dst); err != nil {
			t.Fatalf("bad json %q: %v", pair.line, err)
		}
	}

	if inside["request_id"] == "" || inside["path"] != "/ok" {
		t.Fatalf("request-scoped logger missing fields: %v", inside)
	}
	if ok["level"] != "info" || ok["query"] != "email=[REDACTED:email]" {
		t.Fatalf("ok line unexpected: %v", ok)
	}
	hdrs := ok["headers"].(map[string]any)
	if hdrs["Authorization"] != "[REDACTED]" || hdrs["X-Api-Key"] != "[REDACTED]" || hdrs["X-Forwarded-For"] != "[REDACTED:email]" {
		t.Fatalf("headers not scrubbed: %v", hdrs)
	}
	if bad["level"] != "warn" || boom["level"] != "error" {
		t.Fatalf("levels: bad=%v boom=%v", bad["level"], boom["level"])
	}
	if nope["path"] != "/nope" || nope["status"] != float64(404) {
		t.Fatalf("404 path fallback: %v", nope)
	}
}

func TestAccessLog_GinErrorsLogAsError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(AccessLog(LogOptions{}))
	r.GET("/e", func(c *gin.Context) {
		_ = c.Error(errSentinel{})
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/e", nil))

	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected error log with gin errors, got %s", buf.String())
	}
}

type errSentinel struct{}

func (e errSentinel) Error() string { return "boom" }

func TestRecovery_PanicsToJSON500AndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic(errSentinel{}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestRecovery_PanicAfterWrite_NoJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("JSON written after body: %q", w.Body.String())
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatal("nil fallback logger")
	}
	c.Set(loggerKey, "not a logger")
	if LoggerFrom(c) == nil {
		t.Fatal("nil fallback logger on wrong type")
	}
}

func TestHelpers_asString_and_truncate(t *testing.T) {
	if asString(42) != "" || asString("x") != "x" {
		t.Fatal("asString")
	}
	if truncate("abcdef", 3) != "abc…" || truncate("abc", 0) != "abc" || truncate("ab", 5) != "ab" {
		t.Fatal("truncate")
	}
}
