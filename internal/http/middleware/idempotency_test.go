package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func idemRouter(opts IdempotencyOptions, seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/triggers/greeting", IdempotencyValidator(opts), func(c *gin.Context) {
		k, ok := GetIdempotencyKey(c)
		if ok {
			*seen = k
		}
		c.Status(http.StatusAccepted)
	})
	return r
}

func TestIdempotencyValidator_AbsentHeaderPassesThrough(t *testing.T) {
	var seen string
	r := idemRouter(IdempotencyOptions{}, &seen)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/triggers/greeting", nil))

	if w.Code != http.StatusAccepted || seen != "" {
		t.Fatalf("code=%d seen=%q", w.Code, seen)
	}
}

func TestIdempotencyValidator_StashesValidKey(t *testing.T) {
	var seen string
	r := idemRouter(IdempotencyOptions{}, &seen)

	req := httptest.NewRequest(http.MethodPost, "/triggers/greeting", nil)
	req.Header.Set(HeaderIdempotencyKey, "outage-2026-10-14:retry.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted || seen != "outage-2026-10-14:retry.1" {
		t.Fatalf("code=%d seen=%q", w.Code, seen)
	}
}

func TestIdempotencyValidator_Rejects(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"bad chars", IdempotencyOptions{}, "has space"},
		{"too long default", IdempotencyOptions{}, strings.Repeat("a", 201)},
		{"too long custom", IdempotencyOptions{MaxLen: 4}, "abcde"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			r := idemRouter(tc.opts, &seen)
			req := httptest.NewRequest(http.MethodPost, "/triggers/greeting", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("code=%d", w.Code)
			}
			var body map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body["code"] != "bad_idempotency_key" || seen != "" {
				t.Fatalf("body=%v seen=%q", body, seen)
			}
		})
	}
}

func TestGetIdempotencyKey_NonString(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ctxKeyIdemKey, 123)
	if k, ok := GetIdempotencyKey(c); ok || k != "" {
		t.Fatalf("got %q,%v", k, ok)
	}
}
