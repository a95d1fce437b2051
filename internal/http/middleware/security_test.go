package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveWith(opt SecurityOptions, req *http.Request, pre ...gin.HandlerFunc) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(pre...)
	r.Use(SecurityHeaders(opt))
	r.GET("/*any", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveWith(SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/state", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "no-referrer",
	}
	for k, v := range want {
		if got := h.Get(k); got != v {
			t.Fatalf("%s = %q; want %q", k, got, v)
		}
	}
	if h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("optional headers set by default: %v", h)
	}
	if h.Get("Access-Control-Expose-Headers") != "" {
		t.Fatalf("expose header without request id")
	}
}

func TestSecurityHeaders_NoStoreWithSkip(t *testing.T) {
	opt := SecurityOptions{NoStore: true, SkipNoStorePrefixes: []string{"/swagger/"}}

	if h := serveWith(opt, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)); h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" {
		t.Fatalf("no-store missing: %v", h)
	}
	if h := serveWith(opt, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)); h.Get("Cache-Control") != "" {
		t.Fatalf("swagger should be cacheable: %v", h)
	}
}

func TestSecurityHeaders_HSTSOnlyOnHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}

	if h := serveWith(opt, httptest.NewRequest(http.MethodGet, "/", nil)); h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS on plain http")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	if got := serveWith(opt, req).Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if serveWith(SecurityOptions{EnableHSTS: true}, req).Get("Strict-Transport-Security") != "max-age=15552000; includeSubDomains" {
		t.Fatalf("default max age not applied behind proxy")
	}
}

func TestSecurityHeaders_ExposeRequestID(t *testing.T) {
	setRID := func(c *gin.Context) { c.Header(requestIDHeader, "rid-1"); c.Next() }
	h := serveWith(SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/", nil), setRID)
	if h.Get("Access-Control-Expose-Headers") != requestIDHeader {
		t.Fatalf("expose = %q", h.Get("Access-Control-Expose-Headers"))
	}

	setBoth := func(c *gin.Context) {
		c.Header(requestIDHeader, "rid-1")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Next()
	}
	h = serveWith(SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/", nil), setBoth)
	if h.Get("Access-Control-Expose-Headers") != "Content-Length, X-Request-ID" {
		t.Fatalf("expose = %q", h.Get("Access-Control-Expose-Headers"))
	}
}
