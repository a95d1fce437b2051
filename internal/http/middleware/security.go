// Package middleware – security headers
//
// SecurityHeaders attaches a conservative header set for a JSON API behind a
// reverse proxy. Ops responses carry the conversation state and the
// principal's commitments, so NoStore is normally on.
//
// Design notes:
//   - No CSP: the API serves JSON, and the Swagger UI is the only HTML page.
//   - HSTS is opt-in and only applied when the request is actually HTTPS,
//     either directly or as reported by X-Forwarded-Proto.
//   - Swagger assets are exempted from no-store through SkipNoStorePrefixes
//     so the UI does not refetch every file on each load.
//   - X-Request-ID is added to Access-Control-Expose-Headers so browser
//     callers can read the correlation id.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
//
// EnableHSTS controls whether Strict-Transport-Security is sent on HTTPS
// requests. It is never sent on plain HTTP. Enable it only when traffic is
// HTTPS end-to-end, including between the proxy and the process.
//
// HSTSMaxAge is the HSTS lifetime. Values <= 0 default to 180 days.
//
// NoStore adds Cache-Control: no-store and Pragma: no-cache so proxies and
// browsers never keep a copy of state or commitment listings.
type SecurityOptions struct {
	EnableHSTS bool          // set true only when traffic is HTTPS end-to-end
	HSTSMaxAge time.Duration // e.g., 180 * 24h
	NoStore    bool          // add Cache-Control: no-store
	// SkipNoStorePrefixes are paths that may be cached even when NoStore is
	// set, e.g. the Swagger UI assets.
	SkipNoStorePrefixes []string
}

// SecurityHeaders returns a Gin middleware that adds security headers to
// each response.
//
// Behavior:
//   - Always sets:
//     X-Content-Type-Options: nosniff
//     X-Frame-Options: DENY
//     Referrer-Policy: no-referrer
//     Permissions-Policy: geolocation=(), microphone=(), camera=(), payment=()
//   - Sets (when NoStore and the path is not skipped):
//     Cache-Control: no-store
//     Pragma: no-cache
//   - Sets (when EnableHSTS && request is HTTPS):
//     Strict-Transport-Security: max-age=<seconds>; includeSubDomains
//   - Appends X-Request-ID to Access-Control-Expose-Headers when the
//     RequestID middleware already set it.
//
// Headers are set before c.Next(), so they are present even when a later
// handler aborts.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int64(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int64((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.FormatInt(maxAge, 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")

		if opt.NoStore && !hasAnyPrefix(c.Request.URL.Path, opt.SkipNoStorePrefixes) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			const hdr = "Access-Control-Expose-Headers"
			switch cur := h.Get(hdr); {
			case cur == "":
				h.Set(hdr, requestIDHeader)
			case !strings.Contains(cur, requestIDHeader):
				h.Set(hdr, cur+", "+requestIDHeader)
			}
		}

		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS directly or via a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
