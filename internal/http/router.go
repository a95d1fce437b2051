// Package httpapi wires the ops HTTP surface (Gin) to the concierge. It owns
// the middleware chain: tracing, correlation IDs, access logging with
// redaction, panic recovery, metrics, compression, rate limiting, CORS and
// security headers.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. AccessLog (request-scoped logger, header masking)
//  4. Recovery (after the logger so panics carry the request id)
//  5. Body size limit
//  6. Metrics
//  7. Gzip
//  8. Rate limiter (probes and /metrics exempt)
//  9. CORS and security headers
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/psemmelhack/fm-agent/docs" // registers the OpenAPI document
	"github.com/psemmelhack/fm-agent/internal/config"
	"github.com/psemmelhack/fm-agent/internal/http/handlers"
	"github.com/psemmelhack/fm-agent/internal/http/middleware"
)

const maxBodyBytes = 1 << 20

var (
	corsMethods       = []string{"GET", "POST", "OPTIONS"}
	corsAllowHeaders  = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey}
	corsExposeHeaders = []string{middleware.RequestIDHeader, "Content-Length", "ETag"}
)

// RegisterRoutes attaches the middleware chain and every ops endpoint to r.
func RegisterRoutes(r *gin.Engine, deps handlers.Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.LogOptions{
		MaskHeaders: []string{"X-Api-Key"},
		SkipPaths:   []string{"/metrics"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP(), "/health", "/ready", "/metrics")
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:          cfg.Security.EnableHSTS,
		HSTSMaxAge:          cfg.Security.HSTSMaxAge,
		NoStore:             true,
		SkipNoStorePrefixes: []string{"/swagger/"},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps)

	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200})

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/state", h.GetState)
		api.GET("/commitments", h.ListCommitments)

		api.POST("/triggers/greeting", idem, h.TriggerGreeting)
		api.POST("/triggers/sweep", idem, h.TriggerSweep)
	}
}

// corsMiddleware allows any origin when none are configured, otherwise only
// the listed ones. Credentials are never allowed.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     corsMethods,
		AllowHeaders:     corsAllowHeaders,
		ExposeHeaders:    corsExposeHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

// limitBody caps the request body at maxBytes; reads past the cap error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
