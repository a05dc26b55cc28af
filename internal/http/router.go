// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns:
// tracing, correlation ids, structured logging, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after the logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS, gzip, security headers
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/benedektothten/localchat-backend/internal/config"
	"github.com/benedektothten/localchat-backend/internal/http/handlers"
	"github.com/benedektothten/localchat-backend/internal/http/middleware"
	"github.com/benedektothten/localchat-backend/internal/hub"
	"github.com/benedektothten/localchat-backend/internal/services"
)

// Deps carries the constructed application services into the router.
type Deps struct {
	Dispatcher *services.Dispatcher
	Messages   *services.Messages
	Hub        *hub.Hub
	JoinGate   hub.JoinGate
}

// RegisterRoutes attaches all middleware and endpoints to the engine: health
// and metrics at the root, the websocket endpoint at /ws, and the versioned
// message API under cfg.APIBasePath.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	r.Use(corsFor(cfg))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.EnableHSTS,
		HSTSMaxAge: cfg.HSTSMaxAge,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(deps.Dispatcher, deps.Messages)
	ws := handlers.NewWSHandler(deps.Hub, deps.JoinGate, nil)

	// The websocket endpoint authenticates but skips the rate limiter: one
	// long-lived connection, not request traffic.
	r.GET("/ws", middleware.RequireUser(), ws.Serve)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.RequireUser(), rl.Handler())
	{
		api.POST("/messages", h.PostMessage)
		api.GET("/messages", h.ListMessages)
		api.GET("/messages/:id", h.GetMessage)
	}
}

// corsFor builds the CORS policy: allow-all when no origins are configured,
// otherwise the configured allowlist.
func corsFor(cfg config.Config) gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
	} else {
		base.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	return cors.New(base)
}

// limitBody caps the request body size using http.MaxBytesReader; reads past
// the cap error out downstream.
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
