// Package httpx wires the HTTP surface: common middleware, health, metrics,
// API docs, the public beacon routes and the admin lookups.
package httpx

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	fiberSwagger "github.com/swaggo/fiber-swagger"

	"visitor-beacon-api/internal/httpx/admin"
	"visitor-beacon-api/internal/httpx/mw"
	"visitor-beacon-api/internal/httpx/visitors"
)

// RateLimit bounds beacon ingestion per client IP. Max <= 0 disables it.
type RateLimit struct {
	WindowSec int
	Max       int
}

// Deps are the collaborators the routes need. Search, Redis and Health
// are optional.
type Deps struct {
	Visitors  visitors.Service
	Store     admin.VisitorGetter
	Search    admin.Searcher
	Redis     *redis.Client
	Health    []HealthCheck
	Auth      mw.TokenParser
	RateLimit RateLimit
}

// visitorPrefixes mounts the beacon routes at the bare path and under /api,
// where the site's pages post them.
var visitorPrefixes = []string{"/visitors", "/api/visitors"}

func Register(app *fiber.App, d Deps) {
	app.Get("/health", HealthHandler(d.Health...))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/swagger/*", fiberSwagger.WrapHandler)

	var limiterStore redis.Scripter
	if d.Redis != nil {
		limiterStore = d.Redis
	}
	limit := mw.RateLimitByIP(limiterStore, d.RateLimit.WindowSec, d.RateLimit.Max)
	for _, prefix := range visitorPrefixes {
		g := app.Group(prefix)
		g.Post("/", limit, visitors.IngestHandler(d.Visitors))
		g.Get("/online", visitors.OnlineHandler(d.Visitors))
	}

	auth := d.Auth
	if auth == nil {
		auth = mw.HS256Parser("", "")
	}
	ag := app.Group("/admin", mw.JWTMiddlewareDynamic(auth), mw.RequireRoles("admin"))
	if d.Search != nil {
		ag.Get("/visitors/search", admin.SearchVisitorsHandler(d.Search))
	}
	if d.Store != nil {
		ag.Get("/visitors/:id", admin.GetVisitorHandler(d.Store))
	}
}
