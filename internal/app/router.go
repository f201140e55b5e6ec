package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arbiterhq/arbiter/internal/audit"
	"github.com/arbiterhq/arbiter/internal/catalog"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/hierarchy"
	"github.com/arbiterhq/arbiter/internal/observability"
	"github.com/arbiterhq/arbiter/internal/permcache"
	"github.com/arbiterhq/arbiter/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CatalogHandler   *catalog.Handler
	HierarchyHandler *hierarchy.Handler
	EngineHandler    *engine.Handler
	AuditHandler     *audit.Handler
	CacheHandler     *permcache.Handler
	JobsHandler      *jobs.Handler
	Engine           *engine.Service
	Pool             *pgxpool.Pool
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router for the admin API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Error("health check failed", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Mount("/permissions", params.CatalogHandler.Routes())
		api.Mount("/roles", params.HierarchyHandler.Routes())
		api.Mount("/rbac", params.EngineHandler.Routes())

		// read access to the log and cache internals is itself gated
		api.With(params.Engine.RequireAny("AUDIT_VIEW", "AUDIT_TRAIL")).
			Mount("/audit", params.AuditHandler.Routes())
		api.With(params.Engine.RequireAny("SYSTEM_CONFIG_READ", "SYSTEM_CONFIG_WRITE")).
			Mount("/cache", params.CacheHandler.Routes())

		if params.JobsHandler != nil {
			api.Mount("/jobs", params.JobsHandler.Routes())
		}
	})

	return r
}
