package permcache

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arbiterhq/arbiter/internal/platform/httpx"
)

// Handler exposes cache administration endpoints.
type Handler struct {
	logger *slog.Logger
	store  *Store
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// Routes builds the cache admin router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", h.stats)
	r.Get("/health", h.health)
	r.Post("/clear", h.clear)
	return r
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	health := h.store.HealthCheck(r.Context())
	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httpx.JSON(w, status, health)
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	cleared := h.store.Clear(r.Context())
	h.logger.Info("rbac cache cleared", slog.Int("entries", cleared))
	httpx.JSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}
