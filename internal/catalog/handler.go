package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arbiterhq/arbiter/internal/platform/httpx"
)

// Handler exposes read-only catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Routes builds the catalog router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{code}", h.byCode)
	r.Get("/{code}/dependencies", h.dependencies)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if category := r.URL.Query().Get("category"); category != "" {
		perms, err := h.service.ListByCategory(r.Context(), Category(category))
		if err != nil {
			h.logger.Error("list permissions by category", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, perms)
		return
	}
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) byCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	perm, err := h.service.PermissionByCode(r.Context(), code)
	if err != nil {
		if err == ErrNotFound {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown permission "+code)
			return
		}
		h.logger.Error("permission by code", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) dependencies(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	deps, err := h.service.DependenciesOf(r.Context(), code)
	if err != nil {
		h.logger.Error("permission dependencies", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": code, "depends_on": deps})
}
