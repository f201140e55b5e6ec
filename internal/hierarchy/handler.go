package hierarchy

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/platform/httpx"
)

// Handler exposes the role hierarchy admin surface.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.listRoles)
	r.Post("/edges", h.addEdge)
	r.Delete("/edges", h.removeEdge)
	r.Get("/{roleID}/permissions", h.inheritedPermissions)
	r.Get("/{roleID}/relations", h.relations)
	r.Get("/{roleID}/ancestors", h.ancestors)
	r.Get("/{roleID}/descendants", h.descendants)
	return r
}

type edgeRequest struct {
	ParentRoleID       uuid.UUID `json:"parent_role_id" validate:"required"`
	ChildRoleID        uuid.UUID `json:"child_role_id" validate:"required"`
	InheritPermissions *bool     `json:"inherit_permissions"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.svc.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) addEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	inherit := true
	if req.InheritPermissions != nil {
		inherit = *req.InheritPermissions
	}
	edge, err := h.svc.AddEdge(r.Context(), req.ParentRoleID, req.ChildRoleID, inherit, httpx.ActorID(r.Context()))
	if err != nil {
		respondHierarchyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, edge)
}

func (h *Handler) removeEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	if err := h.svc.RemoveEdge(r.Context(), req.ParentRoleID, req.ChildRoleID, httpx.ActorID(r.Context())); err != nil {
		respondHierarchyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) inheritedPermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	perms, err := h.svc.InheritedPermissions(r.Context(), roleID)
	if err != nil {
		respondHierarchyError(w, err)
		return
	}
	if perms == nil {
		perms = []RolePermission{}
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) relations(w http.ResponseWriter, r *http.Request) {
	roleID, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	rel, err := h.svc.RoleRelations(r.Context(), roleID)
	if err != nil {
		respondHierarchyError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rel)
}

func (h *Handler) ancestors(w http.ResponseWriter, r *http.Request) {
	h.walkEndpoint(w, r, h.svc.Ancestors)
}

func (h *Handler) descendants(w http.ResponseWriter, r *http.Request) {
	h.walkEndpoint(w, r, h.svc.Descendants)
}

func (h *Handler) walkEndpoint(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) ([]Role, error)) {
	roleID, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	roles, err := fn(r.Context(), roleID)
	if err != nil {
		respondHierarchyError(w, err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func roleIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role ID", "role id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func respondHierarchyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Role Not Found", err.Error())
	case errors.Is(err, ErrSelfEdge), errors.Is(err, ErrCycle):
		httpx.Problem(w, http.StatusConflict, "Invalid Hierarchy Edge", err.Error())
	case errors.Is(err, ErrDuplicateEdge), errors.Is(err, ErrDuplicateRolePermission):
		httpx.Problem(w, http.StatusConflict, "Already Exists", err.Error())
	case errors.Is(err, ErrEdgeNotFound):
		httpx.Problem(w, http.StatusNotFound, "Edge Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
