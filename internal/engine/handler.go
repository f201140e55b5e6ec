package engine

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/platform/httpx"
	"github.com/arbiterhq/arbiter/internal/users"
)

// Handler exposes the resolution and gate operations over the admin API.
// Gate refusals come back as 200 responses with the result object; only
// transport and infrastructure failures use error status codes.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/users/{userID}/permissions", h.effectivePermissions)
	r.Get("/users/{userID}/permissions/check", h.check)
	r.Get("/users/{userID}/permissions/temporary", h.temporary)
	r.Post("/users/{userID}/permissions", h.grant)
	r.Delete("/users/{userID}/permissions/{code}", h.revoke)
	r.Patch("/users/{userID}/permissions/{code}/expiry", h.extend)
	r.Post("/users/{userID}/type", h.elevate)

	r.Get("/can-grant", h.canGrant)
	r.Post("/cleanup", h.cleanup)

	r.Post("/bulk/grant", h.bulkGrant)
	r.Post("/bulk/revoke", h.bulkRevoke)
	r.Post("/bulk/assign-roles", h.bulkAssignRoles)
	r.Post("/bulk/remove-roles", h.bulkRemoveRoles)
	r.Post("/bulk/role-permissions", h.bulkRolePermissions)

	return r
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	perms, err := h.svc.EffectivePermissions(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if perms == nil {
		perms = []EffectivePermission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     userID,
		"permissions": perms,
	})
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Parameter", "code is required")
		return
	}
	requireDeps := true
	if raw := r.URL.Query().Get("require_dependencies"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "require_dependencies must be a boolean")
			return
		}
		requireDeps = v
	}
	result, err := h.svc.CheckPermissionWithRisk(r.Context(), userID, code, requireDeps)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) temporary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	report, err := h.svc.TemporaryPermissions(r.Context(), userID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type grantRequest struct {
	PermissionCode string     `json:"permission_code" validate:"required"`
	ExpiresAt      *time.Time `json:"expires_at"`
	Reason         string     `json:"reason"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		res OpResult
		err error
	)
	if req.ExpiresAt != nil {
		res, err = h.svc.GrantTemporary(r.Context(), actorID, userID, req.PermissionCode, *req.ExpiresAt, req.Reason)
	} else {
		res, err = h.svc.Grant(r.Context(), actorID, userID, req.PermissionCode)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	res, err := h.svc.Revoke(r.Context(), actorID, userID, chi.URLParam(r, "code"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type extendRequest struct {
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

func (h *Handler) extend(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	var req extendRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.ExtendTemporary(r.Context(), actorID, userID, chi.URLParam(r, "code"), req.ExpiresAt)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type elevateRequest struct {
	UserType string `json:"user_type" validate:"required"`
}

func (h *Handler) elevate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	var req elevateRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.ElevateUserType(r.Context(), actorID, userID, users.Type(req.UserType))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) canGrant(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	granterID, err := uuid.Parse(q.Get("granter_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "granter_id must be a UUID")
		return
	}
	granteeID, err := uuid.Parse(q.Get("grantee_id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Parameter", "grantee_id must be a UUID")
		return
	}
	code := q.Get("code")
	if code == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Parameter", "code is required")
		return
	}
	d, err := h.svc.CanGrant(r.Context(), granterID, granteeID, code)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) cleanup(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.svc.CleanupExpired(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"cleaned_count": cleaned})
}

type bulkGrantRequest struct {
	UserID          uuid.UUID  `json:"user_id" validate:"required"`
	PermissionCodes []string   `json:"permission_codes" validate:"required,min=1"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (h *Handler) bulkGrant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	var req bulkGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.BulkGrant(r.Context(), actorID, req.UserID, req.PermissionCodes, req.ExpiresAt)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) bulkRevoke(w http.ResponseWriter, r *http.Request) {
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	var req bulkGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.BulkRevoke(r.Context(), actorID, req.UserID, req.PermissionCodes)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type bulkRolesRequest struct {
	UserID  uuid.UUID   `json:"user_id" validate:"required"`
	RoleIDs []uuid.UUID `json:"role_ids" validate:"required,min=1"`
}

func (h *Handler) bulkAssignRoles(w http.ResponseWriter, r *http.Request) {
	h.bulkRoles(w, r, h.svc.BulkAssignRoles)
}

func (h *Handler) bulkRemoveRoles(w http.ResponseWriter, r *http.Request) {
	h.bulkRoles(w, r, h.svc.BulkRemoveRoles)
}

func (h *Handler) bulkRoles(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actorID, userID uuid.UUID, roleIDs []uuid.UUID) (BulkResult, error)) {
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	var req bulkRolesRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := fn(r.Context(), actorID, req.UserID, req.RoleIDs)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type bulkRolePermsRequest struct {
	RoleID          uuid.UUID `json:"role_id" validate:"required"`
	PermissionCodes []string  `json:"permission_codes" validate:"required,min=1"`
}

func (h *Handler) bulkRolePermissions(w http.ResponseWriter, r *http.Request) {
	actorID, ok := httpx.RequireActor(w, r.Context())
	if !ok {
		return
	}
	var req bulkRolePermsRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.BulkAssignPermissionsToRole(r.Context(), actorID, req.RoleID, req.PermissionCodes)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return false
	}
	return true
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User ID", "user id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, users.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "User Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}
