package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/estatecrm/estatecrm/internal/platform/httpx"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
	"github.com/estatecrm/estatecrm/internal/shared"
)

// Handler exposes the access administration endpoints as JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	checker   Checker
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, checker Checker, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, checker: checker, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers the access routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(catalog.ReadUser, catalog.ManageRoles))
		r.Get("/permissions", h.listPermissions)
		r.Get("/users/{userID}/permissions", h.effectivePermissions)
		r.Get("/ownership/{resourceType}/{resourceID}", h.listOwners)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(catalog.ManageRoles))
		r.Get("/users/{userID}/overrides", h.listOverrides)
		r.Post("/users/{userID}/overrides", h.saveOverride)
		r.Delete("/users/{userID}/overrides/{permission}", h.clearOverride)
		r.Post("/check", h.check)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(catalog.AssignLeads, catalog.ManageTeam))
		r.Put("/ownership", h.setOwner)
		r.Post("/ownership/transfer", h.transferOwnership)
	})
}

type overrideRequest struct {
	Permission string     `json:"permission" validate:"required"`
	Granted    *bool      `json:"granted" validate:"required"`
	Reason     string     `json:"reason" validate:"required,max=500"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type ownershipRequest struct {
	UserID       int64  `json:"user_id" validate:"required,gt=0"`
	ResourceType string `json:"resource_type" validate:"required"`
	ResourceID   int64  `json:"resource_id" validate:"required,gt=0"`
	Kind         string `json:"kind" validate:"omitempty,oneof=owner co_owner assignee"`
}

type checkRequest struct {
	UserID       int64  `json:"user_id" validate:"required,gt=0"`
	Permission   string `json:"permission" validate:"required"`
	ResourceType string `json:"resource_type" validate:"required_with=ResourceID"`
	ResourceID   int64  `json:"resource_id" validate:"required_with=ResourceType,gte=0"`
}

type checkResponse struct {
	Granted bool   `json:"granted"`
	Reason  Reason `json:"reason"`
	CallID  string `json:"call_id"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, catalog.ByCategory())
}

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	perms, err := h.service.ListEffectivePermissions(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	rows, err := h.service.ListOverrides(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) saveOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req overrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := catalog.ParsePermission(req.Permission)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.UserIDFromContext(r.Context())
	if err := h.service.CanAdminister(r.Context(), actorID, userID); err != nil {
		h.respondError(w, r, err)
		return
	}
	if *req.Granted {
		err = h.service.Grant(r.Context(), userID, perm, actorID, req.Reason, req.ExpiresAt)
	} else {
		if req.ExpiresAt != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "revocations do not expire")
			return
		}
		err = h.service.Revoke(r.Context(), userID, perm, actorID, req.Reason)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	perm, err := catalog.ParsePermission(chi.URLParam(r, "permission"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := shared.UserIDFromContext(r.Context())
	if err := h.service.CanAdminister(r.Context(), actorID, userID); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.ClearOverride(r.Context(), userID, perm); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setOwner(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	rt, err := catalog.ParseResourceType(req.ResourceType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetOwner(r.Context(), req.UserID, rt, req.ResourceID, OwnershipKind(req.Kind)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transferOwnership(w http.ResponseWriter, r *http.Request) {
	var req ownershipRequest
	if !h.decode(w, r, &req) {
		return
	}
	rt, err := catalog.ParseResourceType(req.ResourceType)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.TransferOwnership(r.Context(), rt, req.ResourceID, req.UserID, OwnershipKind(req.Kind)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOwners(w http.ResponseWriter, r *http.Request) {
	rt, err := catalog.ParseResourceType(chi.URLParam(r, "resourceType"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	resourceID, ok := h.pathID(w, r, "resourceID")
	if !ok {
		return
	}
	rows, err := h.service.Owners(r.Context(), rt, resourceID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := catalog.ParsePermission(req.Permission)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	check := Request{UserID: req.UserID, Permission: perm, Action: "debug check"}
	if req.ResourceType != "" {
		rt, err := catalog.ParseResourceType(req.ResourceType)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		check.Resource = &Resource{Type: rt, ID: req.ResourceID}
	}
	decision, err := h.checker.CheckPermission(r.Context(), check)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Granted: decision.Granted, Reason: decision.Reason, CallID: decision.CallID.String()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			fields := make(map[string]string, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
			httpx.JSON(w, http.StatusBadRequest, map[string]any{
				"title":  "Validation Failed",
				"status": http.StatusBadRequest,
				"fields": fields,
			})
			return false
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+param)
		return 0, false
	}
	return id, true
}

// respondError maps rbac errors onto httpx sentinels. Configuration and store
// failures are logged since they indicate a bug or a degraded system.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrOverrideNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidExpiry), errors.Is(err, ErrInvalidOwnership), errors.Is(err, ErrInvalidUser):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInsufficientPrivilege):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, catalog.ErrResourceMismatch):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		h.logError(r, err)
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logError(r, err)
		httpx.RespondError(w, err)
	}
}

func (h *Handler) logError(r *http.Request, err error) {
	if h.logger != nil {
		h.logger.Error("rbac admin", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
}
