package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/estatecrm/estatecrm/internal/platform/httpx"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
	"github.com/estatecrm/estatecrm/internal/shared"
)

// Checker is the capability a route guard needs.
type Checker interface {
	CheckPermission(ctx context.Context, req Request) (Decision, error)
}

// Middleware wires permission checks in front of HTTP handlers. A deny ends
// the request with 403; the handler never runs "best effort".
type Middleware struct {
	Checker Checker
	Logger  *slog.Logger
}

// Require allows the request only when the current user holds perm.
func (m Middleware) Require(perm catalog.Permission) func(http.Handler) http.Handler {
	return m.RequireAny(perm)
}

// RequireAny allows the request when the current user holds at least one of
// perms. Permissions are checked in order and each check is audited.
func (m Middleware) RequireAny(perms ...catalog.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID, ok := shared.UserIDFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			for _, perm := range perms {
				decision, err := m.Checker.CheckPermission(r.Context(), Request{
					UserID:     userID,
					Permission: perm,
					Action:     action(r),
				})
				if err != nil {
					m.fail(w, r, err)
					return
				}
				if decision.Granted {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
		})
	}
}

// RequireResource allows the request when the current user holds perm on the
// resource whose id is the chi URL parameter param.
func (m Middleware) RequireResource(perm catalog.Permission, resourceType catalog.ResourceType, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.UserIDFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			resourceID, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil || resourceID <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+param)
				return
			}
			decision, err := m.Checker.CheckPermission(r.Context(), Request{
				UserID:     userID,
				Permission: perm,
				Resource:   &Resource{Type: resourceType, ID: resourceID},
				Action:     action(r),
			})
			if err != nil {
				m.fail(w, r, err)
				return
			}
			if !decision.Granted {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) fail(w http.ResponseWriter, r *http.Request, err error) {
	if m.Logger != nil {
		m.Logger.Error("rbac check", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	if errors.Is(err, ErrStoreUnavailable) {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
		return
	}
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func action(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return r.Method + " " + r.URL.Path
}
