package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/estatecrm/estatecrm/internal/platform/httpx"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
	"github.com/estatecrm/estatecrm/internal/shared"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the access-log listing and the rate-limited CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Group(func(gr chi.Router) {
		gr.Use(h.rbac.Require(catalog.ViewAuditLog))
		gr.Get("/", h.handleList)
		gr.Group(func(er chi.Router) {
			er.Use(limiter)
			er.Use(h.rbac.Require(catalog.ExportData))
			er.Get("/export.csv", h.handleExport)
		})
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if userID, ok := shared.UserIDFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(userID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
