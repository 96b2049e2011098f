package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/platform/httpx"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

const (
	defaultDateRange  = 7 * 24 * time.Hour
	maxDateRangeHours = 24 * 90
	dateLayout        = "2006-01-02"
)

// QueryService reads the access log.
type QueryService interface {
	Query(ctx context.Context, filter audit.Filter) (audit.Result, error)
	Export(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Exporter writes access-log exports.
type Exporter interface {
	WriteCSV(rows []audit.Entry) ([]byte, error)
}

// Handler serves access-log queries and exports.
type Handler struct {
	logger   *slog.Logger
	service  QueryService
	exporter Exporter
	rbac     rbac.Middleware
	now      func() time.Time
}

// NewHandler builds an access-log handler.
func NewHandler(logger *slog.Logger, service QueryService, exporter Exporter, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		exporter: exporter,
		rbac:     rbac,
		now:      time.Now,
	}
}

type pageResponse struct {
	Rows   []audit.Entry    `json:"rows"`
	Paging audit.PagingInfo `json:"paging"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	result, err := h.service.Query(r.Context(), filter)
	if err != nil {
		h.handleServerError(w, "query access log", err)
		return
	}
	rows := result.Rows
	if rows == nil {
		rows = []audit.Entry{}
	}
	httpx.JSON(w, http.StatusOK, pageResponse{Rows: rows, Paging: result.Paging})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		h.handleFilterError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filter)
	if err != nil {
		if errors.Is(err, audit.ErrExportTooLarge) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Export Too Large", err.Error())
			return
		}
		h.handleServerError(w, "export access log", err)
		return
	}
	csvBytes, err := h.exporter.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"access-log.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	to := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.Filter{}, validationError{field: "to"}
		}
		to = parsed.Add(24 * time.Hour)
	}
	from := to.Add(-defaultDateRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			return audit.Filter{}, validationError{field: "from"}
		}
		from = parsed
	}
	if !from.Before(to) || to.Sub(from) > maxDateRangeHours*time.Hour {
		return audit.Filter{}, validationError{field: "range"}
	}

	filter := audit.Filter{From: from, To: to}
	var err error
	if filter.UserID, err = optionalID(q.Get("user_id")); err != nil {
		return audit.Filter{}, validationError{field: "user_id"}
	}
	if filter.ResourceID, err = optionalID(q.Get("resource_id")); err != nil {
		return audit.Filter{}, validationError{field: "resource_id"}
	}
	if v := strings.TrimSpace(q.Get("permission")); v != "" {
		if filter.Permission, err = catalog.ParsePermission(v); err != nil {
			return audit.Filter{}, validationError{field: "permission"}
		}
	}
	if v := strings.TrimSpace(q.Get("resource_type")); v != "" {
		if filter.ResourceType, err = catalog.ParseResourceType(v); err != nil {
			return audit.Filter{}, validationError{field: "resource_type"}
		}
	}
	if v := strings.TrimSpace(q.Get("granted")); v != "" {
		granted, err := strconv.ParseBool(v)
		if err != nil {
			return audit.Filter{}, validationError{field: "granted"}
		}
		filter.Granted = &granted
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filter{}, validationError{field: "page"}
		}
		filter.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.Filter{}, validationError{field: "page_size"}
		}
		filter.PageSize = parsed
	}
	return filter, nil
}

func optionalID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func (h *Handler) handleFilterError(w http.ResponseWriter, err error) {
	var v validationError
	if errors.As(err, &v) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid "+v.field)
		return
	}
	h.handleServerError(w, "validate filters", err)
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	if h.logger != nil {
		h.logger.Error(message, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

type validationError struct {
	field string
}

func (validationError) Error() string {
	return "validation failed"
}
