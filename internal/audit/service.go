package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
	maxExportRows   = 10000
)

// ErrInvalidEntry indicates an entry missing its identifying fields.
var ErrInvalidEntry = errors.New("audit: entry requires call_id, permission and action")

// ErrExportTooLarge indicates an export exceeding maxExportRows.
var ErrExportTooLarge = errors.New("audit: export exceeds row limit, narrow the filter")

// Repository persists and lists access-log entries.
type Repository interface {
	InsertAccessLog(ctx context.Context, entry Entry) error
	ListAccessLog(ctx context.Context, params ListParams) ([]Entry, error)
}

// Service coordinates writing and reading the access log.
type Service struct {
	repo Repository
}

// NewService builds an audit service over repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends one entry. Writing the same CallID twice is a no-op at the
// repository level.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	if entry.CallID == uuid.Nil || strings.TrimSpace(entry.Permission) == "" || strings.TrimSpace(entry.Action) == "" {
		return ErrInvalidEntry
	}
	return s.repo.InsertAccessLog(ctx, entry)
}

// Query returns one page of entries, newest first.
func (s *Service) Query(ctx context.Context, filter Filter) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	filter.Page, filter.PageSize = page, pageSize
	rows, err := s.repo.ListAccessLog(ctx, ListParams{
		Filter: filter,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Each streams every entry matching filter, page by page, starting at
// filter.Page. Returning an error from fn stops the walk.
func (s *Service) Each(ctx context.Context, filter Filter, fn func(Entry) error) error {
	if fn == nil {
		return errors.New("audit: callback required")
	}
	if filter.PageSize <= 0 {
		filter.PageSize = maxPageSize
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := s.Query(ctx, filter)
		if err != nil {
			return err
		}
		for _, row := range result.Rows {
			if err := fn(row); err != nil {
				return err
			}
		}
		if !result.Paging.HasNext {
			return nil
		}
		filter.Page = result.Paging.NextPage
	}
}

// Export collects every matching entry for download.
func (s *Service) Export(ctx context.Context, filter Filter) ([]Entry, error) {
	filter.Page = 1
	var rows []Entry
	err := s.Each(ctx, filter, func(e Entry) error {
		if len(rows) >= maxExportRows {
			return ErrExportTooLarge
		}
		rows = append(rows, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
