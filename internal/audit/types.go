package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// Entry is one access-log row. Exactly one is written per permission check and
// rows are never updated or deleted. Permission and ResourceType hold the
// serialized identifiers of what was asked, even when the request referenced
// something outside the catalog.
type Entry struct {
	ID           int64     `json:"id,omitempty"`
	CallID       uuid.UUID `json:"call_id"`
	UserID       int64     `json:"user_id"`
	ResourceType string    `json:"resource_type,omitempty"`
	ResourceID   *int64    `json:"resource_id,omitempty"`
	Action       string    `json:"action"`
	Permission   string    `json:"permission"`
	Granted      bool      `json:"granted"`
	Reason       string    `json:"reason"`
	At           time.Time `json:"at"`
}

// Filter narrows access-log queries. Zero values match everything.
type Filter struct {
	UserID       int64
	Permission   catalog.Permission
	ResourceType catalog.ResourceType
	ResourceID   int64
	Granted      *bool
	From         time.Time
	To           time.Time
	Page         int
	PageSize     int
}

// ListParams is the repository-level query: the filter plus a window.
type ListParams struct {
	Filter Filter
	Offset int
	Limit  int
}

// Result wraps one page of entries with paging information.
type Result struct {
	Rows   []Entry
	Paging PagingInfo
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Matches reports whether e satisfies every non-zero field of f. Stores that
// cannot push the filter into a query use it to filter in memory.
func (f Filter) Matches(e Entry) bool {
	if f.UserID != 0 && e.UserID != f.UserID {
		return false
	}
	if f.Permission.Valid() && e.Permission != f.Permission.String() {
		return false
	}
	if f.ResourceType.Valid() && e.ResourceType != f.ResourceType.String() {
		return false
	}
	if f.ResourceID != 0 && (e.ResourceID == nil || *e.ResourceID != f.ResourceID) {
		return false
	}
	if f.Granted != nil && e.Granted != *f.Granted {
		return false
	}
	if !f.From.IsZero() && e.At.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.At.Before(f.To) {
		return false
	}
	return true
}
