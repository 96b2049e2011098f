package users

import (
	"time"

	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// User is a CRM account as seen by access administration.
type User struct {
	ID        int64        `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Role      catalog.Role `json:"role"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ListFilter narrows user listings. A zero Role matches every role.
type ListFilter struct {
	Role    catalog.Role
	Page    int
	PerPage int
}
