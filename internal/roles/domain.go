package roles

import "github.com/estatecrm/estatecrm/internal/rbac/catalog"

// Role describes one catalog role and its default grant set.
type Role struct {
	Name        catalog.Role         `json:"name"`
	Title       string               `json:"title"`
	Level       int                  `json:"level"`
	Permissions []catalog.Permission `json:"permissions"`
	// Outranks lists the roles strictly below this one.
	Outranks []catalog.Role `json:"outranks"`
}
