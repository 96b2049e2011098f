package catalog

import (
	"strconv"
	"strings"
)

// Permission is an atomic capability. The zero value is not a valid permission.
type Permission uint8

const (
	CreateUser Permission = iota + 1
	ReadUser
	UpdateUser
	DeleteUser
	ManageRoles

	CreateClient
	ReadClient
	UpdateClient
	DeleteClient
	ReadAllClients
	ManageAllClients

	CreateProperty
	ReadProperty
	UpdateProperty
	DeleteProperty
	ReadAllProperties
	ManageAllProperties

	CreateTransaction
	ReadTransaction
	UpdateTransaction
	DeleteTransaction
	ReadAllTransactions
	ManageAllTransactions

	CreateDocument
	ReadDocument
	UpdateDocument
	DeleteDocument
	ReadAllDocuments
	ManageAllDocuments

	ViewReports
	ViewAnalytics
	ExportData

	SystemConfig
	ViewAuditLog
	ManageIntegrations

	ViewTeam
	ManageTeam
	AssignLeads

	permissionSentinel
)

// Category groups permissions for display and audit. It has no effect on resolution.
type Category string

const (
	CategoryUser        Category = "user"
	CategoryClient      Category = "client"
	CategoryProperty    Category = "property"
	CategoryTransaction Category = "transaction"
	CategoryDocument    Category = "document"
	CategoryReporting   Category = "reporting"
	CategorySystem      Category = "system"
	CategoryTeam        Category = "team"
)

type permissionInfo struct {
	name     string
	category Category
}

var permissions = [...]permissionInfo{
	CreateUser:  {"CREATE_USER", CategoryUser},
	ReadUser:    {"READ_USER", CategoryUser},
	UpdateUser:  {"UPDATE_USER", CategoryUser},
	DeleteUser:  {"DELETE_USER", CategoryUser},
	ManageRoles: {"MANAGE_ROLES", CategoryUser},

	CreateClient:     {"CREATE_CLIENT", CategoryClient},
	ReadClient:       {"READ_CLIENT", CategoryClient},
	UpdateClient:     {"UPDATE_CLIENT", CategoryClient},
	DeleteClient:     {"DELETE_CLIENT", CategoryClient},
	ReadAllClients:   {"READ_ALL_CLIENTS", CategoryClient},
	ManageAllClients: {"MANAGE_ALL_CLIENTS", CategoryClient},

	CreateProperty:      {"CREATE_PROPERTY", CategoryProperty},
	ReadProperty:        {"READ_PROPERTY", CategoryProperty},
	UpdateProperty:      {"UPDATE_PROPERTY", CategoryProperty},
	DeleteProperty:      {"DELETE_PROPERTY", CategoryProperty},
	ReadAllProperties:   {"READ_ALL_PROPERTIES", CategoryProperty},
	ManageAllProperties: {"MANAGE_ALL_PROPERTIES", CategoryProperty},

	CreateTransaction:     {"CREATE_TRANSACTION", CategoryTransaction},
	ReadTransaction:       {"READ_TRANSACTION", CategoryTransaction},
	UpdateTransaction:     {"UPDATE_TRANSACTION", CategoryTransaction},
	DeleteTransaction:     {"DELETE_TRANSACTION", CategoryTransaction},
	ReadAllTransactions:   {"READ_ALL_TRANSACTIONS", CategoryTransaction},
	ManageAllTransactions: {"MANAGE_ALL_TRANSACTIONS", CategoryTransaction},

	CreateDocument:     {"CREATE_DOCUMENT", CategoryDocument},
	ReadDocument:       {"READ_DOCUMENT", CategoryDocument},
	UpdateDocument:     {"UPDATE_DOCUMENT", CategoryDocument},
	DeleteDocument:     {"DELETE_DOCUMENT", CategoryDocument},
	ReadAllDocuments:   {"READ_ALL_DOCUMENTS", CategoryDocument},
	ManageAllDocuments: {"MANAGE_ALL_DOCUMENTS", CategoryDocument},

	ViewReports:   {"VIEW_REPORTS", CategoryReporting},
	ViewAnalytics: {"VIEW_ANALYTICS", CategoryReporting},
	ExportData:    {"EXPORT_DATA", CategoryReporting},

	SystemConfig:       {"SYSTEM_CONFIG", CategorySystem},
	ViewAuditLog:       {"VIEW_AUDIT_LOG", CategorySystem},
	ManageIntegrations: {"MANAGE_INTEGRATIONS", CategorySystem},

	ViewTeam:    {"VIEW_TEAM", CategoryTeam},
	ManageTeam:  {"MANAGE_TEAM", CategoryTeam},
	AssignLeads: {"ASSIGN_LEADS", CategoryTeam},
}

var permissionsByName = func() map[string]Permission {
	byName := make(map[string]Permission, len(permissions))
	for p := CreateUser; p < permissionSentinel; p++ {
		byName[permissions[p].name] = p
	}
	return byName
}()

// All returns every catalog permission in declaration order.
func All() []Permission {
	all := make([]Permission, 0, int(permissionSentinel)-1)
	for p := CreateUser; p < permissionSentinel; p++ {
		all = append(all, p)
	}
	return all
}

// Valid reports whether p is defined by the catalog.
func (p Permission) Valid() bool {
	return p >= CreateUser && p < permissionSentinel
}

func (p Permission) String() string {
	if !p.Valid() {
		return "Permission(" + strconv.Itoa(int(p)) + ")"
	}
	return permissions[p].name
}

// Category returns the display category of p, or "" for unknown permissions.
func (p Permission) Category() Category {
	if !p.Valid() {
		return ""
	}
	return permissions[p].category
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, configError(ErrUnknownPermission, p.String())
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePermission resolves a serialized permission name. Dotted lower-case
// spellings ("read.client") are accepted alongside READ_CLIENT.
func ParsePermission(name string) (Permission, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	normalized = strings.NewReplacer(".", "_", "-", "_", ":", "_").Replace(normalized)
	if p, ok := permissionsByName[normalized]; ok {
		return p, nil
	}
	return 0, configError(ErrUnknownPermission, name)
}

// ByCategory groups the catalog for display.
func ByCategory() map[Category][]Permission {
	grouped := make(map[Category][]Permission)
	for _, p := range All() {
		grouped[p.Category()] = append(grouped[p.Category()], p)
	}
	return grouped
}

// Validate returns a ConfigError when p is outside the catalog.
func (p Permission) Validate() error {
	if !p.Valid() {
		return configError(ErrUnknownPermission, p.String())
	}
	return nil
}
