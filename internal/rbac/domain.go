package rbac

import (
	"strings"
	"time"

	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// Override is a per-user exception to the role defaults. There is at most one
// per (UserID, Permission); a newer grant or revoke replaces the older one.
type Override struct {
	UserID     int64              `json:"user_id"`
	Permission catalog.Permission `json:"permission"`
	Granted    bool               `json:"granted"`
	GrantedBy  int64              `json:"granted_by"`
	Reason     string             `json:"reason"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  *time.Time         `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the override is in force at now. An override whose
// expiry is at or before now is treated as absent.
func (o Override) ActiveAt(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// OverrideStatus pairs an override with whether it is currently in force.
type OverrideStatus struct {
	Override
	Active bool `json:"active"`
}

// OwnershipKind labels how a user relates to a resource. Resolution only asks
// whether any ownership row exists.
type OwnershipKind string

const (
	KindOwner    OwnershipKind = "owner"
	KindCoOwner  OwnershipKind = "co_owner"
	KindAssignee OwnershipKind = "assignee"
)

// ParseOwnershipKind resolves a serialized kind; empty means KindOwner.
func ParseOwnershipKind(raw string) (OwnershipKind, bool) {
	switch kind := OwnershipKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case "":
		return KindOwner, true
	case KindOwner, KindCoOwner, KindAssignee:
		return kind, true
	default:
		return "", false
	}
}

// Ownership records that a user controls one resource instance.
type Ownership struct {
	UserID       int64                `json:"user_id"`
	ResourceType catalog.ResourceType `json:"resource_type"`
	ResourceID   int64                `json:"resource_id"`
	Kind         OwnershipKind        `json:"kind"`
	CreatedAt    time.Time            `json:"created_at"`
}

func (o Ownership) validate() error {
	if o.UserID <= 0 || o.ResourceID <= 0 {
		return ErrInvalidOwnership
	}
	if err := o.ResourceType.Validate(); err != nil {
		return err
	}
	if _, ok := ParseOwnershipKind(string(o.Kind)); !ok {
		return ErrInvalidOwnership
	}
	return nil
}

// Resource identifies one CRM record.
type Resource struct {
	Type catalog.ResourceType
	ID   int64
}

// Request is one authorization question: may UserID do Permission, optionally
// on Resource. Action is a free-form label for the audit log (route name,
// command); it does not affect the decision.
type Request struct {
	UserID     int64
	Permission catalog.Permission
	Resource   *Resource
	Action     string
}
