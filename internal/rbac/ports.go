package rbac

import (
	"context"
	"time"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// RoleLookup resolves a user's role. Unknown users return ErrUserNotFound.
type RoleLookup interface {
	GetRole(ctx context.Context, userID int64) (catalog.Role, error)
}

// OwnerLookup reports a record's implicit owner, such as a client's assigned
// agent. ok is false when the record has no owner or does not exist.
type OwnerLookup interface {
	GetImplicitOwner(ctx context.Context, resourceType catalog.ResourceType, resourceID int64) (userID int64, ok bool, err error)
}

// OverrideStore persists per-user overrides. Writes are atomic per
// (user, permission).
type OverrideStore interface {
	UpsertOverride(ctx context.Context, o Override) error
	EffectiveOverride(ctx context.Context, userID int64, perm catalog.Permission, now time.Time) (Override, bool, error)
	ListOverrides(ctx context.Context, userID int64) ([]Override, error)
	DeleteOverride(ctx context.Context, userID int64, perm catalog.Permission) (bool, error)
	DeleteExpiredOverrides(ctx context.Context, now time.Time) (int64, error)
}

// OwnershipStore persists explicit resource ownership. Writes are atomic per
// (user, resource type, resource id).
type OwnershipStore interface {
	SetOwner(ctx context.Context, o Ownership) error
	IsOwner(ctx context.Context, userID int64, resourceType catalog.ResourceType, resourceID int64) (bool, error)
	Owners(ctx context.Context, resourceType catalog.ResourceType, resourceID int64) ([]Ownership, error)
	// TransferOwnership atomically replaces every owner of the resource with o.
	TransferOwnership(ctx context.Context, o Ownership) error
}

// AuditRecorder appends access-log entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}
