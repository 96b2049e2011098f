package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/estatecrm/estatecrm/internal/platform/clock"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// ErrInvalidUser indicates a missing or non-positive user id.
var ErrInvalidUser = errors.New("rbac: user id required")

// ServiceConfig wires the stores the admin Service writes to.
type ServiceConfig struct {
	Roles     RoleLookup
	Overrides OverrideStore
	Ownership OwnershipStore
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Service administers overrides and ownership and answers effective-permission
// queries.
type Service struct {
	roles     RoleLookup
	overrides OverrideStore
	ownership OwnershipStore
	clock     clock.Clock
	logger    *slog.Logger
}

// NewService constructs a Service from cfg.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Service{
		roles:     cfg.Roles,
		overrides: cfg.Overrides,
		ownership: cfg.Ownership,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Grant gives userID perm regardless of role until expiresAt, or indefinitely
// when expiresAt is nil. It replaces any prior override for the pair.
func (s *Service) Grant(ctx context.Context, userID int64, perm catalog.Permission, grantedBy int64, reason string, expiresAt *time.Time) error {
	now := s.clock.Now()
	if expiresAt != nil && !expiresAt.After(now) {
		return ErrInvalidExpiry
	}
	return s.upsertOverride(ctx, Override{
		UserID:     userID,
		Permission: perm,
		Granted:    true,
		GrantedBy:  grantedBy,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  now,
		ExpiresAt:  utcPtr(expiresAt),
	})
}

// Revoke denies userID perm regardless of role. It replaces any prior override
// for the pair and never expires.
func (s *Service) Revoke(ctx context.Context, userID int64, perm catalog.Permission, revokedBy int64, reason string) error {
	return s.upsertOverride(ctx, Override{
		UserID:     userID,
		Permission: perm,
		Granted:    false,
		GrantedBy:  revokedBy,
		Reason:     strings.TrimSpace(reason),
		CreatedAt:  s.clock.Now(),
	})
}

func (s *Service) upsertOverride(ctx context.Context, o Override) error {
	if err := o.Permission.Validate(); err != nil {
		return err
	}
	if o.GrantedBy <= 0 {
		return ErrInvalidUser
	}
	if err := s.requireUser(ctx, o.UserID); err != nil {
		return err
	}
	if err := s.overrides.UpsertOverride(ctx, o); err != nil {
		return storeError("override", err)
	}
	if s.logger != nil {
		s.logger.Info("rbac override saved",
			slog.Int64("user_id", o.UserID),
			slog.String("permission", o.Permission.String()),
			slog.Bool("granted", o.Granted),
			slog.Int64("by", o.GrantedBy))
	}
	return nil
}

// ClearOverride removes the override for (userID, perm) so the role default
// applies again.
func (s *Service) ClearOverride(ctx context.Context, userID int64, perm catalog.Permission) error {
	if err := perm.Validate(); err != nil {
		return err
	}
	deleted, err := s.overrides.DeleteOverride(ctx, userID, perm)
	if err != nil {
		return storeError("override", err)
	}
	if !deleted {
		return ErrOverrideNotFound
	}
	return nil
}

// ListOverrides returns userID's overrides with their status at the current time.
func (s *Service) ListOverrides(ctx context.Context, userID int64) ([]OverrideStatus, error) {
	rows, err := s.overrides.ListOverrides(ctx, userID)
	if err != nil {
		return nil, storeError("override", err)
	}
	now := s.clock.Now()
	out := make([]OverrideStatus, 0, len(rows))
	for _, o := range rows {
		out = append(out, OverrideStatus{Override: o, Active: o.ActiveAt(now)})
	}
	return out, nil
}

// SetOwner records that userID owns the resource. Repeating the call is a no-op
// apart from the kind, which is overwritten.
func (s *Service) SetOwner(ctx context.Context, userID int64, resourceType catalog.ResourceType, resourceID int64, kind OwnershipKind) error {
	o, err := s.ownershipRow(ctx, userID, resourceType, resourceID, kind)
	if err != nil {
		return err
	}
	if err := s.ownership.SetOwner(ctx, o); err != nil {
		return storeError("ownership", err)
	}
	return nil
}

// TransferOwnership makes toUserID the sole owner of the resource.
func (s *Service) TransferOwnership(ctx context.Context, resourceType catalog.ResourceType, resourceID, toUserID int64, kind OwnershipKind) error {
	o, err := s.ownershipRow(ctx, toUserID, resourceType, resourceID, kind)
	if err != nil {
		return err
	}
	if err := s.ownership.TransferOwnership(ctx, o); err != nil {
		return storeError("ownership", err)
	}
	if s.logger != nil {
		s.logger.Info("rbac ownership transferred",
			slog.String("resource_type", resourceType.String()),
			slog.Int64("resource_id", resourceID),
			slog.Int64("to_user_id", toUserID))
	}
	return nil
}

// Owners lists the explicit owners of a resource.
func (s *Service) Owners(ctx context.Context, resourceType catalog.ResourceType, resourceID int64) ([]Ownership, error) {
	if err := resourceType.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.ownership.Owners(ctx, resourceType, resourceID)
	if err != nil {
		return nil, storeError("ownership", err)
	}
	return rows, nil
}

func (s *Service) ownershipRow(ctx context.Context, userID int64, resourceType catalog.ResourceType, resourceID int64, kind OwnershipKind) (Ownership, error) {
	parsed, ok := ParseOwnershipKind(string(kind))
	if !ok {
		return Ownership{}, ErrInvalidOwnership
	}
	o := Ownership{
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Kind:         parsed,
		CreatedAt:    s.clock.Now(),
	}
	if err := o.validate(); err != nil {
		return Ownership{}, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return Ownership{}, err
	}
	return o, nil
}

// ListEffectivePermissions returns the role defaults for userID with every
// unexpired override applied, in catalog order. It matches CheckPermission
// without a resource for every permission.
func (s *Service) ListEffectivePermissions(ctx context.Context, userID int64) ([]catalog.Permission, error) {
	role, err := s.role(ctx, userID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.overrides.ListOverrides(ctx, userID)
	if err != nil {
		return nil, storeError("override", err)
	}
	now := s.clock.Now()
	applied := make(map[catalog.Permission]bool, len(overrides))
	for _, o := range overrides {
		if o.ActiveAt(now) {
			applied[o.Permission] = o.Granted
		}
	}
	out := make([]catalog.Permission, 0)
	for _, perm := range catalog.All() {
		granted, ok := applied[perm]
		if !ok {
			granted, err = catalog.HasDefaultPermission(role, perm)
			if err != nil {
				return nil, err
			}
		}
		if granted {
			out = append(out, perm)
		}
	}
	return out, nil
}

// CanAdminister returns ErrInsufficientPrivilege when targetID holds a role
// strictly above actorID's.
func (s *Service) CanAdminister(ctx context.Context, actorID, targetID int64) error {
	actor, err := s.role(ctx, actorID)
	if err != nil {
		return err
	}
	target, err := s.role(ctx, targetID)
	if err != nil {
		return err
	}
	if catalog.HigherPrivilege(target, actor) {
		return ErrInsufficientPrivilege
	}
	return nil
}

// SweepExpired deletes overrides that expired before now. Resolution already
// ignores them; this only reclaims storage.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.overrides.DeleteExpiredOverrides(ctx, s.clock.Now())
	if err != nil {
		return 0, storeError("override", err)
	}
	return n, nil
}

func (s *Service) role(ctx context.Context, userID int64) (catalog.Role, error) {
	if userID <= 0 {
		return 0, ErrInvalidUser
	}
	role, err := s.roles.GetRole(ctx, userID)
	switch {
	case errors.Is(err, ErrUserNotFound), catalog.IsConfigError(err):
		return 0, err
	case err != nil:
		return 0, storeError("role", err)
	}
	if err := role.Validate(); err != nil {
		return 0, err
	}
	return role, nil
}

func (s *Service) requireUser(ctx context.Context, userID int64) error {
	_, err := s.role(ctx, userID)
	return err
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
