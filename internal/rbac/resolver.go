package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/platform/clock"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

const defaultAction = "check"

// ResolverConfig wires the stores a Resolver consults. Owners is optional; the
// other stores are required.
type ResolverConfig struct {
	Roles     RoleLookup
	Owners    OwnerLookup
	Overrides OverrideStore
	Ownership OwnershipStore
	Audit     AuditRecorder
	Clock     clock.Clock
	Logger    *slog.Logger
	Metrics   *Metrics
}

// Resolver answers "may user U do P, optionally on resource R". It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	roles     RoleLookup
	owners    OwnerLookup
	overrides OverrideStore
	ownership OwnershipStore
	audit     AuditRecorder
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics
}

// NewResolver validates cfg and constructs a Resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	switch {
	case cfg.Roles == nil:
		return nil, errors.New("rbac: role lookup is required")
	case cfg.Overrides == nil:
		return nil, errors.New("rbac: override store is required")
	case cfg.Ownership == nil:
		return nil, errors.New("rbac: ownership store is required")
	case cfg.Audit == nil:
		return nil, errors.New("rbac: audit recorder is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Resolver{
		roles:     cfg.Roles,
		owners:    cfg.Owners,
		overrides: cfg.Overrides,
		ownership: cfg.Ownership,
		audit:     cfg.Audit,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// CheckPermission resolves req and writes exactly one access-log entry.
//
// A deny is a normal return with a nil error. The error is non-nil only for a
// *catalog.ConfigError or a store failure (errors.Is ErrStoreUnavailable), and
// in both cases the returned decision denies. An access-log failure never
// changes the decision; it is reported in Decision.AuditErr.
func (r *Resolver) CheckPermission(ctx context.Context, req Request) (Decision, error) {
	now := r.clock.Now()
	decision, err := r.resolve(ctx, req, now)
	decision.CallID = uuid.New()
	decision.AuditErr = r.record(ctx, req, decision, now)
	r.metrics.observeDecision(req.Permission.String(), decision)
	return decision, err
}

func (r *Resolver) resolve(ctx context.Context, req Request, now time.Time) (Decision, error) {
	if err := req.Permission.Validate(); err != nil {
		return deny(ReasonConfiguration), err
	}
	if req.Resource != nil {
		if err := req.Resource.Type.Validate(); err != nil {
			return deny(ReasonConfiguration), err
		}
	}

	role, err := r.roles.GetRole(ctx, req.UserID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		return deny(ReasonUnknownUser), nil
	case err != nil:
		return r.unavailable("role", err)
	}
	if err := role.Validate(); err != nil {
		return deny(ReasonConfiguration), err
	}

	decision, err := r.resolveForRole(ctx, req, role, now)
	decision.Role = role
	return decision, err
}

func (r *Resolver) resolveForRole(ctx context.Context, req Request, role catalog.Role, now time.Time) (Decision, error) {
	override, found, err := r.overrides.EffectiveOverride(ctx, req.UserID, req.Permission, now)
	if err != nil {
		return r.unavailable("override", err)
	}
	if found {
		// An unexpired override decides even for resources the user does not own.
		if override.Granted {
			return allow(ReasonOverrideGranted), nil
		}
		return deny(ReasonOverrideRevoked), nil
	}

	has, err := catalog.HasDefaultPermission(role, req.Permission)
	if err != nil {
		return deny(ReasonConfiguration), err
	}
	if !has {
		return deny(ReasonNoPermission), nil
	}

	scope, scoped := catalog.Scope(req.Permission)
	if !scoped || req.Resource == nil {
		return allow(ReasonGranted), nil
	}
	if err := scope.Check(req.Resource.Type); err != nil {
		return deny(ReasonConfiguration), err
	}
	return r.resolveOwnership(ctx, req, role, scope, now)
}

func (r *Resolver) resolveOwnership(ctx context.Context, req Request, role catalog.Role, scope catalog.ScopedPermission, now time.Time) (Decision, error) {
	res := *req.Resource
	owns, err := r.ownership.IsOwner(ctx, req.UserID, res.Type, res.ID)
	if err != nil {
		return r.unavailable("ownership", err)
	}
	if owns {
		return allow(ReasonOwner), nil
	}

	if r.owners != nil {
		ownerID, ok, err := r.owners.GetImplicitOwner(ctx, res.Type, res.ID)
		if err != nil {
			return r.unavailable("implicit_owner", err)
		}
		if ok && ownerID == req.UserID {
			return allow(ReasonOwner), nil
		}
	}

	broad, err := r.effective(ctx, req.UserID, role, scope.Broad, now)
	if err != nil {
		return r.unavailable("override", err)
	}
	if broad {
		return allow(ReasonBroadAccess), nil
	}
	return deny(ReasonNotOwner), nil
}

// effective reports whether role plus any unexpired override grants perm.
func (r *Resolver) effective(ctx context.Context, userID int64, role catalog.Role, perm catalog.Permission, now time.Time) (bool, error) {
	override, found, err := r.overrides.EffectiveOverride(ctx, userID, perm, now)
	if err != nil {
		return false, err
	}
	if found {
		return override.Granted, nil
	}
	return catalog.HasDefaultPermission(role, perm)
}

func (r *Resolver) unavailable(store string, err error) (Decision, error) {
	if catalog.IsConfigError(err) {
		return deny(ReasonConfiguration), err
	}
	r.metrics.observeStoreError(store)
	return deny(ReasonStoreUnavailable), storeError(store, err)
}

func (r *Resolver) record(ctx context.Context, req Request, d Decision, now time.Time) error {
	action := req.Action
	if action == "" {
		action = defaultAction
	}
	entry := audit.Entry{
		CallID:     d.CallID,
		UserID:     req.UserID,
		Action:     action,
		Permission: req.Permission.String(),
		Granted:    d.Granted,
		Reason:     d.Reason.String(),
		At:         now,
	}
	if req.Resource != nil {
		id := req.Resource.ID
		entry.ResourceType = req.Resource.Type.String()
		entry.ResourceID = &id
	}
	// The entry is written even when the caller has already gone away.
	if err := r.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		r.metrics.observeAuditFailure()
		if r.logger != nil {
			r.logger.Error("rbac audit write failed",
				slog.String("call_id", d.CallID.String()),
				slog.Int64("user_id", req.UserID),
				slog.String("permission", entry.Permission),
				slog.Bool("granted", d.Granted),
				slog.Any("error", err))
		}
		return fmt.Errorf("%w: %w", ErrAuditWriteFailed, err)
	}
	return nil
}
