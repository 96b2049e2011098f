// Package pgstore implements the rbac stores and the access-log repository on
// PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatecrm/estatecrm/internal/platform/db"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// Schema is the idempotent DDL for the engine's tables.
//
//go:embed schema.sql
var Schema string

var (
	_ rbac.OverrideStore  = (*Store)(nil)
	_ rbac.OwnershipStore = (*Store)(nil)
	_ rbac.OwnerLookup    = (*Store)(nil)
)

// Store persists overrides, ownership and the access log. Every call runs under
// its own deadline so a slow database fails a permission check closed instead
// of blocking it.
type Store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	owners  OwnerColumns
}

// New constructs a Store. A zero timeout disables the per-call deadline.
func New(pool *pgxpool.Pool, timeout time.Duration, owners OwnerColumns) *Store {
	if owners == nil {
		owners = DefaultOwnerColumns()
	}
	return &Store{pool: pool, timeout: timeout, owners: owners}
}

// Migrate creates the tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool, Schema)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// UpsertOverride writes the override in one statement, replacing any prior row
// for (user_id, permission).
func (s *Store) UpsertOverride(ctx context.Context, o rbac.Override) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	const query = `
		INSERT INTO user_permission_overrides (user_id, permission, granted, granted_by, reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, permission) DO UPDATE SET
			granted = EXCLUDED.granted,
			granted_by = EXCLUDED.granted_by,
			reason = EXCLUDED.reason,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`
	_, err := s.pool.Exec(ctx, query, o.UserID, o.Permission.String(), o.Granted, o.GrantedBy, o.Reason, o.CreatedAt, o.ExpiresAt)
	if err != nil {
		return fmt.Errorf("pgstore: upsert override: %w", err)
	}
	return nil
}

const overrideColumns = `user_id, permission, granted, granted_by, reason, created_at, expires_at`

// EffectiveOverride returns the override for the pair unless it expired at or
// before now.
func (s *Store) EffectiveOverride(ctx context.Context, userID int64, perm catalog.Permission, now time.Time) (rbac.Override, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	query := `SELECT ` + overrideColumns + `
		FROM user_permission_overrides
		WHERE user_id = $1 AND permission = $2 AND (expires_at IS NULL OR expires_at > $3)`
	o, err := scanOverride(s.pool.QueryRow(ctx, query, userID, perm.String(), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Override{}, false, nil
	}
	if err != nil {
		return rbac.Override{}, false, fmt.Errorf("pgstore: effective override: %w", err)
	}
	return o, true, nil
}

// ListOverrides returns every override for userID, expired ones included.
func (s *Store) ListOverrides(ctx context.Context, userID int64) ([]rbac.Override, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT `+overrideColumns+`
		FROM user_permission_overrides WHERE user_id = $1 ORDER BY permission`, userID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list overrides: %w", err)
	}
	defer rows.Close()
	var out []rbac.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, fmt.Errorf("pgstore: scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteOverride removes the pair and reports whether a row existed.
func (s *Store) DeleteOverride(ctx context.Context, userID int64, perm catalog.Permission) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission = $2`, userID, perm.String())
	if err != nil {
		return false, fmt.Errorf("pgstore: delete override: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteExpiredOverrides removes overrides whose expiry is at or before now.
func (s *Store) DeleteExpiredOverrides(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_permission_overrides WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("pgstore: delete expired overrides: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOverride(row pgx.Row) (rbac.Override, error) {
	var (
		o          rbac.Override
		permission string
		expiresAt  pgtype.Timestamptz
	)
	if err := row.Scan(&o.UserID, &permission, &o.Granted, &o.GrantedBy, &o.Reason, &o.CreatedAt, &expiresAt); err != nil {
		return rbac.Override{}, err
	}
	perm, err := catalog.ParsePermission(permission)
	if err != nil {
		return rbac.Override{}, err
	}
	o.Permission = perm
	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		o.ExpiresAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}
