package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/estatecrm/estatecrm/internal/platform/db"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// SetOwner upserts the ownership row. A repeat keeps the original created_at.
func (s *Store) SetOwner(ctx context.Context, o rbac.Ownership) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resource_ownership (user_id, resource_type, resource_id, kind, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, resource_type, resource_id) DO UPDATE SET kind = EXCLUDED.kind`,
		o.UserID, o.ResourceType.String(), o.ResourceID, string(o.Kind), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgstore: set owner: %w", err)
	}
	return nil
}

// IsOwner reports whether any ownership row links the user to the resource.
func (s *Store) IsOwner(ctx context.Context, userID int64, rt catalog.ResourceType, resourceID int64) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM resource_ownership
			WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3
		)`, userID, rt.String(), resourceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgstore: is owner: %w", err)
	}
	return exists, nil
}

// Owners lists the explicit owners of a resource ordered by user id.
func (s *Store) Owners(ctx context.Context, rt catalog.ResourceType, resourceID int64) ([]rbac.Ownership, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, kind, created_at FROM resource_ownership
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY user_id`, rt.String(), resourceID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: owners: %w", err)
	}
	defer rows.Close()
	out := make([]rbac.Ownership, 0)
	for rows.Next() {
		o := rbac.Ownership{ResourceType: rt, ResourceID: resourceID}
		var kind string
		if err := rows.Scan(&o.UserID, &kind, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan owner: %w", err)
		}
		o.Kind = rbac.OwnershipKind(kind)
		o.CreatedAt = o.CreatedAt.UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// TransferOwnership replaces every owner of the resource with o in one
// transaction, so readers see either the old owners or the new one.
func (s *Store) TransferOwnership(ctx context.Context, o rbac.Ownership) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM resource_ownership WHERE resource_type = $1 AND resource_id = $2`,
			o.ResourceType.String(), o.ResourceID); err != nil {
			return fmt.Errorf("pgstore: clear owners: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO resource_ownership (user_id, resource_type, resource_id, kind, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			o.UserID, o.ResourceType.String(), o.ResourceID, string(o.Kind), o.CreatedAt); err != nil {
			return fmt.Errorf("pgstore: insert owner: %w", err)
		}
		return nil
	})
}
