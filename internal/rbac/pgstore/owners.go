package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// OwnerColumn names the CRM table and column holding a record's owning agent.
type OwnerColumn struct {
	Table  string
	Column string
}

// OwnerColumns maps each resource type to its implicit-owner column.
type OwnerColumns map[catalog.ResourceType]OwnerColumn

// DefaultOwnerColumns returns the CRM's standard owner fields.
func DefaultOwnerColumns() OwnerColumns {
	return OwnerColumns{
		catalog.ResourceClient:      {Table: "clients", Column: "agent_id"},
		catalog.ResourceProperty:    {Table: "properties", Column: "listing_agent_id"},
		catalog.ResourceTransaction: {Table: "transactions", Column: "agent_id"},
		catalog.ResourceDocument:    {Table: "documents", Column: "uploaded_by"},
	}
}

func (c OwnerColumns) query(rt catalog.ResourceType) (string, bool) {
	col, ok := c[rt]
	if !ok || col.Table == "" || col.Column == "" {
		return "", false
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = $1",
		pgx.Identifier{col.Column}.Sanitize(), pgx.Identifier{col.Table}.Sanitize()), true
}

// GetImplicitOwner reads the record's owner column. Missing records, NULL
// owners and unmapped resource types all report no owner.
func (s *Store) GetImplicitOwner(ctx context.Context, rt catalog.ResourceType, resourceID int64) (int64, bool, error) {
	query, ok := s.owners.query(rt)
	if !ok {
		return 0, false, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var owner *int64
	err := s.pool.QueryRow(ctx, query, resourceID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pgstore: implicit owner: %w", err)
	}
	if owner == nil {
		return 0, false, nil
	}
	return *owner, true, nil
}
