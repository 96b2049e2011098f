package pgstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/estatecrm/estatecrm/internal/audit"
)

// InsertAccessLog appends entry. A redelivered entry with a known call id is
// ignored.
func (s *Store) InsertAccessLog(ctx context.Context, entry audit.Entry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var resourceType pgtype.Text
	if entry.ResourceType != "" {
		resourceType = pgtype.Text{String: entry.ResourceType, Valid: true}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_log (call_id, user_id, resource_type, resource_id, action, permission, granted, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (call_id) DO NOTHING`,
		pgtype.UUID{Bytes: entry.CallID, Valid: true}, entry.UserID, resourceType, entry.ResourceID,
		entry.Action, entry.Permission, entry.Granted, entry.Reason, entry.At)
	if err != nil {
		return fmt.Errorf("pgstore: insert access log: %w", err)
	}
	return nil
}

// ListAccessLog returns matching entries newest first.
func (s *Store) ListAccessLog(ctx context.Context, params audit.ListParams) ([]audit.Entry, error) {
	query, args := buildAccessLogQuery(params)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list access log: %w", err)
	}
	defer rows.Close()
	out := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e            audit.Entry
			callID       pgtype.UUID
			resourceType pgtype.Text
		)
		if err := rows.Scan(&e.ID, &callID, &e.UserID, &resourceType, &e.ResourceID,
			&e.Action, &e.Permission, &e.Granted, &e.Reason, &e.At); err != nil {
			return nil, fmt.Errorf("pgstore: scan access log: %w", err)
		}
		e.CallID = uuid.UUID(callID.Bytes)
		e.ResourceType = resourceType.String
		e.At = e.At.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func buildAccessLogQuery(params audit.ListParams) (string, []any) {
	f := params.Filter
	var conditions []string
	var args []any
	argPos := 1

	if f.UserID != 0 {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argPos))
		args = append(args, f.UserID)
		argPos++
	}
	if f.Permission.Valid() {
		conditions = append(conditions, fmt.Sprintf("permission = $%d", argPos))
		args = append(args, f.Permission.String())
		argPos++
	}
	if f.ResourceType.Valid() {
		conditions = append(conditions, fmt.Sprintf("resource_type = $%d", argPos))
		args = append(args, f.ResourceType.String())
		argPos++
	}
	if f.ResourceID != 0 {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", argPos))
		args = append(args, f.ResourceID)
		argPos++
	}
	if f.Granted != nil {
		conditions = append(conditions, fmt.Sprintf("granted = $%d", argPos))
		args = append(args, *f.Granted)
		argPos++
	}
	if !f.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("at >= $%d", argPos))
		args = append(args, f.From)
		argPos++
	}
	if !f.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("at < $%d", argPos))
		args = append(args, f.To)
		argPos++
	}

	var b strings.Builder
	b.WriteString(`SELECT id, call_id, user_id, resource_type, resource_id, action, permission, granted, reason, at FROM access_log`)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY at DESC, id DESC")
	if params.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argPos)
		args = append(args, params.Limit)
		argPos++
	}
	if params.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argPos)
		args = append(args, params.Offset)
	}
	return b.String(), args
}

var _ audit.Repository = (*Store)(nil)
