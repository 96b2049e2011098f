package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// Querier is the subset of pgxpool.Pool the repository uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads the CRM users table. It expects columns id, email, name,
// role, is_active, created_at and updated_at.
type Repository struct {
	pool    Querier
	timeout time.Duration
}

// NewRepository constructs a repository. A positive timeout bounds every query.
func NewRepository(pool Querier, timeout time.Duration) *Repository {
	return &Repository{pool: pool, timeout: timeout}
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// GetRole returns the role of an active user. Unknown and deactivated users
// both report rbac.ErrUserNotFound.
func (r *Repository) GetRole(ctx context.Context, userID int64) (catalog.Role, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 AND is_active`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, rbac.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("users: get role: %w", err)
	}
	return catalog.ParseRole(raw)
}

// ListUsers returns one page of users ordered by id and the total match count.
func (r *Repository) ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	var conditions []string
	var args []any
	argPos := 1
	if filter.Role.Valid() {
		conditions = append(conditions, fmt.Sprintf("role = $%d", argPos))
		args = append(args, filter.Role.String())
		argPos++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, email, name, role, is_active, created_at, updated_at
		FROM users %s
		ORDER BY id
		LIMIT $%d OFFSET $%d`, whereClause, argPos, argPos+1)
	args = append(args, filter.PerPage, (filter.Page-1)*filter.PerPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, filter.PerPage)
	for rows.Next() {
		var (
			u    User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("users: scan: %w", err)
		}
		if u.Role, err = catalog.ParseRole(role); err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}
