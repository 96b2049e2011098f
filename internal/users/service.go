package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/estatecrm/estatecrm/internal/shared"
)

// ErrInvalidUserID reports a non-positive user id.
var ErrInvalidUserID = errors.New("users: invalid user id")

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]User, int, error)
}

// Page is one page of users.
type Page struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

// RoleInvalidator drops a cached role.
type RoleInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

// Service handles user listing for access administration.
type Service struct {
	repo  RepositoryPort
	roles RoleInvalidator
}

// NewService builds Service instance. roles may be nil when no role cache is
// configured.
func NewService(repo RepositoryPort, roles RoleInvalidator) *Service {
	return &Service{repo: repo, roles: roles}
}

// RefreshRole drops the cached role of userID so the next check reads the
// users table again. Upstream calls it after changing a role or deactivating
// an account.
func (s *Service) RefreshRole(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidUserID
	}
	if s.roles == nil {
		return nil
	}
	if err := s.roles.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("users: invalidate role: %w", err)
	}
	return nil
}

// ListUsers returns one page of users with their roles.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) (Page, error) {
	if filter.PerPage <= 0 {
		filter.PerPage = defaultPerPage
	}
	if filter.PerPage > maxPerPage {
		filter.PerPage = maxPerPage
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	users, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	return Page{Users: users, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}
