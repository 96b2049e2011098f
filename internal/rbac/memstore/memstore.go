// Package memstore holds in-memory implementations of the rbac stores. They
// back tests and follow the same uniqueness rules as the Postgres stores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

type overrideKey struct {
	userID int64
	perm   catalog.Permission
}

// Overrides stores at most one override per (user, permission).
type Overrides struct {
	mu   sync.RWMutex
	rows map[overrideKey]rbac.Override
}

// NewOverrides returns an empty override store.
func NewOverrides() *Overrides {
	return &Overrides{rows: make(map[overrideKey]rbac.Override)}
}

// UpsertOverride replaces any prior override for the pair.
func (s *Overrides) UpsertOverride(_ context.Context, o rbac.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[overrideKey{o.UserID, o.Permission}] = o
	return nil
}

// EffectiveOverride returns the override when it has not expired at now.
func (s *Overrides) EffectiveOverride(_ context.Context, userID int64, perm catalog.Permission, now time.Time) (rbac.Override, bool, error) {
	s.mu.RLock()
	o, ok := s.rows[overrideKey{userID, perm}]
	s.mu.RUnlock()
	if !ok || !o.ActiveAt(now) {
		return rbac.Override{}, false, nil
	}
	return o, true, nil
}

// ListOverrides returns userID's overrides, expired ones included, in catalog order.
func (s *Overrides) ListOverrides(_ context.Context, userID int64) ([]rbac.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rbac.Override
	for key, o := range s.rows {
		if key.userID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permission < out[j].Permission })
	return out, nil
}

// DeleteOverride removes the pair and reports whether it existed.
func (s *Overrides) DeleteOverride(_ context.Context, userID int64, perm catalog.Permission) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey{userID, perm}
	if _, ok := s.rows[key]; !ok {
		return false, nil
	}
	delete(s.rows, key)
	return true, nil
}

// DeleteExpiredOverrides removes every override no longer active at now.
func (s *Overrides) DeleteExpiredOverrides(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, o := range s.rows {
		if !o.ActiveAt(now) {
			delete(s.rows, key)
			n++
		}
	}
	return n, nil
}

type resourceKey struct {
	rt catalog.ResourceType
	id int64
}

// Ownership stores explicit ownership rows, unique per (user, resource).
type Ownership struct {
	mu   sync.RWMutex
	rows map[resourceKey]map[int64]rbac.Ownership
}

// NewOwnership returns an empty ownership store.
func NewOwnership() *Ownership {
	return &Ownership{rows: make(map[resourceKey]map[int64]rbac.Ownership)}
}

// SetOwner upserts the row. Repeating it leaves one row; the kind is overwritten
// and the original creation time kept.
func (s *Ownership) SetOwner(_ context.Context, o rbac.Ownership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resourceKey{o.ResourceType, o.ResourceID}
	owners, ok := s.rows[key]
	if !ok {
		owners = make(map[int64]rbac.Ownership)
		s.rows[key] = owners
	}
	if prior, ok := owners[o.UserID]; ok {
		o.CreatedAt = prior.CreatedAt
	}
	owners[o.UserID] = o
	return nil
}

// IsOwner reports whether any ownership row links the user to the resource.
func (s *Ownership) IsOwner(_ context.Context, userID int64, rt catalog.ResourceType, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[resourceKey{rt, id}][userID]
	return ok, nil
}

// Owners lists the resource's owners ordered by user id.
func (s *Ownership) Owners(_ context.Context, rt catalog.ResourceType, id int64) ([]rbac.Ownership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := s.rows[resourceKey{rt, id}]
	out := make([]rbac.Ownership, 0, len(owners))
	for _, o := range owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// TransferOwnership replaces every owner of the resource with o.
func (s *Ownership) TransferOwnership(_ context.Context, o rbac.Ownership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[resourceKey{o.ResourceType, o.ResourceID}] = map[int64]rbac.Ownership{o.UserID: o}
	return nil
}

// Roles is a fixed user directory.
type Roles struct {
	mu    sync.RWMutex
	roles map[int64]catalog.Role
}

// NewRoles returns a directory seeded with roles.
func NewRoles(roles map[int64]catalog.Role) *Roles {
	copied := make(map[int64]catalog.Role, len(roles))
	for id, role := range roles {
		copied[id] = role
	}
	return &Roles{roles: copied}
}

// Set assigns a role to userID.
func (s *Roles) Set(userID int64, role catalog.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
}

// GetRole returns rbac.ErrUserNotFound for unknown users.
func (s *Roles) GetRole(_ context.Context, userID int64) (catalog.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[userID]
	if !ok {
		return 0, rbac.ErrUserNotFound
	}
	return role, nil
}

// ImplicitOwners maps records to their owning agent, standing in for the
// CRM's own tables.
type ImplicitOwners struct {
	mu     sync.RWMutex
	owners map[resourceKey]int64
}

// NewImplicitOwners returns an empty lookup.
func NewImplicitOwners() *ImplicitOwners {
	return &ImplicitOwners{owners: make(map[resourceKey]int64)}
}

// Set records userID as the record's owning agent.
func (s *ImplicitOwners) Set(rt catalog.ResourceType, id, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[resourceKey{rt, id}] = userID
}

// GetImplicitOwner returns the record's owning agent, if any.
func (s *ImplicitOwners) GetImplicitOwner(_ context.Context, rt catalog.ResourceType, id int64) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.owners[resourceKey{rt, id}]
	return userID, ok, nil
}

// AccessLog is an append-only audit.Repository. Entries are deduplicated by
// call id.
type AccessLog struct {
	mu      sync.RWMutex
	entries []audit.Entry
	seen    map[string]struct{}
}

// NewAccessLog returns an empty log.
func NewAccessLog() *AccessLog {
	return &AccessLog{seen: make(map[string]struct{})}
}

// InsertAccessLog appends entry unless its call id was already written.
func (s *AccessLog) InsertAccessLog(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.CallID.String()
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}
	entry.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, entry)
	return nil
}

// ListAccessLog returns matching entries newest first.
func (s *AccessLog) ListAccessLog(_ context.Context, params audit.ListParams) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]audit.Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if params.Filter.Matches(s.entries[i]) {
			matched = append(matched, s.entries[i])
		}
	}
	if params.Offset >= len(matched) {
		return []audit.Entry{}, nil
	}
	matched = matched[params.Offset:]
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	return matched, nil
}

// Len returns the number of stored entries.
func (s *AccessLog) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
