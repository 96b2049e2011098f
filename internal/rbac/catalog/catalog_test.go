package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHigherPrivilegeIsStrictOrdering(t *testing.T) {
	ordered := []Role{RoleAdmin, RoleManager, RoleAgent}
	for i, a := range ordered {
		for j, b := range ordered {
			assert.Equal(t, i < j, HigherPrivilege(a, b), "HigherPrivilege(%s, %s)", a, b)
		}
	}
	for _, r := range Roles() {
		assert.False(t, HigherPrivilege(r, r), "role %s must not outrank itself", r)
	}
}

func TestLevelsAreDistinct(t *testing.T) {
	seen := make(map[int]Role)
	for _, r := range Roles() {
		level, err := Level(r)
		require.NoError(t, err)
		if other, dup := seen[level]; dup {
			t.Fatalf("roles %s and %s share level %d", r, other, level)
		}
		seen[level] = r
	}
}

func TestUnknownRoleIsConfigError(t *testing.T) {
	_, err := Level(Role(0))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = HasDefaultPermission(Role(42), ReadClient)
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = HasDefaultPermission(RoleAgent, Permission(200))
	assert.ErrorIs(t, err, ErrUnknownPermission)
	assert.False(t, HigherPrivilege(Role(42), RoleAgent))
}

func TestDefaultPermissionMatrix(t *testing.T) {
	cases := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleAdmin, SystemConfig, true},
		{RoleAdmin, ManageRoles, true},
		{RoleManager, ManageTeam, true},
		{RoleManager, SystemConfig, false},
		{RoleManager, ReadAllClients, true},
		{RoleAgent, CreateClient, true},
		{RoleAgent, ManageTeam, false},
		{RoleAgent, ReadAllClients, false},
		{RoleAgent, ViewAnalytics, false},
	}
	for _, tc := range cases {
		got, err := HasDefaultPermission(tc.role, tc.perm)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s / %s", tc.role, tc.perm)
	}
}

func TestAdminHoldsEveryPermission(t *testing.T) {
	perms, err := DefaultPermissions(RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, All(), perms)
}

func TestDefaultPermissionsReturnsCopy(t *testing.T) {
	perms, err := DefaultPermissions(RoleAgent)
	require.NoError(t, err)
	perms[0] = SystemConfig

	again, err := DefaultPermissions(RoleAgent)
	require.NoError(t, err)
	assert.NotEqual(t, SystemConfig, again[0])
}

func TestScopedPermissionTable(t *testing.T) {
	table := ScopedPermissions()
	require.Len(t, table, 12)

	expected := map[Permission]ScopedPermission{
		ReadClient:        {ReadClient, ResourceClient, ReadAllClients},
		UpdateClient:      {UpdateClient, ResourceClient, ManageAllClients},
		DeleteProperty:    {DeleteProperty, ResourceProperty, ManageAllProperties},
		ReadTransaction:   {ReadTransaction, ResourceTransaction, ReadAllTransactions},
		ReadDocument:      {ReadDocument, ResourceDocument, ReadAllDocuments},
		DeleteTransaction: {DeleteTransaction, ResourceTransaction, ManageAllTransactions},
	}
	for perm, want := range expected {
		got, ok := Scope(perm)
		require.True(t, ok, perm.String())
		assert.Equal(t, want, got)
	}

	for _, p := range []Permission{CreateClient, ReadAllClients, ManageTeam, SystemConfig} {
		_, ok := Scope(p)
		assert.False(t, ok, "%s must not be ownership scoped", p)
	}

	for _, s := range table {
		assert.Equal(t, s.Resource, categoryResource(s.Permission.Category()), s.Permission.String())
		assert.Equal(t, s.Permission.Category(), s.Broad.Category(), s.Permission.String())
	}
}

func categoryResource(c Category) ResourceType {
	switch c {
	case CategoryClient:
		return ResourceClient
	case CategoryProperty:
		return ResourceProperty
	case CategoryTransaction:
		return ResourceTransaction
	case CategoryDocument:
		return ResourceDocument
	}
	return 0
}

func TestScopeCheckRejectsMismatchedResource(t *testing.T) {
	s, _ := Scope(ReadClient)
	assert.NoError(t, s.Check(ResourceClient))
	assert.ErrorIs(t, s.Check(ResourceProperty), ErrResourceMismatch)
	assert.ErrorIs(t, s.Check(ResourceType(0)), ErrUnknownResourceType)
}

func TestParseRoundTrips(t *testing.T) {
	for _, p := range All() {
		parsed, err := ParsePermission(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
	p, err := ParsePermission("read.client")
	require.NoError(t, err)
	assert.Equal(t, ReadClient, p)

	_, err = ParsePermission("FLY_PLANE")
	assert.ErrorIs(t, err, ErrUnknownPermission)

	r, err := ParseRole(" Manager ")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, r)

	rt, err := ParseResourceType("properties")
	require.NoError(t, err)
	assert.Equal(t, ResourceProperty, rt)
}

func TestTextMarshalling(t *testing.T) {
	type payload struct {
		Role       Role         `json:"role"`
		Permission Permission   `json:"permission"`
		Resource   ResourceType `json:"resource"`
	}
	raw, err := json.Marshal(payload{RoleAgent, ViewAnalytics, ResourceDocument})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"agent","permission":"VIEW_ANALYTICS","resource":"document"}`, string(raw))

	var decoded payload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, ViewAnalytics, decoded.Permission)

	err = json.Unmarshal([]byte(`{"role":"owner"}`), &decoded)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestEveryPermissionHasCategory(t *testing.T) {
	grouped := ByCategory()
	total := 0
	for cat, perms := range grouped {
		assert.NotEmpty(t, cat)
		total += len(perms)
	}
	assert.Equal(t, len(All()), total)
}
