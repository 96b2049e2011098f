package rbac_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/platform/clock"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
	"github.com/estatecrm/estatecrm/internal/rbac/memstore"
)

const (
	adminID   int64 = 1
	managerID int64 = 2
	agentA    int64 = 3
	agentB    int64 = 4
	agentC    int64 = 5

	clientC1 int64 = 101
	clientC2 int64 = 102
)

type fixture struct {
	clock     *clock.FakeClock
	roles     *memstore.Roles
	overrides *memstore.Overrides
	ownership *memstore.Ownership
	implicit  *memstore.ImplicitOwners
	log       *memstore.AccessLog
	resolver  *rbac.Resolver
	service   *rbac.Service
}

type fixtureOption func(*rbac.ResolverConfig)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		clock: clock.Fake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		roles: memstore.NewRoles(map[int64]catalog.Role{
			adminID:   catalog.RoleAdmin,
			managerID: catalog.RoleManager,
			agentA:    catalog.RoleAgent,
			agentB:    catalog.RoleAgent,
			agentC:    catalog.RoleAgent,
		}),
		overrides: memstore.NewOverrides(),
		ownership: memstore.NewOwnership(),
		implicit:  memstore.NewImplicitOwners(),
		log:       memstore.NewAccessLog(),
	}
	cfg := rbac.ResolverConfig{
		Roles:     f.roles,
		Owners:    f.implicit,
		Overrides: f.overrides,
		Ownership: f.ownership,
		Audit:     audit.NewService(f.log),
		Clock:     f.clock,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	resolver, err := rbac.NewResolver(cfg)
	require.NoError(t, err)
	f.resolver = resolver
	f.service = rbac.NewService(rbac.ServiceConfig{
		Roles:     f.roles,
		Overrides: f.overrides,
		Ownership: f.ownership,
		Clock:     f.clock,
	})
	return f
}

func (f *fixture) check(t *testing.T, userID int64, perm catalog.Permission) rbac.Decision {
	t.Helper()
	d, err := f.resolver.CheckPermission(context.Background(), rbac.Request{UserID: userID, Permission: perm})
	require.NoError(t, err)
	require.NoError(t, d.AuditErr)
	return d
}

func (f *fixture) checkClient(t *testing.T, userID int64, perm catalog.Permission, clientID int64) rbac.Decision {
	t.Helper()
	d, err := f.resolver.CheckPermission(context.Background(), rbac.Request{
		UserID:     userID,
		Permission: perm,
		Resource:   &rbac.Resource{Type: catalog.ResourceClient, ID: clientID},
	})
	require.NoError(t, err)
	return d
}

func TestConcreteScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.check(t, adminID, catalog.SystemConfig)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonGranted, d.Reason)

	d = f.check(t, managerID, catalog.SystemConfig)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonNoPermission, d.Reason)

	expires := f.clock.Now().Add(time.Second)
	require.NoError(t, f.service.Grant(ctx, agentA, catalog.ViewAnalytics, adminID, "quarterly review", &expires))

	d = f.check(t, agentA, catalog.ViewAnalytics)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonOverrideGranted, d.Reason)

	f.clock.Advance(2 * time.Second)
	d = f.check(t, agentA, catalog.ViewAnalytics)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonNoPermission, d.Reason)
}

func TestOverridePrecedenceOverRoleDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.False(t, f.check(t, agentA, catalog.ManageTeam).Granted)

	require.NoError(t, f.service.Grant(ctx, agentA, catalog.ManageTeam, adminID, "acting lead", nil))
	d := f.check(t, agentA, catalog.ManageTeam)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonOverrideGranted, d.Reason)

	require.NoError(t, f.service.Revoke(ctx, agentA, catalog.ManageTeam, adminID, "lead returned"))
	d = f.check(t, agentA, catalog.ManageTeam)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonOverrideRevoked, d.Reason)

	// A revoke also beats a role default.
	require.NoError(t, f.service.Revoke(ctx, managerID, catalog.ManageTeam, adminID, "suspended"))
	assert.False(t, f.check(t, managerID, catalog.ManageTeam).Granted)
}

func TestExpiredOverrideBehavesAsAbsent(t *testing.T) {
	ctx := context.Background()
	for _, granted := range []bool{true, false} {
		withExpired := newFixture(t)
		without := newFixture(t)
		past := withExpired.clock.Now().Add(-time.Second)
		for _, perm := range []catalog.Permission{catalog.ManageTeam, catalog.CreateClient, catalog.ReadClient} {
			require.NoError(t, withExpired.overrides.UpsertOverride(ctx, rbac.Override{
				UserID:     agentA,
				Permission: perm,
				Granted:    granted,
				GrantedBy:  adminID,
				CreatedAt:  past.Add(-time.Hour),
				ExpiresAt:  &past,
			}))
		}
		for _, perm := range catalog.All() {
			got := withExpired.check(t, agentA, perm)
			want := without.check(t, agentA, perm)
			assert.Equal(t, want.Granted, got.Granted, perm.String())
			assert.Equal(t, want.Reason, got.Reason, perm.String())
		}
	}
}

func TestOverrideExpiringExactlyNowIsAbsent(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	require.NoError(t, f.overrides.UpsertOverride(context.Background(), rbac.Override{
		UserID: agentA, Permission: catalog.ManageTeam, Granted: true, GrantedBy: adminID, ExpiresAt: &now,
	}))
	assert.False(t, f.check(t, agentA, catalog.ManageTeam).Granted)
}

func TestOwnershipScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.SetOwner(ctx, agentA, catalog.ResourceClient, clientC1, rbac.KindOwner))
	require.NoError(t, f.service.SetOwner(ctx, agentB, catalog.ResourceClient, clientC2, rbac.KindOwner))

	d := f.checkClient(t, agentA, catalog.ReadClient, clientC1)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonOwner, d.Reason)

	d = f.checkClient(t, agentA, catalog.ReadClient, clientC2)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonNotOwner, d.Reason)

	d = f.checkClient(t, managerID, catalog.ReadClient, clientC2)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonBroadAccess, d.Reason)

	// Update maps to MANAGE_ALL_CLIENTS, which managers hold too.
	assert.True(t, f.checkClient(t, managerID, catalog.UpdateClient, clientC2).Granted)
	assert.False(t, f.checkClient(t, agentA, catalog.UpdateClient, clientC2).Granted)

	// Without a resource no narrowing applies.
	d = f.check(t, agentA, catalog.ReadClient)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonGranted, d.Reason)
}

func TestImplicitOwnerGrantsAccess(t *testing.T) {
	f := newFixture(t)
	f.implicit.Set(catalog.ResourceClient, clientC2, agentB)

	d := f.checkClient(t, agentB, catalog.ReadClient, clientC2)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonOwner, d.Reason)

	d = f.checkClient(t, agentC, catalog.ReadClient, clientC2)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonNotOwner, d.Reason)
}

func TestOverrideWinsOverOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.service.SetOwner(ctx, agentA, catalog.ResourceClient, clientC1, rbac.KindOwner))

	require.NoError(t, f.service.Revoke(ctx, agentA, catalog.ReadClient, adminID, "audit hold"))
	d := f.checkClient(t, agentA, catalog.ReadClient, clientC1)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonOverrideRevoked, d.Reason)

	require.NoError(t, f.service.Grant(ctx, agentC, catalog.ReadClient, adminID, "cover", nil))
	d = f.checkClient(t, agentC, catalog.ReadClient, clientC1)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonOverrideGranted, d.Reason)
}

func TestBroadAccessHonoursOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.Grant(ctx, agentC, catalog.ReadAllClients, adminID, "team lead", nil))
	d := f.checkClient(t, agentC, catalog.ReadClient, clientC2)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonBroadAccess, d.Reason)

	require.NoError(t, f.service.Revoke(ctx, managerID, catalog.ReadAllClients, adminID, "restricted"))
	d = f.checkClient(t, managerID, catalog.ReadClient, clientC2)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonNotOwner, d.Reason)
}

func TestIdempotentWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.service.SetOwner(ctx, agentA, catalog.ResourceClient, clientC1, rbac.KindOwner))
	before, err := f.service.Owners(ctx, catalog.ResourceClient, clientC1)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	require.NoError(t, f.service.SetOwner(ctx, agentA, catalog.ResourceClient, clientC1, rbac.KindOwner))
	after, err := f.service.Owners(ctx, catalog.ResourceClient, clientC1)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	require.NoError(t, f.service.Grant(ctx, agentA, catalog.ManageTeam, adminID, "cover", nil))
	require.NoError(t, f.service.Grant(ctx, agentA, catalog.ManageTeam, adminID, "cover", nil))
	rows, err := f.service.ListOverrides(ctx, agentA)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Granted)
	assert.True(t, rows[0].Active)
}

func TestListEffectivePermissionsMatchesCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.clock.Now().Add(time.Minute)
	require.NoError(t, f.service.Grant(ctx, agentA, catalog.ManageTeam, adminID, "cover", nil))
	require.NoError(t, f.service.Grant(ctx, agentA, catalog.ViewAnalytics, adminID, "review", &soon))
	require.NoError(t, f.service.Revoke(ctx, agentA, catalog.CreateClient, adminID, "probation"))
	require.NoError(t, f.service.Revoke(ctx, managerID, catalog.ExportData, adminID, "policy"))
	require.NoError(t, f.service.Grant(ctx, managerID, catalog.SystemConfig, adminID, "migration", &soon))

	assertAgreement := func() {
		for _, userID := range []int64{adminID, managerID, agentA, agentB} {
			effective, err := f.service.ListEffectivePermissions(ctx, userID)
			require.NoError(t, err)
			set := make(map[catalog.Permission]bool, len(effective))
			for _, p := range effective {
				set[p] = true
			}
			for _, perm := range catalog.All() {
				d := f.check(t, userID, perm)
				assert.Equal(t, d.Granted, set[perm], "user %d permission %s", userID, perm)
			}
		}
	}
	assertAgreement()
	f.clock.Advance(2 * time.Minute)
	assertAgreement()
}

func TestUnknownUserDenies(t *testing.T) {
	f := newFixture(t)
	d := f.check(t, 999, catalog.ReadClient)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonUnknownUser, d.Reason)

	_, err := f.service.ListEffectivePermissions(context.Background(), 999)
	assert.ErrorIs(t, err, rbac.ErrUserNotFound)
}

type invalidRoleLookup struct{}

func (invalidRoleLookup) GetRole(context.Context, int64) (catalog.Role, error) {
	return catalog.Role(42), nil
}

func TestConfigurationErrorsAreDistinctFromDeny(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.resolver.CheckPermission(ctx, rbac.Request{UserID: agentA, Permission: catalog.Permission(0)})
	require.Error(t, err)
	assert.True(t, catalog.IsConfigError(err))
	assert.ErrorIs(t, err, catalog.ErrUnknownPermission)
	assert.False(t, d.Granted)
	assert.Equal(t, rbac.ReasonConfiguration, d.Reason)

	_, err = f.resolver.CheckPermission(ctx, rbac.Request{
		UserID:     agentA,
		Permission: catalog.ReadClient,
		Resource:   &rbac.Resource{Type: catalog.ResourceProperty, ID: 1},
	})
	assert.ErrorIs(t, err, catalog.ErrResourceMismatch)

	bad := newFixture(t, func(cfg *rbac.ResolverConfig) { cfg.Roles = invalidRoleLookup{} })
	d, err = bad.resolver.CheckPermission(ctx, rbac.Request{UserID: agentA, Permission: catalog.ReadClient})
	assert.ErrorIs(t, err, catalog.ErrUnknownRole)
	assert.False(t, d.Granted)

	assert.Equal(t, 2, f.log.Len())
	assert.Equal(t, 1, bad.log.Len())
}

type failingOverrides struct {
	*memstore.Overrides
}

func (failingOverrides) EffectiveOverride(context.Context, int64, catalog.Permission, time.Time) (rbac.Override, bool, error) {
	return rbac.Override{}, false, context.DeadlineExceeded
}

type failingOwnership struct {
	*memstore.Ownership
}

func (failingOwnership) IsOwner(context.Context, int64, catalog.ResourceType, int64) (bool, error) {
	return false, errors.New("connection reset")
}

func TestStoreFailureFailsClosed(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		opt  fixtureOption
		req  rbac.Request
	}{
		{
			name: "override store",
			opt:  func(cfg *rbac.ResolverConfig) { cfg.Overrides = failingOverrides{memstore.NewOverrides()} },
			req:  rbac.Request{UserID: adminID, Permission: catalog.SystemConfig},
		},
		{
			name: "ownership store",
			opt:  func(cfg *rbac.ResolverConfig) { cfg.Ownership = failingOwnership{memstore.NewOwnership()} },
			req: rbac.Request{
				UserID:     adminID,
				Permission: catalog.ReadClient,
				Resource:   &rbac.Resource{Type: catalog.ResourceClient, ID: clientC1},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.opt)
			d, err := f.resolver.CheckPermission(ctx, tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, rbac.ErrStoreUnavailable)
			assert.False(t, catalog.IsConfigError(err))
			assert.False(t, d.Granted)
			assert.Equal(t, rbac.ReasonStoreUnavailable, d.Reason)
			assert.Equal(t, 1, f.log.Len())
		})
	}
}

type failingRecorder struct{}

func (failingRecorder) Record(context.Context, audit.Entry) error {
	return errors.New("disk full")
}

func TestAuditFailureDoesNotChangeDecision(t *testing.T) {
	f := newFixture(t, func(cfg *rbac.ResolverConfig) { cfg.Audit = failingRecorder{} })

	d, err := f.resolver.CheckPermission(context.Background(), rbac.Request{UserID: adminID, Permission: catalog.SystemConfig})
	require.NoError(t, err)
	assert.True(t, d.Granted)
	assert.Equal(t, rbac.ReasonGranted, d.Reason)
	assert.ErrorIs(t, d.AuditErr, rbac.ErrAuditWriteFailed)

	d, err = f.resolver.CheckPermission(context.Background(), rbac.Request{UserID: agentA, Permission: catalog.SystemConfig})
	require.NoError(t, err)
	assert.False(t, d.Granted)
	assert.Error(t, d.AuditErr)
}

func TestEveryCallWritesOneAuditEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requests := []rbac.Request{
		{UserID: adminID, Permission: catalog.SystemConfig},
		{UserID: agentA, Permission: catalog.SystemConfig},
		{UserID: 999, Permission: catalog.ReadClient},
		{UserID: agentA, Permission: catalog.Permission(200)},
		{UserID: agentA, Permission: catalog.ReadClient, Resource: &rbac.Resource{Type: catalog.ResourceClient, ID: clientC2}, Action: "GET /clients/{id}"},
	}
	callIDs := make(map[string]bool)
	for _, req := range requests {
		d, _ := f.resolver.CheckPermission(ctx, req)
		callIDs[d.CallID.String()] = true
	}
	assert.Len(t, callIDs, len(requests))
	require.Equal(t, len(requests), f.log.Len())

	result, err := audit.NewService(f.log).Query(ctx, audit.Filter{UserID: agentA, ResourceType: catalog.ResourceClient})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	row := result.Rows[0]
	assert.Equal(t, "READ_CLIENT", row.Permission)
	assert.Equal(t, "client", row.ResourceType)
	require.NotNil(t, row.ResourceID)
	assert.Equal(t, clientC2, *row.ResourceID)
	assert.False(t, row.Granted)
	assert.Equal(t, "not_owner", row.Reason)
	assert.Equal(t, "GET /clients/{id}", row.Action)
}

func TestConcurrentChecksAndWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const workers = 8
	const rounds = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, _ = f.resolver.CheckPermission(ctx, rbac.Request{UserID: agentA, Permission: catalog.ManageTeam})
			}
		}()
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if (w+i)%2 == 0 {
					_ = f.service.Grant(ctx, agentA, catalog.ManageTeam, adminID, "flip", nil)
				} else {
					_ = f.service.Revoke(ctx, agentA, catalog.ManageTeam, adminID, "flop")
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers*rounds, f.log.Len())
	rows, err := f.service.ListOverrides(ctx, agentA)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestNewResolverRequiresStores(t *testing.T) {
	_, err := rbac.NewResolver(rbac.ResolverConfig{})
	assert.Error(t, err)
}
