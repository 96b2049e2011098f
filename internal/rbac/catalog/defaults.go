package catalog

// roleDefaults is built once at init and never mutated afterwards.
var roleDefaults = buildDefaults()

func buildDefaults() map[Role]map[Permission]struct{} {
	admin := make(map[Permission]struct{})
	for _, p := range All() {
		admin[p] = struct{}{}
	}

	manager := make(map[Permission]struct{})
	managerExcluded := map[Permission]struct{}{
		SystemConfig:       {},
		ManageRoles:        {},
		ManageIntegrations: {},
		CreateUser:         {},
		DeleteUser:         {},
	}
	for _, p := range All() {
		if _, excluded := managerExcluded[p]; !excluded {
			manager[p] = struct{}{}
		}
	}

	agent := setOf(
		ReadUser,
		ViewTeam,
		CreateClient, ReadClient, UpdateClient,
		CreateProperty, ReadProperty, UpdateProperty,
		CreateTransaction, ReadTransaction, UpdateTransaction,
		CreateDocument, ReadDocument, UpdateDocument, DeleteDocument,
		ViewReports,
	)

	return map[Role]map[Permission]struct{}{
		RoleAdmin:   admin,
		RoleManager: manager,
		RoleAgent:   agent,
	}
}

func setOf(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// DefaultPermissions returns the default grant set of role in catalog order.
// The returned slice is a copy.
func DefaultPermissions(role Role) ([]Permission, error) {
	set, ok := roleDefaults[role]
	if !ok {
		return nil, configError(ErrUnknownRole, role.String())
	}
	perms := make([]Permission, 0, len(set))
	for _, p := range All() {
		if _, granted := set[p]; granted {
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// HasDefaultPermission reports whether role holds perm by default.
func HasDefaultPermission(role Role, perm Permission) (bool, error) {
	set, ok := roleDefaults[role]
	if !ok {
		return false, configError(ErrUnknownRole, role.String())
	}
	if !perm.Valid() {
		return false, configError(ErrUnknownPermission, perm.String())
	}
	_, granted := set[perm]
	return granted, nil
}
