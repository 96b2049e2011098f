package catalog

// ScopedPermission describes a permission that only applies to records the
// user owns, unless the user also holds Broad.
type ScopedPermission struct {
	Permission Permission
	Resource   ResourceType
	Broad      Permission
}

var scoped = map[Permission]ScopedPermission{
	ReadClient:   {ReadClient, ResourceClient, ReadAllClients},
	UpdateClient: {UpdateClient, ResourceClient, ManageAllClients},
	DeleteClient: {DeleteClient, ResourceClient, ManageAllClients},

	ReadProperty:   {ReadProperty, ResourceProperty, ReadAllProperties},
	UpdateProperty: {UpdateProperty, ResourceProperty, ManageAllProperties},
	DeleteProperty: {DeleteProperty, ResourceProperty, ManageAllProperties},

	ReadTransaction:   {ReadTransaction, ResourceTransaction, ReadAllTransactions},
	UpdateTransaction: {UpdateTransaction, ResourceTransaction, ManageAllTransactions},
	DeleteTransaction: {DeleteTransaction, ResourceTransaction, ManageAllTransactions},

	ReadDocument:   {ReadDocument, ResourceDocument, ReadAllDocuments},
	UpdateDocument: {UpdateDocument, ResourceDocument, ManageAllDocuments},
	DeleteDocument: {DeleteDocument, ResourceDocument, ManageAllDocuments},
}

// Scope returns the ownership scoping of perm, if any.
func Scope(perm Permission) (ScopedPermission, bool) {
	s, ok := scoped[perm]
	return s, ok
}

// ScopedPermissions returns the full ownership table in catalog order.
func ScopedPermissions() []ScopedPermission {
	out := make([]ScopedPermission, 0, len(scoped))
	for _, p := range All() {
		if s, ok := scoped[p]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Check validates that perm may be evaluated against resource type t.
func (s ScopedPermission) Check(t ResourceType) error {
	if !t.Valid() {
		return configError(ErrUnknownResourceType, t.String())
	}
	if t != s.Resource {
		return configError(ErrResourceMismatch, s.Permission.String()+" on "+t.String())
	}
	return nil
}
