package rbac

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// Reason explains a decision.
type Reason uint8

const (
	// ReasonGranted means the role holds the permission and no ownership narrowing applied.
	ReasonGranted Reason = iota + 1
	// ReasonOverrideGranted means an unexpired per-user grant decided.
	ReasonOverrideGranted
	// ReasonOwner means the user owns the resource, explicitly or implicitly.
	ReasonOwner
	// ReasonBroadAccess means the user may act on every resource of the type.
	ReasonBroadAccess

	// ReasonNoPermission means neither an override nor the role grants the permission.
	ReasonNoPermission
	// ReasonNotOwner means the permission is ownership scoped and the user neither
	// owns the resource nor holds broad access.
	ReasonNotOwner
	// ReasonExpired marks an override past its expiry. Resolution treats expired
	// overrides as absent, so it only appears in override listings.
	ReasonExpired
	// ReasonUnknownUser means the identity lookup does not know the user.
	ReasonUnknownUser
	// ReasonOverrideRevoked means an unexpired per-user revoke decided.
	ReasonOverrideRevoked
	// ReasonStoreUnavailable means a store failed and the check failed closed.
	ReasonStoreUnavailable
	// ReasonConfiguration means the request referenced something outside the catalog.
	ReasonConfiguration
)

var reasonNames = map[Reason]string{
	ReasonGranted:          "granted",
	ReasonOverrideGranted:  "override_granted",
	ReasonOwner:            "owner",
	ReasonBroadAccess:      "broad_access",
	ReasonNoPermission:     "no_permission",
	ReasonNotOwner:         "not_owner",
	ReasonExpired:          "expired",
	ReasonUnknownUser:      "unknown_user",
	ReasonOverrideRevoked:  "override_revoked",
	ReasonStoreUnavailable: "store_unavailable",
	ReasonConfiguration:    "configuration_error",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "Reason(" + strconv.Itoa(int(r)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Decision is the outcome of one CheckPermission call.
type Decision struct {
	Granted bool
	Reason  Reason
	// Role is the role the user resolved to, zero when the lookup failed.
	Role catalog.Role
	// CallID identifies the audit entry written for this call.
	CallID uuid.UUID
	// AuditErr is set when the audit entry could not be written. The decision
	// stands regardless.
	AuditErr error
}

func allow(reason Reason) Decision { return Decision{Granted: true, Reason: reason} }

func deny(reason Reason) Decision { return Decision{Granted: false, Reason: reason} }
