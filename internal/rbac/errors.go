package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates the identity lookup has no such user.
	ErrUserNotFound = errors.New("rbac: user not found")
	// ErrStoreUnavailable indicates a backing store failed or timed out.
	// Resolution fails closed whenever it is returned.
	ErrStoreUnavailable = errors.New("rbac: store unavailable")
	// ErrAuditWriteFailed indicates the access log could not be written.
	// It never changes a decision.
	ErrAuditWriteFailed = errors.New("rbac: audit write failed")
	// ErrInvalidExpiry indicates an override expiry that is not in the future.
	ErrInvalidExpiry = errors.New("rbac: override expiry must be in the future")
	// ErrOverrideNotFound indicates there is no override to clear.
	ErrOverrideNotFound = errors.New("rbac: override not found")
	// ErrInsufficientPrivilege indicates an actor tried to administer a user ranked above them.
	ErrInsufficientPrivilege = errors.New("rbac: insufficient privilege")
	// ErrInvalidOwnership indicates an ownership row missing required fields.
	ErrInvalidOwnership = errors.New("rbac: invalid ownership")
)

// StoreError wraps a failure from one of the stores the resolver consults.
// errors.Is(err, ErrStoreUnavailable) holds for every StoreError.
type StoreError struct {
	Store string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("rbac: %s store unavailable: %v", e.Store, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports ErrStoreUnavailable so callers need not know the concrete type.
func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeError(store string, err error) error {
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Store: store, Err: err}
}
