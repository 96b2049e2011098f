package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRole indicates a role outside the catalog.
	ErrUnknownRole = errors.New("catalog: unknown role")
	// ErrUnknownPermission indicates a permission outside the catalog.
	ErrUnknownPermission = errors.New("catalog: unknown permission")
	// ErrUnknownResourceType indicates a resource type outside the catalog.
	ErrUnknownResourceType = errors.New("catalog: unknown resource type")
	// ErrResourceMismatch indicates a scoped permission checked against the wrong resource type.
	ErrResourceMismatch = errors.New("catalog: permission does not apply to resource type")
)

// ConfigError reports a reference to something the catalog does not define.
// It is a programming or configuration bug and never a deny decision.
type ConfigError struct {
	Kind  error
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %q", e.Kind, e.Value)
}

func (e *ConfigError) Unwrap() error { return e.Kind }

func configError(kind error, value string) error {
	return &ConfigError{Kind: kind, Value: value}
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
