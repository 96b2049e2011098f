package catalog

import (
	"strconv"
	"strings"
)

// Role is a privilege tier. The zero value is not a valid role.
type Role uint8

const (
	RoleAgent Role = iota + 1
	RoleManager
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleAgent:   "agent",
	RoleManager: "manager",
	RoleAdmin:   "admin",
}

// Hierarchy levels. Levels are strictly ordered; no two roles share one.
var roleLevels = map[Role]int{
	RoleAgent:   10,
	RoleManager: 50,
	RoleAdmin:   100,
}

// Roles returns every role ordered from highest to lowest privilege.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleAgent}
}

// Valid reports whether r is defined by the catalog.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Role(" + strconv.Itoa(int(r)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, configError(ErrUnknownRole, r.String())
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole resolves a serialized role name.
func ParseRole(name string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for role, roleName := range roleNames {
		if roleName == normalized {
			return role, nil
		}
	}
	return 0, configError(ErrUnknownRole, name)
}

// Level returns the hierarchy level of r.
func Level(r Role) (int, error) {
	level, ok := roleLevels[r]
	if !ok {
		return 0, configError(ErrUnknownRole, r.String())
	}
	return level, nil
}

// HigherPrivilege reports whether a sits strictly above b. Unknown roles
// never outrank anything.
func HigherPrivilege(a, b Role) bool {
	levelA, errA := Level(a)
	levelB, errB := Level(b)
	if errA != nil || errB != nil {
		return false
	}
	return levelA > levelB
}

// Validate returns a ConfigError when r is outside the catalog.
func (r Role) Validate() error {
	if !r.Valid() {
		return configError(ErrUnknownRole, r.String())
	}
	return nil
}
