package roles

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// Service describes the fixed role catalog.
type Service struct{}

// NewService builds Service instance.
func NewService() *Service {
	return &Service{}
}

// ListRoles returns every role, highest privilege first.
func (s *Service) ListRoles() ([]Role, error) {
	all := catalog.Roles()
	title := cases.Title(language.English)
	out := make([]Role, 0, len(all))
	for _, r := range all {
		level, err := catalog.Level(r)
		if err != nil {
			return nil, err
		}
		perms, err := catalog.DefaultPermissions(r)
		if err != nil {
			return nil, err
		}
		outranks := make([]catalog.Role, 0)
		for _, other := range all {
			if catalog.HigherPrivilege(r, other) {
				outranks = append(outranks, other)
			}
		}
		out = append(out, Role{
			Name:        r,
			Title:       title.String(strings.ReplaceAll(r.String(), "_", " ")),
			Level:       level,
			Permissions: perms,
			Outranks:    outranks,
		})
	}
	return out, nil
}
