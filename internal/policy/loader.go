package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rolesFile is the on-disk shape of a policy override file:
//
//	roles:
//	  analyst: [sales, users, orders]
//	  admin: ["*"]
type rolesFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadResolver reads a YAML role file and builds a resolver from it.
// An empty path returns the built-in role table.
func LoadResolver(path string) (*Resolver, error) {
	if path == "" {
		return NewResolver(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read roles file %s: %w", path, err)
	}

	var f rolesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roles file %s: %w", path, err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("roles file %s defines no roles", path)
	}

	return NewResolverFromRoles(f.Roles), nil
}
