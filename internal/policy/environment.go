package policy

import (
	"strings"

	"github.com/koustreak/sqlgate/internal/errs"
)

// Environment names one of the fixed deployment environments.
type Environment string

const (
	EnvLocal      Environment = "local"
	EnvTest       Environment = "test"
	EnvProduction Environment = "production"
)

// ParseEnvironment normalises an environment name. An empty name means local.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToLower(strings.TrimSpace(s))) {
	case "", EnvLocal:
		return EnvLocal, nil
	case EnvTest:
		return EnvTest, nil
	case EnvProduction:
		return EnvProduction, nil
	default:
		return "", errs.Newf(errs.ErrKindConfigurationInvalid,
			"unknown environment %q (expected local, test or production)", s)
	}
}

// EnvironmentPolicy is the fixed access profile of an environment.
type EnvironmentPolicy struct {
	Name              Environment `json:"name"`
	ReadOnly          bool        `json:"read_only"`
	AllowedOperations []string    `json:"allowed_operations"`
}

// Allows reports whether verb is in the allow-list.
func (p EnvironmentPolicy) Allows(verb string) bool {
	verb = strings.ToUpper(verb)
	for _, op := range p.AllowedOperations {
		if op == verb {
			return true
		}
	}
	return false
}

var environments = map[Environment]EnvironmentPolicy{
	EnvLocal: {
		Name: EnvLocal,
		AllowedOperations: []string{
			"SELECT", "INSERT", "UPDATE", "DELETE",
			"SHOW", "DESCRIBE", "DESC", "EXPLAIN",
			"ALTER", "TRUNCATE",
		},
	},
	EnvTest: {
		Name: EnvTest,
		AllowedOperations: []string{
			"SELECT", "INSERT", "UPDATE",
			"SHOW", "DESCRIBE", "DESC", "EXPLAIN",
			"ALTER",
		},
	},
	EnvProduction: {
		Name:              EnvProduction,
		ReadOnly:          true,
		AllowedOperations: []string{"SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN"},
	},
}

// PolicyFor returns a copy of the policy of env.
func PolicyFor(env Environment) (EnvironmentPolicy, bool) {
	p, ok := environments[env]
	if !ok {
		return EnvironmentPolicy{}, false
	}
	p.AllowedOperations = append([]string(nil), p.AllowedOperations...)
	return p, true
}
