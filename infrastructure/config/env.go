package config

import (
	"fmt"
	"os"
	"strings"

	domainconfig "github.com/felixgeelhaar/agent-router/domain/config"
)

// envExpander resolves ${VAR}, ${VAR:-default}, ${VAR:?message} and $VAR
// references in raw configuration text.
type envExpander struct {
	strict  bool
	missing []string
}

// Expand returns input with every reference resolved. Unset variables
// expand to "" unless strict is set or the reference is ${VAR:?message}.
func (e *envExpander) Expand(input string) (string, error) {
	e.missing = nil
	out := os.Expand(input, e.lookup)
	if len(e.missing) > 0 {
		return "", fmt.Errorf("%w: %s", domainconfig.ErrMissingEnvVar, strings.Join(e.missing, ", "))
	}
	return out, nil
}

func (e *envExpander) lookup(ref string) string {
	name, modifier, hasModifier := strings.Cut(ref, ":")
	if !validEnvName(name) {
		// $1, $$ and friends are not references.
		return "$" + ref
	}
	value, ok := os.LookupEnv(name)

	switch {
	case hasModifier && strings.HasPrefix(modifier, "-"):
		if value == "" {
			return modifier[1:]
		}
	case hasModifier && strings.HasPrefix(modifier, "?"):
		if value == "" {
			e.missing = append(e.missing, name+": "+modifier[1:])
		}
	case !ok && e.strict:
		e.missing = append(e.missing, name)
	}
	return value
}

func validEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// ExpandEnv expands references, leaving unset variables empty.
func ExpandEnv(input string) string {
	out, _ := (&envExpander{}).Expand(input)
	return out
}

// ExpandEnvStrict expands references and reports unset variables.
func ExpandEnvStrict(input string) (string, error) {
	return (&envExpander{strict: true}).Expand(input)
}
