// Package namecheck validates the identifiers CinchDB addresses
// entities by (databases, branches, tenants, tables, columns, views).
// It is a pure, dependency-free helper specified only at its contract
// boundary, per spec.md §1.
package namecheck

import (
	"regexp"
	"strings"

	"github.com/cinchdb/cinchdb/internal/cincherr"
)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// Clean trims a name before validation, per spec.md invariant 4.
func Clean(name string) string {
	return strings.TrimSpace(name)
}

// Valid reports whether name matches the identifier grammar. Names are
// case-sensitive and must already be trimmed (call Clean first).
func Valid(name string) bool {
	return namePattern.MatchString(name)
}

// Check validates a name for the named operation, returning an
// *cincherr.Error of Kind InvalidName on failure.
func Check(op, name string) error {
	cleaned := Clean(name)
	if !Valid(cleaned) {
		return cincherr.New(cincherr.InvalidName, op, "name \""+name+"\" must match ^[A-Za-z_][A-Za-z0-9_]{0,62}$")
	}
	return nil
}
