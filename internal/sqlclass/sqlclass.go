// Package sqlclass classifies a SQL statement's kind (read, write, or
// DDL) so the query executor (4.I) can reject statements that don't
// match the entry point they were submitted to. It is a pure,
// dependency-free helper specified only at its contract boundary, per
// spec.md §1 — not a full SQL parser.
package sqlclass

import (
	"strings"

	"github.com/cinchdb/cinchdb/internal/cincherr"
)

// Kind is the coarse classification of a SQL statement.
type Kind int

const (
	Unknown Kind = iota
	Read
	Write
	DDL
)

var (
	readVerbs = []string{"SELECT", "WITH", "EXPLAIN", "PRAGMA"}
	writeVerbs = []string{"INSERT", "UPDATE", "DELETE", "REPLACE"}
	ddlVerbs = []string{
		"CREATE", "DROP", "ALTER", "VACUUM", "REINDEX", "ATTACH", "DETACH",
		"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT", "RELEASE",
	}
)

// Classify returns the Kind of the first statement keyword in sql.
func Classify(sql string) Kind {
	verb := firstKeyword(sql)
	for _, v := range readVerbs {
		if verb == v {
			return Read
		}
	}
	for _, v := range writeVerbs {
		if verb == v {
			return Write
		}
	}
	for _, v := range ddlVerbs {
		if verb == v {
			return DDL
		}
	}
	return Unknown
}

func firstKeyword(sql string) string {
	trimmed := strings.TrimSpace(sql)
	// Strip every leading "--" SQL comment line.
	for strings.HasPrefix(trimmed, "--") {
		if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
			trimmed = strings.TrimSpace(trimmed[idx+1:])
		} else {
			trimmed = ""
			break
		}
	}
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end < 0 {
		end = len(trimmed)
	}
	return strings.ToUpper(trimmed[:end])
}

// CheckKind validates that sql's Kind is exactly want, returning a
// SQLValidation error otherwise.
func CheckKind(op, sql string, want Kind) error {
	got := Classify(sql)
	if got != want {
		return cincherr.New(cincherr.SQLValidation, op, "statement is not a "+kindName(want)+" statement")
	}
	return nil
}

// RejectDDL returns a SQLValidation error if sql is a DDL statement —
// the query executor forbids DDL; callers must use the schema
// managers (4.F) instead.
func RejectDDL(op, sql string) error {
	if Classify(sql) == DDL {
		return cincherr.New(cincherr.SQLValidation, op, "DDL statements must go through the schema managers, not the query executor")
	}
	return nil
}

func kindName(k Kind) string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case DDL:
		return "DDL"
	default:
		return "unknown"
	}
}
