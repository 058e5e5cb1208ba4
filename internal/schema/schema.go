// Package schema implements the table/column/view managers of
// spec.md 4.F. Every operation follows the same two-phase shape:
// validate & plan against the branch's main tenant, then commit the
// resulting Change to the branch's change log and fan it out to every
// tenant (4.G). Grounded on hazyhaar-GoClode/internal/core/db.go's
// initSchema DDL strings for how this codebase phrases SQLite DDL.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cinchdb/cinchdb/internal/changelog"
	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/fanout"
	"github.com/cinchdb/cinchdb/internal/maintenance"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/namecheck"
	"github.com/cinchdb/cinchdb/internal/pool"
)

// systemColumns are the implicit columns every table carries; callers
// must not declare them (spec.md 4.F).
var systemColumns = map[string]bool{"id": true, "created_at": true, "updated_at": true}

// Manager owns the collaborators one branch's schema operations need.
type Manager struct {
	Pool     *pool.Pool
	Meta     *metadatastore.Store
	Log      *changelog.Log
	Gate     *maintenance.Gate
	Layout   *cinchpath.Layout
	Database string
	Branch   string

	// Parallelism overrides fanout's default tenant concurrency; 0 uses fanout.DefaultParallelism.
	Parallelism int
}

func (m *Manager) fanoutDeps() fanout.Deps {
	return fanout.Deps{
		Pool:        m.Pool,
		Meta:        m.Meta,
		Log:         m.Log,
		Layout:      m.Layout,
		Database:    m.Database,
		Branch:      m.Branch,
		Parallelism: m.Parallelism,
	}
}

// mainTenantPath is the reference schema tenant every validate step
// introspects, per spec.md §3 ("there is always a tenant named main").
func (m *Manager) mainTenantPath() string {
	return m.Layout.TenantFile(m.Database, m.Branch, "main")
}

// commit appends change to the branch log and fans it out, after the
// caller's validate step has already checked the gate and planned the
// mutation. This is the shared "phase 2" every operation in this
// package funnels through.
func (m *Manager) commit(ctx context.Context, op string, change model.Change) (model.Change, error) {
	if err := m.Log.Append(change); err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	if err := fanout.Apply(ctx, m.fanoutDeps(), change, BuildSQL); err != nil {
		return model.Change{}, cincherr.Wrap(op, err)
	}
	return change, nil
}

func (m *Manager) checkMaintenance(op string) error {
	if m.Gate == nil {
		return nil
	}
	return m.Gate.Check(op, m.Database, m.Branch)
}

// tableExists reports whether name is a table in the branch's main tenant.
func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func viewExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func tableCount(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&n)
	return n, err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt any
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// viewsReferencing returns the names of every view whose select_sql
// mentions table, a coarse but sufficient dependency check for the
// drop refusals spec.md 4.F requires.
func viewsReferencing(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, sql FROM sqlite_master WHERE type = 'view'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		var viewSQL sql.NullString
		if err := rows.Scan(&name, &viewSQL); err != nil {
			return nil, err
		}
		if containsWord(viewSQL.String, table) {
			out = append(out, name)
		}
	}
	return out, rows.Err()
}

// viewsReferencingColumn returns views whose select_sql mentions
// column, used by drop_column's dependency refusal.
func viewsReferencingColumn(ctx context.Context, db *sql.DB, column string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, sql FROM sqlite_master WHERE type = 'view'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		var viewSQL sql.NullString
		if err := rows.Scan(&name, &viewSQL); err != nil {
			return nil, err
		}
		if containsWord(viewSQL.String, column) {
			out = append(out, name)
		}
	}
	return out, rows.Err()
}

func containsWord(haystack, word string) bool {
	for i := 0; i+len(word) <= len(haystack); i++ {
		if haystack[i:i+len(word)] != word {
			continue
		}
		before := byte(' ')
		if i > 0 {
			before = haystack[i-1]
		}
		after := byte(' ')
		if i+len(word) < len(haystack) {
			after = haystack[i+len(word)]
		}
		if !isIdentByte(before) && !isIdentByte(after) {
			return true
		}
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func checkName(op, name string) error {
	return namecheck.Check(op, name)
}

// BuildSQL translates a committed Change into the physical DDL
// statement(s) that realize it, and is the fanout.Builder this package
// hands to fanout.Apply.
func BuildSQL(change model.Change) ([]string, error) {
	switch change.Kind {
	case model.CreateTable:
		return buildCreateTableSQL(change.Payload)
	case model.DropTable:
		return buildDropTableSQL(change.Payload)
	case model.AddColumn:
		return buildAddColumnSQL(change.Payload)
	case model.DropColumn:
		return buildDropColumnSQL(change.Payload)
	case model.RenameColumn:
		return buildRenameColumnSQL(change.Payload)
	case model.CreateView:
		return buildCreateViewSQL(change.Payload)
	case model.DropView:
		return buildDropViewSQL(change.Payload)
	default:
		return nil, cincherr.New(cincherr.SQLValidation, "schema.BuildSQL", "unknown change kind: "+string(change.Kind))
	}
}
