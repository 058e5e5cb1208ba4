// Package metadatastore implements the per-project SQLite metadata
// store (spec.md 4.B): databases, branches, tenants, and maintenance
// state. Its DSN pragma string and Exec/Query/QueryRow wrapper shape
// are ported directly from hazyhaar-GoClode/internal/core/db.go's
// Engine, generalized from "the one config/session store" to "the
// authoritative registry every other component consults".
package metadatastore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/model"
)

// Store wraps the project's metadata.db.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

const pragmaDSN = "%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"

// Open opens (creating if necessary) the metadata store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(pragmaDSN, path))
	if err != nil {
		return nil, cincherr.Wrap("metadatastore.Open", err)
	}
	db.SetMaxOpenConns(1) // the metadata pool has capacity 1, per spec.md 4.C

	if err := db.Ping(); err != nil {
		return nil, cincherr.Wrap("metadatastore.Open", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS databases (
		name TEXT PRIMARY KEY,
		created_at INTEGER DEFAULT (strftime('%s', 'now'))
	);

	CREATE TABLE IF NOT EXISTS branches (
		database TEXT NOT NULL,
		name TEXT NOT NULL,
		parent TEXT,
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (database, name)
	);

	CREATE TABLE IF NOT EXISTS tenants (
		database TEXT NOT NULL,
		branch TEXT NOT NULL,
		name TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'ready',
		schema_version TEXT NOT NULL DEFAULT '',
		created_at INTEGER DEFAULT (strftime('%s', 'now')),
		PRIMARY KEY (database, branch, name)
	);

	CREATE TABLE IF NOT EXISTS maintenance (
		id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		started_at INTEGER DEFAULT (strftime('%s', 'now')),
		UNIQUE (scope, key)
	);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return cincherr.Wrap("metadatastore.initSchema", err)
	}
	return nil
}

// RegisterDatabase records a new database name.
func (s *Store) RegisterDatabase(name string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO databases (name) VALUES (?)`, name)
	if err != nil {
		return cincherr.Wrap("metadatastore.RegisterDatabase", err)
	}
	return nil
}

// RegisterBranch records a new branch, with its parent (empty for main).
func (s *Store) RegisterBranch(db, branch, parent string) error {
	_, err := s.db.Exec(`
		INSERT INTO branches (database, name, parent) VALUES (?, ?, ?)
		ON CONFLICT(database, name) DO UPDATE SET parent = excluded.parent
	`, db, branch, parent)
	if err != nil {
		return cincherr.Wrap("metadatastore.RegisterBranch", err)
	}
	return nil
}

// DropBranch removes a branch's metadata row (tenants cascade via
// DropTenant calls made by the caller before this).
func (s *Store) DropBranch(db, branch string) error {
	_, err := s.db.Exec(`DELETE FROM branches WHERE database = ? AND name = ?`, db, branch)
	if err != nil {
		return cincherr.Wrap("metadatastore.DropBranch", err)
	}
	return nil
}

// BranchExists reports whether (db, branch) has been registered.
func (s *Store) BranchExists(db, branch string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM branches WHERE database = ? AND name = ?`, db, branch).Scan(&n)
	if err != nil {
		return false, cincherr.Wrap("metadatastore.BranchExists", err)
	}
	return n > 0, nil
}

// RegisterTenant adds tenant to (db, branch) in state "ready".
func (s *Store) RegisterTenant(db, branch, tenant string) error {
	_, err := s.db.Exec(`
		INSERT INTO tenants (database, branch, name, state) VALUES (?, ?, ?, 'ready')
		ON CONFLICT(database, branch, name) DO UPDATE SET state = 'ready'
	`, db, branch, tenant)
	if err != nil {
		return cincherr.Wrap("metadatastore.RegisterTenant", err)
	}
	return nil
}

// DropTenant removes tenant from (db, branch).
func (s *Store) DropTenant(db, branch, tenant string) error {
	_, err := s.db.Exec(`DELETE FROM tenants WHERE database = ? AND branch = ? AND name = ?`, db, branch, tenant)
	if err != nil {
		return cincherr.Wrap("metadatastore.DropTenant", err)
	}
	return nil
}

// ListTenants returns all tenant names for (db, branch).
func (s *Store) ListTenants(db, branch string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM tenants WHERE database = ? AND branch = ? ORDER BY name`, db, branch)
	if err != nil {
		return nil, cincherr.Wrap("metadatastore.ListTenants", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, cincherr.Wrap("metadatastore.ListTenants", err)
		}
		out = append(out, name)
	}
	return out, nil
}

// SetTenantState marks a tenant's lifecycle state (ready/divergent/initializing).
func (s *Store) SetTenantState(db, branch, tenant string, state model.TenantState) error {
	_, err := s.db.Exec(`UPDATE tenants SET state = ? WHERE database = ? AND branch = ? AND name = ?`,
		string(state), db, branch, tenant)
	if err != nil {
		return cincherr.Wrap("metadatastore.SetTenantState", err)
	}
	return nil
}

// TenantState returns a tenant's current lifecycle state.
func (s *Store) TenantState(db, branch, tenant string) (model.TenantState, error) {
	var state string
	err := s.db.QueryRow(`SELECT state FROM tenants WHERE database = ? AND branch = ? AND name = ?`, db, branch, tenant).Scan(&state)
	if err == sql.ErrNoRows {
		return model.TenantAbsent, nil
	}
	if err != nil {
		return "", cincherr.Wrap("metadatastore.TenantState", err)
	}
	return model.TenantState(state), nil
}

// GetSchemaVersion returns the last change id applied to a tenant, or
// the empty string if none has been applied yet.
func (s *Store) GetSchemaVersion(db, branch, tenant string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT schema_version FROM tenants WHERE database = ? AND branch = ? AND name = ?`, db, branch, tenant).Scan(&v)
	if err == sql.ErrNoRows {
		return "", cincherr.New(cincherr.NotFound, "metadatastore.GetSchemaVersion", "tenant not registered")
	}
	if err != nil {
		return "", cincherr.Wrap("metadatastore.GetSchemaVersion", err)
	}
	return v, nil
}

// SetSchemaVersion records the last change id successfully applied to a tenant.
func (s *Store) SetSchemaVersion(db, branch, tenant, version string) error {
	_, err := s.db.Exec(`UPDATE tenants SET schema_version = ? WHERE database = ? AND branch = ? AND name = ?`,
		version, db, branch, tenant)
	if err != nil {
		return cincherr.Wrap("metadatastore.SetSchemaVersion", err)
	}
	return nil
}

// EnterMaintenance idempotently records a maintenance record for
// (scope, key). A second call with the same key leaves exactly one
// row (spec.md §8 property 7).
func (s *Store) EnterMaintenance(scope model.MaintenanceScope, key, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO maintenance (id, scope, key, reason) VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET reason = excluded.reason
	`, uuid.New().String(), string(scope), key, reason)
	if err != nil {
		return cincherr.Wrap("metadatastore.EnterMaintenance", err)
	}
	return nil
}

// ExitMaintenance removes a maintenance record; safe to call when absent.
func (s *Store) ExitMaintenance(scope model.MaintenanceScope, key string) error {
	_, err := s.db.Exec(`DELETE FROM maintenance WHERE scope = ? AND key = ?`, string(scope), key)
	if err != nil {
		return cincherr.Wrap("metadatastore.ExitMaintenance", err)
	}
	return nil
}

// IsInMaintenance reports whether (scope, key) currently has a
// maintenance record.
func (s *Store) IsInMaintenance(scope model.MaintenanceScope, key string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM maintenance WHERE scope = ? AND key = ?`, string(scope), key).Scan(&n)
	if err != nil {
		return false, cincherr.Wrap("metadatastore.IsInMaintenance", err)
	}
	return n > 0, nil
}

// GetMaintenanceInfo returns the maintenance record for (scope, key),
// or nil if none exists.
func (s *Store) GetMaintenanceInfo(scope model.MaintenanceScope, key string) (*model.MaintenanceInfo, error) {
	var reason string
	var startedAt int64
	err := s.db.QueryRow(`SELECT reason, started_at FROM maintenance WHERE scope = ? AND key = ?`, string(scope), key).Scan(&reason, &startedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cincherr.Wrap("metadatastore.GetMaintenanceInfo", err)
	}
	return &model.MaintenanceInfo{
		Scope:     scope,
		Key:       key,
		Reason:    reason,
		StartedAt: time.Unix(startedAt, 0),
	}, nil
}

// Watch returns a channel that receives a notification whenever a
// write or create event is seen on the metadata.db file, whichever
// process (this one included) caused it. It is purely
// informational (every read in this package is a live SQL read); it
// mirrors hazyhaar-GoClode's Engine.WatchFile/watchConfig pattern.
func (s *Store) Watch(stop <-chan struct{}) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cincherr.Wrap("metadatastore.Watch", err)
	}
	if err := watcher.Add(s.path); err != nil {
		watcher.Close()
		return nil, cincherr.Wrap("metadatastore.Watch", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-stop:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					select {
					case out <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}
