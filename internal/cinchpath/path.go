// Package cinchpath resolves the canonical on-disk layout of a CinchDB
// project. Every other package addresses files exclusively through a
// *Layout; no component is allowed to concatenate paths itself.
package cinchpath

import (
	"os"
	"path/filepath"
)

// Layout maps (project, database, branch, tenant) onto filesystem paths
// rooted at Root.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) *Layout {
	return &Layout{Root: root}
}

// CinchDir is the <root>/.cinchdb directory.
func (l *Layout) CinchDir() string {
	return filepath.Join(l.Root, ".cinchdb")
}

// ConfigFile is <root>/.cinchdb/config.toml.
func (l *Layout) ConfigFile() string {
	return filepath.Join(l.CinchDir(), "config.toml")
}

// MetadataDB is <root>/.cinchdb/metadata.db.
func (l *Layout) MetadataDB() string {
	return filepath.Join(l.CinchDir(), "metadata.db")
}

// DatabasesDir is <root>/.cinchdb/databases.
func (l *Layout) DatabasesDir() string {
	return filepath.Join(l.CinchDir(), "databases")
}

// DatabaseDir is <root>/.cinchdb/databases/<db>.
func (l *Layout) DatabaseDir(db string) string {
	return filepath.Join(l.DatabasesDir(), db)
}

// BranchesDir is <root>/.cinchdb/databases/<db>/branches.
func (l *Layout) BranchesDir(db string) string {
	return filepath.Join(l.DatabaseDir(db), "branches")
}

// BranchDir is <root>/.cinchdb/databases/<db>/branches/<branch>.
func (l *Layout) BranchDir(db, branch string) string {
	return filepath.Join(l.BranchesDir(db), branch)
}

// BranchMetadataFile is the branch's metadata.json.
func (l *Layout) BranchMetadataFile(db, branch string) string {
	return filepath.Join(l.BranchDir(db, branch), "metadata.json")
}

// ChangesFile is the branch's changes.json.
func (l *Layout) ChangesFile(db, branch string) string {
	return filepath.Join(l.BranchDir(db, branch), "changes.json")
}

// ChangesLockFile is the advisory lock file guarding appends to ChangesFile.
func (l *Layout) ChangesLockFile(db, branch string) string {
	return filepath.Join(l.BranchDir(db, branch), "changes.json.lock")
}

// TenantsDir is the branch's tenants/ subtree.
func (l *Layout) TenantsDir(db, branch string) string {
	return filepath.Join(l.BranchDir(db, branch), "tenants")
}

// TenantFile is the SQLite file for a single tenant.
func (l *Layout) TenantFile(db, branch, tenant string) string {
	return filepath.Join(l.TenantsDir(db, branch), tenant+".db")
}

// Exists reports whether a CinchDB project has already been initialized
// at Root (i.e. the .cinchdb directory exists).
func (l *Layout) Exists() bool {
	_, err := os.Stat(l.CinchDir())
	return err == nil
}
