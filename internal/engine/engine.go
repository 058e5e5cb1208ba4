// Package engine wires together the storage-engine components — path
// layout, metadata store, connection pool, maintenance gate, change
// log, schema managers, tenant fanout, branch operations, and the
// query executor — into the single object a CLI or HTTP handler
// drives. Its composition-root shape follows
// hazyhaar-GoClode/internal/core/db.go's Engine constructor, widened
// from "one SQLite file plus config" into "a full project tree".
package engine

import (
	"context"
	"os"

	"github.com/cinchdb/cinchdb/internal/branchops"
	"github.com/cinchdb/cinchdb/internal/changelog"
	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/config"
	"github.com/cinchdb/cinchdb/internal/fanout"
	"github.com/cinchdb/cinchdb/internal/maintenance"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/namecheck"
	"github.com/cinchdb/cinchdb/internal/pool"
	"github.com/cinchdb/cinchdb/internal/query"
	"github.com/cinchdb/cinchdb/internal/schema"
)

// Engine is the wired-up storage engine for one project root.
type Engine struct {
	Layout *cinchpath.Layout
	Meta   *metadatastore.Store
	Pool   *pool.Pool
	Gate   *maintenance.Gate
	Config *config.Config
}

// Init creates a new project at root: the .cinchdb directory, a
// default config.toml, the metadata store, and a "main" database with
// a "main" branch and "main" tenant (spec.md 4.A, §6).
func Init(root string) (*Engine, error) {
	const op = "engine.Init"
	layout := cinchpath.New(root)
	if layout.Exists() {
		return nil, cincherr.New(cincherr.AlreadyExists, op, "project already initialized: "+root)
	}

	if err := os.MkdirAll(layout.DatabasesDir(), 0o755); err != nil {
		return nil, cincherr.Wrap(op, err)
	}

	cfg := config.Default()
	if err := config.Save(layout, cfg); err != nil {
		return nil, err
	}

	meta, err := metadatastore.Open(layout.MetadataDB())
	if err != nil {
		return nil, err
	}

	p, err := pool.New(pool.DefaultCapacity)
	if err != nil {
		meta.Close()
		return nil, err
	}

	e := &Engine{Layout: layout, Meta: meta, Pool: p, Gate: maintenance.New(meta), Config: cfg}
	if err := e.CreateDatabase(cfg.ActiveDatabase); err != nil {
		return nil, err
	}
	return e, nil
}

// Open opens an already-initialized project at root.
func Open(root string) (*Engine, error) {
	const op = "engine.Open"
	layout := cinchpath.New(root)
	if !layout.Exists() {
		return nil, cincherr.New(cincherr.NotFound, op, "project not initialized: "+root)
	}

	cfg, err := config.Load(layout)
	if err != nil {
		return nil, err
	}
	meta, err := metadatastore.Open(layout.MetadataDB())
	if err != nil {
		return nil, err
	}
	p, err := pool.New(pool.DefaultCapacity)
	if err != nil {
		meta.Close()
		return nil, err
	}

	return &Engine{Layout: layout, Meta: meta, Pool: p, Gate: maintenance.New(meta), Config: cfg}, nil
}

// Close releases every pooled connection and the metadata store handle.
func (e *Engine) Close() error {
	e.Pool.CloseAll()
	return e.Meta.Close()
}

// CreateDatabase registers a new database with a "main" branch and a
// "main" tenant, the root of its branch tree (spec.md §3).
func (e *Engine) CreateDatabase(name string) error {
	const op = "engine.CreateDatabase"
	if err := namecheck.Check(op, name); err != nil {
		return err
	}

	if err := os.MkdirAll(e.Layout.TenantsDir(name, "main"), 0o755); err != nil {
		return cincherr.Wrap(op, err)
	}
	if err := e.Meta.RegisterDatabase(name); err != nil {
		return err
	}
	if err := e.Meta.RegisterBranch(name, "main", ""); err != nil {
		return err
	}
	if err := e.branchLog(name, "main").Init(); err != nil {
		return err
	}
	if err := e.Meta.RegisterTenant(name, "main", "main"); err != nil {
		return err
	}

	h, err := e.Pool.Borrow(context.Background(), e.Layout.TenantFile(name, "main", "main"), nil)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	h.Release()
	return nil
}

// CreateTenant registers a new tenant on (db, branch) and brings it up
// to the branch's current schema by replaying the change log (spec.md
// §3: "additional tenants are created from main's current schema").
func (e *Engine) CreateTenant(ctx context.Context, db, branch, tenant string) error {
	const op = "engine.CreateTenant"
	if err := namecheck.Check(op, tenant); err != nil {
		return err
	}
	exists, err := e.Meta.BranchExists(db, branch)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	if !exists {
		return cincherr.New(cincherr.NotFound, op, "branch not found: "+branch)
	}
	if state, err := e.Meta.TenantState(db, branch, tenant); err != nil {
		return cincherr.Wrap(op, err)
	} else if state != model.TenantAbsent {
		return cincherr.New(cincherr.AlreadyExists, op, "tenant already exists: "+tenant)
	}

	if err := os.MkdirAll(e.Layout.TenantsDir(db, branch), 0o755); err != nil {
		return cincherr.Wrap(op, err)
	}
	if err := e.Meta.RegisterTenant(db, branch, tenant); err != nil {
		return err
	}

	h, err := e.Pool.Borrow(ctx, e.Layout.TenantFile(db, branch, tenant), nil)
	if err != nil {
		return cincherr.Wrap(op, err)
	}
	h.Release()

	log := e.branchLog(db, branch)
	head, err := log.Head()
	if err != nil {
		return err
	}
	if head.ID.Zero() {
		return nil
	}
	return fanout.Apply(ctx, e.fanoutDeps(db, branch, log), head, schema.BuildSQL)
}

// Schema returns a schema manager scoped to (db, branch).
func (e *Engine) Schema(db, branch string) *schema.Manager {
	return &schema.Manager{
		Pool: e.Pool, Meta: e.Meta, Log: e.branchLog(db, branch), Gate: e.Gate,
		Layout: e.Layout, Database: db, Branch: branch,
	}
}

// Branches returns a branch-operations manager scoped to db.
func (e *Engine) Branches(db string) *branchops.Manager {
	return &branchops.Manager{Pool: e.Pool, Meta: e.Meta, Gate: e.Gate, Layout: e.Layout, Database: db}
}

// Query returns the query executor, shared across databases and
// branches (it carries no per-branch state).
func (e *Engine) Query() *query.Executor {
	return &query.Executor{Pool: e.Pool, Gate: e.Gate, Layout: e.Layout}
}

func (e *Engine) branchLog(db, branch string) *changelog.Log {
	return changelog.Open(e.Layout.ChangesFile(db, branch), e.Layout.ChangesLockFile(db, branch))
}

func (e *Engine) fanoutDeps(db, branch string, log *changelog.Log) fanout.Deps {
	return fanout.Deps{Pool: e.Pool, Meta: e.Meta, Log: log, Layout: e.Layout, Database: db, Branch: branch}
}
