// Package fanout applies a committed change to every tenant of a
// branch (spec.md 4.G), with bounded parallelism via
// golang.org/x/sync/errgroup — the same package steveyegge-beads
// depends on directly for bounded-concurrency work.
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/cinchdb/cinchdb/internal/changelog"
	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/pool"
	"github.com/cinchdb/cinchdb/internal/ulid"
)

// DefaultParallelism is the default bounded concurrency for fanout,
// per spec.md 4.G.
const DefaultParallelism = 4

// Builder translates a committed Change into the physical SQL
// statement(s) that apply it, and is supplied by the schema managers
// (4.F) to keep this package schema-agnostic.
type Builder func(change model.Change) ([]string, error)

// Deps bundles the collaborators fanout needs; callers (branch
// operations, schema managers) construct one per branch.
type Deps struct {
	Pool        *pool.Pool
	Meta        *metadatastore.Store
	Log         *changelog.Log
	Layout      *cinchpath.Layout
	Database    string
	Branch      string
	Parallelism int
}

// Apply fans change out to every tenant of Database/Branch. Tenants
// behind the log head first replay intermediate changes, then apply
// change itself. A failure on one tenant marks it divergent and
// continues with the rest; change remains committed regardless.
func Apply(ctx context.Context, d Deps, change model.Change, build Builder) error {
	tenants, err := d.Meta.ListTenants(d.Database, d.Branch)
	if err != nil {
		return cincherr.Wrap("fanout.Apply", err)
	}

	parallelism := d.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for _, tenant := range tenants {
		tenant := tenant
		g.Go(func() error {
			if gctx.Err() != nil {
				// Cooperative cancellation between tenants, per spec.md §5.
				return nil
			}
			if err := applyToTenant(gctx, d, tenant, change, build); err != nil {
				_ = d.Meta.SetTenantState(d.Database, d.Branch, tenant, model.TenantDivergent)
				// Fanout failures are per-tenant recoverable; do not
				// abort sibling tenants or the overall change.
			}
			return nil
		})
	}
	return g.Wait()
}

func applyToTenant(ctx context.Context, d Deps, tenant string, change model.Change, build Builder) error {
	path := d.Layout.TenantFile(d.Database, d.Branch, tenant)
	h, err := d.Pool.Borrow(ctx, path, nil)
	if err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}
	defer h.Release()

	current, err := d.Meta.GetSchemaVersion(d.Database, d.Branch, tenant)
	if err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}

	var currentID ulid.ID
	if current != "" {
		currentID, err = ulid.Parse(current)
		if err != nil {
			return cincherr.Wrap("fanout.applyToTenant", err)
		}
	}

	// Replay any intermediate changes the tenant missed (newly created
	// or previously-divergent tenants catch up here), then apply change.
	pending, err := d.Log.Since(currentID)
	if err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}

	// database/sql's BeginTx opens its own (DEFERRED) transaction before
	// any statement runs, so a literal "BEGIN IMMEDIATE" issued against
	// a *sql.Tx is a doomed nested BEGIN. Per spec.md 4.G.b and the §5
	// single-writer-per-tenant contract, IMMEDIATE must be the
	// transaction opener itself: pin a single *sql.Conn from the pooled
	// *sql.DB (so BEGIN/COMMIT land on the same SQLite connection) and
	// issue it raw, managing COMMIT/ROLLBACK by hand.
	conn, err := h.DB.Conn(ctx)
	if err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}

	for _, pc := range pending {
		stmts, err := build(pc)
		if err != nil {
			conn.ExecContext(ctx, "ROLLBACK")
			return cincherr.Wrap("fanout.applyToTenant", err)
		}
		for _, stmt := range stmts {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				conn.ExecContext(ctx, "ROLLBACK")
				return cincherr.Wrap("fanout.applyToTenant", err)
			}
		}
		if err := setSchemaVersionTx(ctx, d, tenant, pc.ID.String()); err != nil {
			conn.ExecContext(ctx, "ROLLBACK")
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}

	// The tenant's schema fully reconverged: a prior divergent mark (from
	// an earlier failed fanout) no longer applies (spec.md Tenant state
	// machine, divergent -> ready via replay).
	if err := d.Meta.SetTenantState(d.Database, d.Branch, tenant, model.TenantReady); err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}

	if err := d.Log.MarkApplied(change.ID, tenant); err != nil {
		return cincherr.Wrap("fanout.applyToTenant", err)
	}
	return nil
}

func setSchemaVersionTx(ctx context.Context, d Deps, tenant, version string) error {
	if err := d.Meta.SetSchemaVersion(d.Database, d.Branch, tenant, version); err != nil {
		return cincherr.Wrap("fanout.setSchemaVersionTx", err)
	}
	return nil
}
