package fanout

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/cinchdb/cinchdb/internal/changelog"
	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/pool"
)

func newTestDeps(t *testing.T) (Deps, *metadatastore.Store) {
	t.Helper()
	dir := t.TempDir()
	layout := cinchpath.New(dir)

	if err := os.MkdirAll(layout.TenantsDir("app", "main"), 0o755); err != nil {
		t.Fatal(err)
	}
	meta, err := metadatastore.Open(layout.MetadataDB())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })
	if err := meta.RegisterDatabase("app"); err != nil {
		t.Fatal(err)
	}
	if err := meta.RegisterBranch("app", "main", ""); err != nil {
		t.Fatal(err)
	}
	if err := meta.RegisterTenant("app", "main", "t1"); err != nil {
		t.Fatal(err)
	}

	p, err := pool.New(4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.CloseAll)

	log := changelog.Open(layout.ChangesFile("app", "main"), layout.ChangesLockFile("app", "main"))
	if err := log.Init(); err != nil {
		t.Fatal(err)
	}

	return Deps{Pool: p, Meta: meta, Log: log, Layout: layout, Database: "app", Branch: "main"}, meta
}

// A tenant that fails one fanout attempt is marked divergent, but a
// subsequent successful fanout of the same change reconverges it to
// ready (Tenant state machine: divergent -> ready via replay).
func TestApplyRecoversTenantFromDivergentToReady(t *testing.T) {
	d, meta := newTestDeps(t)
	ctx := context.Background()

	change := model.NewChange(model.CreateTable, map[string]any{"name": "widgets"})
	if err := d.Log.Append(change); err != nil {
		t.Fatal(err)
	}

	failingBuild := func(model.Change) ([]string, error) {
		return nil, errors.New("simulated build failure")
	}
	if err := Apply(ctx, d, change, failingBuild); err != nil {
		t.Fatal(err)
	}

	state, err := meta.TenantState("app", "main", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if state != model.TenantDivergent {
		t.Fatalf("expected divergent after simulated failure, got %s", state)
	}

	succeedingBuild := func(model.Change) ([]string, error) {
		return []string{`CREATE TABLE widgets (id TEXT)`}, nil
	}
	if err := Apply(ctx, d, change, succeedingBuild); err != nil {
		t.Fatal(err)
	}

	state, err = meta.TenantState("app", "main", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if state != model.TenantReady {
		t.Fatalf("expected ready after recovery, got %s", state)
	}

	version, err := meta.GetSchemaVersion("app", "main", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if version != change.ID.String() {
		t.Fatalf("expected schema_version %s, got %s", change.ID.String(), version)
	}
}
