package maintenance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
)

func init() {
	os.Setenv("CINCHDB_SKIP_MAINTENANCE_DELAY", "1")
}

func newGate(t *testing.T) (*Gate, *metadatastore.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := metadatastore.Open(filepath.Join(dir, "metadata.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func TestCheckPassesWhenNotInMaintenance(t *testing.T) {
	g, _ := newGate(t)
	if err := g.Check("schema.CreateTable", "main", "main"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckBlocksDatabaseMaintenance(t *testing.T) {
	g, _ := newGate(t)
	if err := g.Enter(model.ScopeDatabase, "main", "upgrading"); err != nil {
		t.Fatal(err)
	}
	err := g.Check("schema.CreateTable", "main", "")
	if !cincherr.Is(err, cincherr.Maintenance) {
		t.Fatalf("expected MaintenanceError, got %v", err)
	}
}

func TestCheckBlocksBranchMaintenance(t *testing.T) {
	g, _ := newGate(t)
	if err := g.Enter(model.ScopeBranch, BranchKey("main", "feature"), "branching"); err != nil {
		t.Fatal(err)
	}
	err := g.Check("schema.AddColumn", "main", "feature")
	if !cincherr.Is(err, cincherr.Maintenance) {
		t.Fatalf("expected MaintenanceError, got %v", err)
	}
	// A different branch is unaffected.
	if err := g.Check("schema.AddColumn", "main", "other"); err != nil {
		t.Fatalf("unexpected error for unrelated branch: %v", err)
	}
}

func TestExitRestoresOperation(t *testing.T) {
	g, _ := newGate(t)
	if err := g.Enter(model.ScopeDatabase, "main", "upgrading"); err != nil {
		t.Fatal(err)
	}
	if err := g.Exit(model.ScopeDatabase, "main"); err != nil {
		t.Fatal(err)
	}
	if err := g.Check("schema.CreateTable", "main", ""); err != nil {
		t.Fatalf("expected maintenance exit to restore operation, got %v", err)
	}
}

func TestExitSafeWhenAbsent(t *testing.T) {
	g, _ := newGate(t)
	if err := g.Exit(model.ScopeDatabase, "never-entered"); err != nil {
		t.Fatalf("expected no error exiting absent maintenance, got %v", err)
	}
}

func TestNilStoreFailsOpen(t *testing.T) {
	g := New(nil)
	if err := g.Check("schema.CreateTable", "main", "main"); err != nil {
		t.Fatalf("expected nil-store gate to fail open, got %v", err)
	}
}
