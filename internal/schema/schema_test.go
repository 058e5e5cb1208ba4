package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cinchdb/cinchdb/internal/changelog"
	"github.com/cinchdb/cinchdb/internal/cincherr"
	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/metadatastore"
	"github.com/cinchdb/cinchdb/internal/model"
	"github.com/cinchdb/cinchdb/internal/pool"
)

func newTestManager(t *testing.T) *Manager {
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
	if err := meta.RegisterTenant("app", "main", "main"); err != nil {
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

	return &Manager{
		Pool:     p,
		Meta:     meta,
		Log:      log,
		Layout:   layout,
		Database: "app",
		Branch:   "main",
	}
}

func queryRow(t *testing.T, m *Manager, query string) int {
	t.Helper()
	h, err := m.Pool.Borrow(context.Background(), m.mainTenantPath(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	var n int
	if err := h.DB.QueryRow(query).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCreateTableAddsImplicitColumns(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: false, Default: strPtr("")}})
	if err != nil {
		t.Fatal(err)
	}

	n := queryRow(t, m, `SELECT COUNT(*) FROM pragma_table_info('users')`)
	if n != 4 {
		t.Fatalf("expected 4 columns (id, created_at, updated_at, email), got %d", n)
	}
}

func TestCreateTableRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: true}}); err != nil {
		t.Fatal(err)
	}
	_, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: true}})
	if !cincherr.Is(err, cincherr.AlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestCreateTableRejectsReservedColumnName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateTable(ctx, "users", []Column{{Name: "id", Type: model.TypeText, Nullable: true}})
	if !cincherr.Is(err, cincherr.SQLValidation) {
		t.Fatalf("expected SQLValidation, got %v", err)
	}
}

func TestDropTableRefusesLastTable(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: true}}); err != nil {
		t.Fatal(err)
	}
	_, err := m.DropTable(ctx, "users")
	if !cincherr.Is(err, cincherr.SchemaConflict) {
		t.Fatalf("expected SchemaConflict, got %v", err)
	}
}

func TestAddColumnFanoutToAllTenants(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: true}}); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Dir(m.Layout.TenantFile("app", "main", "t1")), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := m.Meta.RegisterTenant("app", "main", "t1"); err != nil {
		t.Fatal(err)
	}
	// Leave t1's file schema-empty: fanout must replay the prior
	// create_table change before applying add_column.

	if _, err := m.AddColumn(ctx, "users", Column{Name: "age", Type: model.TypeInteger, Nullable: true}); err != nil {
		t.Fatal(err)
	}

	h2, err := m.Pool.Borrow(ctx, m.Layout.TenantFile("app", "main", "t1"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Release()
	var n int
	if err := h2.DB.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'age'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected fanout to add column 'age' to tenant t1, got count %d", n)
	}
}

func TestDropColumnRefusesSystemColumn(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: true}}); err != nil {
		t.Fatal(err)
	}
	_, err := m.DropColumn(ctx, "users", "created_at")
	if !cincherr.Is(err, cincherr.SchemaConflict) {
		t.Fatalf("expected SchemaConflict, got %v", err)
	}
}

func TestCreateViewRejectsWriteSQL(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: true}}); err != nil {
		t.Fatal(err)
	}
	_, err := m.CreateView(ctx, "active_users", "DELETE FROM users")
	if !cincherr.Is(err, cincherr.SQLValidation) {
		t.Fatalf("expected SQLValidation, got %v", err)
	}
}

func TestCreateAndDropView(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	if _, err := m.CreateTable(ctx, "users", []Column{{Name: "email", Type: model.TypeText, Nullable: true}}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateView(ctx, "all_users", "SELECT * FROM users"); err != nil {
		t.Fatal(err)
	}
	n := queryRow(t, m, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND name = 'all_users'`)
	if n != 1 {
		t.Fatalf("expected view to exist, got count %d", n)
	}

	if _, err := m.DropView(ctx, "all_users"); err != nil {
		t.Fatal(err)
	}
	n = queryRow(t, m, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'view' AND name = 'all_users'`)
	if n != 0 {
		t.Fatalf("expected view to be gone, got count %d", n)
	}
}

func strPtr(s string) *string { return &s }
