package cinchpath

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := New("/tmp/proj")

	cases := []struct {
		name string
		got  string
		want string
	}{
		{"CinchDir", l.CinchDir(), "/tmp/proj/.cinchdb"},
		{"ConfigFile", l.ConfigFile(), "/tmp/proj/.cinchdb/config.toml"},
		{"MetadataDB", l.MetadataDB(), "/tmp/proj/.cinchdb/metadata.db"},
		{"DatabaseDir", l.DatabaseDir("main"), "/tmp/proj/.cinchdb/databases/main"},
		{"BranchDir", l.BranchDir("main", "feature"), "/tmp/proj/.cinchdb/databases/main/branches/feature"},
		{"BranchMetadataFile", l.BranchMetadataFile("main", "feature"), "/tmp/proj/.cinchdb/databases/main/branches/feature/metadata.json"},
		{"ChangesFile", l.ChangesFile("main", "feature"), "/tmp/proj/.cinchdb/databases/main/branches/feature/changes.json"},
		{"TenantFile", l.TenantFile("main", "feature", "t1"), "/tmp/proj/.cinchdb/databases/main/branches/feature/tenants/t1.db"},
	}

	for _, c := range cases {
		if c.got != filepath.FromSlash(c.want) {
			t.Errorf("%s: got %q, want %q", c.name, c.got, c.want)
		}
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	if l.Exists() {
		t.Fatal("fresh temp dir should not report an existing project")
	}
	if err := os.MkdirAll(l.CinchDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if !l.Exists() {
		t.Fatal("expected Exists to be true after creating .cinchdb")
	}
}
