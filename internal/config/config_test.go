package config

import (
	"testing"

	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/cincherr"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	layout := cinchpath.New(dir)

	cfg := Default()
	cfg.APIKeys["prod"] = "secret"

	if err := Save(layout, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(layout)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ActiveDatabase != "main" || loaded.ActiveBranch != "main" {
		t.Fatalf("unexpected defaults: %+v", loaded)
	}
	if loaded.APIKeys["prod"] != "secret" {
		t.Fatalf("expected api key to round trip, got %+v", loaded.APIKeys)
	}
}

func TestLoadMissingIsNotFound(t *testing.T) {
	dir := t.TempDir()
	layout := cinchpath.New(dir)

	_, err := Load(layout)
	if !cincherr.Is(err, cincherr.NotFound) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
}
