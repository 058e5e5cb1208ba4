// Package config reads and writes the project-level config.toml: the
// active database/branch selection and the API key table the HTTP
// layer (an external collaborator) consults. Defaults are grounded on
// original_source/tests/unit/test_config.py.
package config

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/cinchdb/cinchdb/internal/cinchpath"
	"github.com/cinchdb/cinchdb/internal/cincherr"
)

// Config is the parsed contents of config.toml.
type Config struct {
	ActiveDatabase string            `toml:"active_database"`
	ActiveBranch   string            `toml:"active_branch"`
	APIKeys        map[string]string `toml:"api_keys"`
}

// Default returns the configuration a freshly initialized project gets.
func Default() *Config {
	return &Config{
		ActiveDatabase: "main",
		ActiveBranch:   "main",
		APIKeys:        map[string]string{},
	}
}

// Load reads config.toml from the layout's project root.
func Load(layout *cinchpath.Layout) (*Config, error) {
	path := layout.ConfigFile()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, cincherr.New(cincherr.NotFound, "config.Load", "project not initialized: "+path)
		}
		return nil, cincherr.Wrap("config.Load", err)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, cincherr.Wrap("config.Load", err)
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = map[string]string{}
	}
	return &cfg, nil
}

// Save writes cfg to config.toml, creating the .cinchdb directory if
// it does not already exist.
func Save(layout *cinchpath.Layout, cfg *Config) error {
	if err := os.MkdirAll(layout.CinchDir(), 0o755); err != nil {
		return cincherr.Wrap("config.Save", err)
	}

	f, err := os.Create(layout.ConfigFile())
	if err != nil {
		return cincherr.Wrap("config.Save", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return cincherr.Wrap("config.Save", err)
	}
	return nil
}
