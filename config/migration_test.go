package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithMigration(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("empty path returns nil", func(t *testing.T) {
		cfg := NewConfig()
		if err := cfg.LoadWithMigration(""); err != nil {
			t.Errorf("expected nil for empty path: %v", err)
		}
	})

	t.Run("nonexistent file errors", func(t *testing.T) {
		cfg := NewConfig()
		if err := cfg.LoadWithMigration(filepath.Join(tmpDir, "nope.json")); err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("directory path errors", func(t *testing.T) {
		cfg := NewConfig()
		if err := cfg.LoadWithMigration(tmpDir); err == nil {
			t.Error("expected error for directory path")
		}
	})

	t.Run("v0 file migrates to current", func(t *testing.T) {
		path := filepath.Join(tmpDir, "v0.json")
		v0Json := `{
			"version": 0,
			"listen": {"host": "127.0.0.1", "port": 4318},
			"upstream": {"host": "172.18.0.3", "port": 4318},
			"relay": {"idle_timeout_ms": 5000, "chunk_size": 4096, "dial_timeout_ms": 0}
		}`
		os.WriteFile(path, []byte(v0Json), 0644)

		cfg := NewConfig()
		if err := cfg.LoadWithMigration(path); err != nil {
			t.Fatalf("LoadWithMigration failed: %v", err)
		}

		if cfg.Version != CurrentConfigVersion {
			t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
		}
		if cfg.Capture.Naming != NamingTimestamp {
			t.Errorf("v0 config should keep timestamp naming, got %q", cfg.Capture.Naming)
		}
		if cfg.Relay.DialTimeoutMs != 5000 {
			t.Errorf("dial timeout should inherit idle timeout, got %d", cfg.Relay.DialTimeoutMs)
		}
		if !cfg.Capture.Index {
			t.Error("migration should enable the capture index")
		}
	})

	t.Run("v0 file keeps explicit capture settings", func(t *testing.T) {
		path := filepath.Join(tmpDir, "v0-explicit.yaml")
		v0Yaml := `version: 0
relay:
  idle_timeout_ms: 5000
  dial_timeout_ms: 750
capture:
  naming: unique
  index: false
`
		os.WriteFile(path, []byte(v0Yaml), 0644)

		cfg := NewConfig()
		if err := cfg.LoadWithMigration(path); err != nil {
			t.Fatalf("LoadWithMigration failed: %v", err)
		}
		if cfg.Version != CurrentConfigVersion {
			t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
		}
		if cfg.Capture.Naming != NamingUnique {
			t.Errorf("naming = %q, want %q", cfg.Capture.Naming, NamingUnique)
		}
		if cfg.Capture.Index {
			t.Error("index: false was overridden")
		}
		if cfg.Relay.DialTimeoutMs != 750 {
			t.Errorf("dial timeout = %d, want 750", cfg.Relay.DialTimeoutMs)
		}
	})

	t.Run("unversioned file is current", func(t *testing.T) {
		path := filepath.Join(tmpDir, "handwritten.yaml")
		handYaml := `capture:
  naming: unique
  index: false
`
		os.WriteFile(path, []byte(handYaml), 0644)

		cfg := NewConfig()
		if err := cfg.LoadWithMigration(path); err != nil {
			t.Fatalf("LoadWithMigration failed: %v", err)
		}
		if cfg.Version != CurrentConfigVersion {
			t.Errorf("expected version %d, got %d", CurrentConfigVersion, cfg.Version)
		}
		if cfg.Capture.Naming != NamingUnique {
			t.Errorf("naming = %q, want %q", cfg.Capture.Naming, NamingUnique)
		}
		if cfg.Capture.Index {
			t.Error("index: false was overridden")
		}
	})

	t.Run("unversioned file without naming uses default", func(t *testing.T) {
		path := filepath.Join(tmpDir, "minimal.json")
		os.WriteFile(path, []byte(`{"listen": {"host": "127.0.0.1", "port": 9000}}`), 0644)

		cfg := NewConfig()
		if err := cfg.LoadWithMigration(path); err != nil {
			t.Fatalf("LoadWithMigration failed: %v", err)
		}
		if cfg.Capture.Naming != DefaultConfig.Capture.Naming {
			t.Errorf("naming = %q, want default %q", cfg.Capture.Naming, DefaultConfig.Capture.Naming)
		}
	})

	t.Run("future version errors", func(t *testing.T) {
		path := filepath.Join(tmpDir, "future.json")
		os.WriteFile(path, []byte(`{"version": 99}`), 0644)

		cfg := NewConfig()
		if err := cfg.LoadWithMigration(path); err == nil {
			t.Error("expected error for unknown future version")
		}
	})

	t.Run("current version skips migration", func(t *testing.T) {
		path := filepath.Join(tmpDir, "current.json")
		cfg := NewConfig()
		cfg.Capture.Naming = NamingUnique
		cfg.Capture.Index = false
		if err := cfg.SaveToFile(path); err != nil {
			t.Fatalf("SaveToFile failed: %v", err)
		}

		loaded := NewConfig()
		if err := loaded.LoadWithMigration(path); err != nil {
			t.Fatalf("LoadWithMigration failed: %v", err)
		}
		if loaded.Capture.Naming != NamingUnique {
			t.Errorf("naming changed without migration: %q", loaded.Capture.Naming)
		}
		if loaded.Capture.Index {
			t.Error("index flag changed without migration")
		}
	})
}
