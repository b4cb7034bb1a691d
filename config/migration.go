package config

import (
	"encoding/json"
	"fmt"

	"github.com/asmodhias/capproxy/log"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// MigrationFunc upgrades c by one version. keys holds the dotted paths the
// file actually set; a migration only fills settings missing from it.
type MigrationFunc func(c *Config, keys fileKeys) error

var (
	CurrentConfigVersion = len(migrationRegistry)
	MinSupportedVersion  = 0
)

var migrationRegistry = map[int]MigrationFunc{
	0: migrateV0to1, // keep timestamp-only artifact names
	1: migrateV1to2, // capture index, dial timeout
}

// fileKeys is the set of dotted key paths present in a config document,
// e.g. "capture.naming".
type fileKeys map[string]bool

func (k fileKeys) has(key string) bool { return k[key] }

// Migration: v0 -> v1. v0 files expect the bare <prefix><unix><ext> names.
func migrateV0to1(c *Config, keys fileKeys) error {
	if !keys.has("capture.naming") {
		log.Tracef("Migration v0->v1: Pinning timestamp-only capture naming")
		c.Capture.Naming = NamingTimestamp
	}
	return nil
}

// Migration: v1 -> v2 (add capture index and separate dial timeout)
func migrateV1to2(c *Config, keys fileKeys) error {
	if !keys.has("capture.index") {
		log.Tracef("Migration v1->v2: Enabling capture index")
		c.Capture.Index = DefaultConfig.Capture.Index
	}
	if !keys.has("relay.dial_timeout_ms") || c.Relay.DialTimeoutMs <= 0 {
		log.Tracef("Migration v1->v2: Dial timeout follows idle timeout")
		c.Relay.DialTimeoutMs = c.Relay.IdleTimeoutMs
	}
	return nil
}

func (c *Config) LoadWithMigration(path string) error {
	data, err := readConfigFile(path)
	if err != nil || data == nil {
		return err
	}

	keys, err := documentKeys(path, data)
	if err != nil {
		return log.Errorf("failed to parse config file: %v", err)
	}
	if err := c.decode(path, data); err != nil {
		return err
	}

	// Hand-written files without a version are taken as current.
	if !keys.has("version") {
		c.Version = CurrentConfigVersion
		return nil
	}

	if c.Version < MinSupportedVersion {
		return log.Errorf("config version %d is no longer supported", c.Version)
	}
	if c.Version > CurrentConfigVersion {
		return log.Errorf("config version %d is newer than supported version %d", c.Version, CurrentConfigVersion)
	}

	if c.Version < CurrentConfigVersion {
		log.Infof("Config version %d is older than current version %d, migrating",
			c.Version, CurrentConfigVersion)
		if err := c.applyMigrations(c.Version, keys); err != nil {
			return err
		}
	}

	return nil
}

// applyMigrations applies all migrations from startVersion to CurrentConfigVersion
func (c *Config) applyMigrations(startVersion int, keys fileKeys) error {
	for v := startVersion; v < CurrentConfigVersion; v++ {
		migrationFunc, exists := migrationRegistry[v]
		if !exists {
			return fmt.Errorf("no migration path from version %d to %d", v, v+1)
		}

		log.Infof("Applying migration: v%d -> v%d", v, v+1)
		if err := migrationFunc(c, keys); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
		c.Version = v + 1
	}
	return nil
}

// documentKeys decodes data generically and collects every key path it sets.
func documentKeys(path string, data []byte) (fileKeys, error) {
	var doc map[string]any
	var err error
	if isYAML(path) {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(jsonc.ToJSON(data), &doc)
	}
	if err != nil {
		return nil, err
	}

	keys := fileKeys{}
	collectKeys(keys, "", doc)
	return keys, nil
}

func collectKeys(keys fileKeys, prefix string, doc map[string]any) {
	for k, v := range doc {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		keys[key] = true
		if sub, ok := v.(map[string]any); ok {
			collectKeys(keys, key, sub)
		}
	}
}
