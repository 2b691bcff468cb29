// Package config assembles runtime settings for the vault CLI from three
// layered sources: built-in defaults, an optional JSON file, and
// command-line flags. Later sources take precedence.
package config

import "time"

// Config holds the runtime settings of the vault subsystem.
//
// Units: CacheMaxAge and UtilTimeout are time.Durations; MaxStoreOps is the
// number of concurrent embedded-store opens admitted by the limiter.
type Config struct {
	// VaultDir is the managed directory holding container files and the
	// metadata cache.
	VaultDir string

	// LocalStorePath is the active local credential database.
	LocalStorePath string

	// UtilBin is the disk-image utility binary.
	UtilBin string

	// MountRoot is the path prefix mounted volumes appear under.
	MountRoot string

	// ContainerExt is the file extension of container files.
	ContainerExt string

	// MaxStoreOps bounds concurrent embedded-store opens.
	MaxStoreOps int

	// CacheMaxAge is the staleness threshold for cached credential counts.
	CacheMaxAge time.Duration

	// UtilTimeout bounds every disk-image utility invocation.
	UtilTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.VaultDir = "./containers"
	c.LocalStorePath = "./local.db"
	c.UtilBin = "hdiutil"
	c.MountRoot = "/Volumes/"
	c.ContainerExt = ".dmg"
	c.MaxStoreOps = 3
	c.CacheMaxAge = time.Hour
	c.UtilTimeout = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
