package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/webauthnai/DogTagClient-sub000/internal/flagx"
	"github.com/webauthnai/DogTagClient-sub000/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "30s"
// or as integer nanoseconds.
type JsonConfig struct {
	VaultDir       string         `json:"vault_dir"`
	LocalStorePath string         `json:"local_store_path"`
	UtilBin        string         `json:"util_bin"`
	MountRoot      string         `json:"mount_root"`
	ContainerExt   string         `json:"container_ext"`
	MaxStoreOps    int            `json:"max_store_ops"`
	CacheMaxAge    timex.Duration `json:"cache_max_age"`
	UtilTimeout    timex.Duration `json:"util_timeout"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when absent, nothing is loaded.
// Fields missing from the file keep their current values. Panics on read or
// unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.VaultDir != "" {
		cfg.VaultDir = jc.VaultDir
	}
	if jc.LocalStorePath != "" {
		cfg.LocalStorePath = jc.LocalStorePath
	}
	if jc.UtilBin != "" {
		cfg.UtilBin = jc.UtilBin
	}
	if jc.MountRoot != "" {
		cfg.MountRoot = jc.MountRoot
	}
	if jc.ContainerExt != "" {
		cfg.ContainerExt = jc.ContainerExt
	}
	if jc.MaxStoreOps > 0 {
		cfg.MaxStoreOps = jc.MaxStoreOps
	}
	if jc.CacheMaxAge.Duration > 0 {
		cfg.CacheMaxAge = time.Duration(jc.CacheMaxAge.Duration)
	}
	if jc.UtilTimeout.Duration > 0 {
		cfg.UtilTimeout = time.Duration(jc.UtilTimeout.Duration)
	}
}
