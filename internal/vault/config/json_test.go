package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"vault_dir":     "/vaults",
		"util_bin":      "fakeutil",
		"max_store_ops": 7,
		"cache_max_age": "10m",
		"util_timeout":  "5s",
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "/vaults", cfg.VaultDir)
		assert.Equal(t, "fakeutil", cfg.UtilBin)
		assert.Equal(t, 7, cfg.MaxStoreOps)
		assert.Equal(t, 10*time.Minute, cfg.CacheMaxAge)
		assert.Equal(t, 5*time.Second, cfg.UtilTimeout)
	})

	t.Run("missing fields keep current values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{
			"util_bin": "otherutil",
		})
		os.Args = []string{"testbin", "-config", partial}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "otherutil", cfg.UtilBin)
		assert.Equal(t, "./containers", cfg.VaultDir)
		assert.Equal(t, time.Hour, cfg.CacheMaxAge)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{VaultDir: "/keep", UtilTimeout: 42 * time.Second}
		parseJson(cfg)

		assert.Equal(t, "/keep", cfg.VaultDir)
		assert.Equal(t, 42*time.Second, cfg.UtilTimeout)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
