package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "./containers", c.VaultDir)
	assert.Equal(t, "./local.db", c.LocalStorePath)
	assert.Equal(t, "hdiutil", c.UtilBin)
	assert.Equal(t, "/Volumes/", c.MountRoot)
	assert.Equal(t, ".dmg", c.ContainerExt)
	assert.Equal(t, 3, c.MaxStoreOps)
	assert.Equal(t, time.Hour, c.CacheMaxAge)
	assert.Equal(t, 30*time.Second, c.UtilTimeout)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "hdiutil", cfg.UtilBin)
	assert.Equal(t, 3, cfg.MaxStoreOps)
}
