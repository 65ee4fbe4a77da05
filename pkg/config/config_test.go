package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 50, cfg.ChunkSize)
	assert.Equal(t, 90*24*time.Hour, cfg.GracePeriod())
	assert.Equal(t, 730*24*time.Hour, cfg.UnmaintainedAfter())
	assert.Equal(t, 24*time.Hour, cfg.PositiveTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.NegativeTTL())
	assert.Equal(t, 5*time.Second, cfg.ProbeTimeout())
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Contains(t, cfg.License.Allowed, "MIT")
	assert.InDelta(t, 1.0, cfg.Score.Weights.Security+cfg.Score.Weights.Freshness+
		cfg.Score.Weights.Compatibility+cfg.Score.Weights.License, 0.001)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.ChunkSize)
}

func TestLoadConfig_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigName)
	content := `
chunkSize: 10
gracePeriodDays: 30
license:
  allowed: [MIT]
  project: GPL-3.0
score:
  weights:
    security: 0.7
    freshness: 0.1
    compatibility: 0.1
    license: 0.1
ignorePackages: [leftpad]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.ChunkSize)
	assert.Equal(t, 30*24*time.Hour, cfg.GracePeriod())
	assert.Equal(t, []string{"MIT"}, cfg.License.Allowed)
	assert.Equal(t, "GPL-3.0", cfg.License.Project)
	assert.Equal(t, 0.7, cfg.Score.Weights.Security)
	assert.True(t, cfg.IsPackageIgnored("leftpad"))
	assert.False(t, cfg.IsPackageIgnored("lodash"))
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigName)
	require.NoError(t, os.WriteFile(path, []byte("chunkSize: [not a number"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestFindAndLoadConfig_SearchesParents(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, DefaultConfigName), []byte("chunkSize: 5"), 0o644))

	cfg, err := FindAndLoadConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ChunkSize)
}
