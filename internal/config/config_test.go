package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/config"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/approvals", cfg.NetworkRoot)
	assert.Equal(t, 1000, cfg.ArchiveCap)
	assert.Equal(t, "/mnt/approvals/projects", cfg.ProjectRoot)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/mnt/approvals", cfg.NetworkRoot)
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "network_root = \"/srv/approvals\"\narchive_cap = 500\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/approvals", cfg.NetworkRoot)
	assert.Equal(t, 500, cfg.ArchiveCap)
	assert.Equal(t, "/srv/approvals/projects", cfg.ProjectRoot, "derived roots follow the overridden network root")
}

func TestLoadEnvOverridesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("network_root = \"/srv/approvals\"\n"), 0o644))

	t.Setenv("APPROVAL_NETWORK_ROOT", "/env/approvals")
	t.Setenv("APPROVAL_MAX_OPEN_PER_USER", "5")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/approvals", cfg.NetworkRoot)
	assert.Equal(t, 5, cfg.MaxOpenSubmissionsPerUser)
}

func TestLoadValidatesArchiveCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("archive_cap = 0\n"), 0o644))

	_, err := config.Load(path)
	assert.Error(t, err)
}
