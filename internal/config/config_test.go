package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corekv.yaml")
	body := "pool_size: 128\nleaf_max: 7\nenable_cycle_detection: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 128, cfg.PoolSize)
	require.Equal(t, 7, cfg.LeafMax)
	require.False(t, cfg.EnableCycleDetection)
	// Fields absent from the file keep their defaults.
	require.Equal(t, 2, cfg.LRUK)
	require.Equal(t, 5, cfg.InternalMax)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
