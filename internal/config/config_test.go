package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vrd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
replica_id: 1
replicas:
  - 127.0.0.1:9001
  - 127.0.0.1:9002
  - 127.0.0.1:9003
view_change_idle_ticks: 6
`), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	require.Equal(t, uint64(1), cfg.ReplicaID)
	require.Len(t, cfg.Replicas, 3)
	require.Equal(t, 6, cfg.ViewChangeIdleTicks)
	// Untouched fields keep their defaults.
	require.Equal(t, "info", cfg.Logging.Level)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadRejectsEvenReplicaCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vrd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
replica_id: 0
replicas:
  - 127.0.0.1:9001
  - 127.0.0.1:9002
`), 0o644))

	_, err := Load(viper.New(), path)
	require.ErrorContains(t, err, "must be odd")
}

func TestLoadRejectsOutOfRangeReplicaID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vrd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
replica_id: 5
replicas:
  - 127.0.0.1:9001
`), 0o644))

	_, err := Load(viper.New(), path)
	require.ErrorContains(t, err, "out of range")
}

func TestLoadRejectsMissingReplicas(t *testing.T) {
	_, err := Load(viper.New(), "")
	require.Error(t, err)
}
