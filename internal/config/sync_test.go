package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSyncConfig(t *testing.T) {
	require.NoError(t, validateSyncConfig(DefaultSyncConfig()))

	bad := DefaultSyncConfig()
	bad.TailWindowDays = 120
	assert.Error(t, validateSyncConfig(bad))

	bad = DefaultSyncConfig()
	bad.ChunkDays = 0
	assert.Error(t, validateSyncConfig(bad))

	bad = DefaultSyncConfig()
	bad.DemographicsPeriods = []int{7, -1}
	assert.Error(t, validateSyncConfig(bad))
}

func TestNewSyncConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	body := []byte("sync:\n  retentionDays: 60\n  tailWindowDays: 5\n  chunkDays: 15\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync.yml"), body, 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	holder, err := NewSyncConfigHolder()
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 60, cfg.RetentionDays)
	assert.Equal(t, 5, cfg.TailWindowDays)
	assert.Equal(t, 15, cfg.ChunkDays)
	assert.Equal(t, 500, cfg.InsightsPageLimit)
	assert.Equal(t, []int{3, 7, 14, 30, 90}, cfg.DemographicsPeriods)
}

func chdirTemp(t *testing.T, syncYML string) {
	t.Helper()
	dir := t.TempDir()
	if syncYML != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sync.yml"), []byte(syncYML), 0o600))
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestNewSyncConfigHolderPartialFileKeepsDefaults(t *testing.T) {
	chdirTemp(t, "sync:\n  tailWindowDays: 5\n")

	holder, err := NewSyncConfigHolder()
	require.NoError(t, err)

	want := DefaultSyncConfig()
	want.TailWindowDays = 5
	assert.Equal(t, want, holder.Get())
}

func TestNewSyncConfigHolderEnvOverrides(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("INSIGHTSYNC_SYNC_RETENTIONDAYS", "60")
	t.Setenv("INSIGHTSYNC_SYNC_DEMOGRAPHICSPERIODS", "7, 30")

	holder, err := NewSyncConfigHolder()
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 60, cfg.RetentionDays)
	assert.Equal(t, 3, cfg.TailWindowDays)
	assert.Equal(t, []int{7, 30}, cfg.DemographicsPeriods)
}

func TestNewSyncConfigHolderEnvBeatsFile(t *testing.T) {
	chdirTemp(t, "sync:\n  chunkDays: 15\n")
	t.Setenv("INSIGHTSYNC_SYNC_CHUNKDAYS", "10")

	holder, err := NewSyncConfigHolder()
	require.NoError(t, err)
	assert.Equal(t, 10, holder.Get().ChunkDays)
}

func TestNewSyncConfigHolderRejectsBadPeriods(t *testing.T) {
	chdirTemp(t, "")
	t.Setenv("INSIGHTSYNC_SYNC_DEMOGRAPHICSPERIODS", "7,x")

	_, err := NewSyncConfigHolder()
	assert.Error(t, err)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *SyncConfigHolder
	assert.Equal(t, DefaultSyncConfig(), holder.Get())
}

func TestLoadNormalizesStorageMode(t *testing.T) {
	t.Setenv("STORAGE_MODE", " R2 ")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	assert.Equal(t, StorageModeR2, cfg.Storage.Mode)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, "v23.0", cfg.Provider.APIVersion)
}
