package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv(EnvHistoryDBPath, filepath.Join(t.TempDir(), "h.sqlite"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "adb", cfg.Transport.ADBPath)
	assert.Equal(t, "fastboot", cfg.Transport.FastbootPath)
	assert.Equal(t, 10*time.Minute, cfg.Transport.Timeout.Duration)
	assert.Equal(t, "/sdcard/DeviceAgent", cfg.Sequencer.BackupRoot)
	assert.Equal(t, 4, cfg.MaxParallel)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deviceagent.yaml")
	content := `
transport:
  adb_path: /opt/platform-tools/adb
  timeout: 90s
sequencer:
  backup_root: /sdcard/backups/
  gms_packages:
    - com.google.android.gms
history:
  disabled: true
max_parallel: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv(EnvFastbootPath, "/opt/platform-tools/fastboot")
	t.Setenv(EnvMaxParallel, "8")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/platform-tools/adb", cfg.Transport.ADBPath)
	assert.Equal(t, "/opt/platform-tools/fastboot", cfg.Transport.FastbootPath)
	assert.Equal(t, 90*time.Second, cfg.Transport.Timeout.Duration)
	assert.Equal(t, "/sdcard/backups", cfg.Sequencer.BackupRoot)
	assert.Equal(t, []string{"com.google.android.gms"}, cfg.Sequencer.GMSPackages)
	assert.True(t, cfg.History.Disabled)
	assert.Empty(t, cfg.History.DBPath)
	assert.Equal(t, 8, cfg.MaxParallel)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  timeout: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestTimeoutZeroDisablesBound(t *testing.T) {
	t.Setenv(EnvCommandTimeout, "0")
	t.Setenv(EnvHistoryDisable, "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Transport.Timeout.Duration)
}
