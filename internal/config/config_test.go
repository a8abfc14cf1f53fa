package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/paqmirror/internal/entity"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err, "a missing config file yields the defaults")

	require.Equal(t, LogLevelInfo, cfg.LogLevel)
	require.Equal(t, DefaultReferenceURL, cfg.Catalog.ReferenceURL)
	require.Equal(t, FallbackReferenceURL, cfg.Catalog.FallbackURL)
	require.Equal(t, ".cache", cfg.Catalog.CacheDir)
	require.Equal(t, entity.OSNameWin11, cfg.Host.OS)
	require.Equal(t, "24H2", cfg.Host.Version, "the host version defaults to a supported one")
	require.Equal(t, "64", cfg.Host.Bitness)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `log_level: debug
catalog:
  reference_url: https://mirror.example.com/softpaq
  cache_dir: /var/cache/paqmirror
  offline: true
download:
  retry_delay_seconds: 5
host:
  os: win10
  version: 22h2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, LogLevelDebug, cfg.LogLevel)
	require.Equal(t, "https://mirror.example.com/softpaq", cfg.Catalog.ReferenceURL)
	require.Equal(t, "/var/cache/paqmirror", cfg.Catalog.CacheDir)
	require.True(t, cfg.Catalog.Offline)
	require.Equal(t, 5*time.Second, cfg.Download.RetryDelay())
	require.Equal(t, entity.OSSpec{Name: "win10", Version: "22H2"}, cfg.RunningOS())
}

func TestHostVersionDefaultsPerOS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("host:\n  os: win10\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, entity.OSSpec{Name: "win10", Version: "22H2"}, cfg.RunningOS())
}

func TestLoadBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [broken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("PAQMIRROR_LOG_LEVEL", "warn")
	t.Setenv("PAQMIRROR_CACHE_DIR", "/tmp/cache")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	require.Equal(t, LogLevelWarn, cfg.LogLevel)
	require.Equal(t, "/tmp/cache", cfg.Catalog.CacheDir)
}
