package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/www", cfg.WebRoot)
	assert.Equal(t, "/etc/apache2/sites-available", cfg.SitesAvailable)
	assert.Equal(t, "/etc/hosts", cfg.HostsFile)
	assert.Equal(t, "127.0.0.1", cfg.HostsIP)
	assert.Equal(t, time.Second, cfg.LockPollInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Len(t, cfg.LockPaths, 3)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
web_root: /srv/www
hosts_ip: 127.0.1.1
lock_poll_interval: 250ms
cms_archive_url: s3://mirror/wordpress.tar.gz
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/www", cfg.WebRoot)
	assert.Equal(t, "127.0.1.1", cfg.HostsIP)
	assert.Equal(t, 250*time.Millisecond, cfg.LockPollInterval)
	assert.Equal(t, "s3://mirror/wordpress.tar.gz", cfg.CMSArchiveURL)
	// Untouched fields keep their defaults.
	assert.Equal(t, "/etc/hosts", cfg.HostsFile)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "web_root: /srv/www\n")
	t.Setenv("LAMPCTL_WEB_ROOT", "/data/www")
	t.Setenv("LAMPCTL_LOCK_CEILING", "600")
	t.Setenv("LAMPCTL_LOCK_PATHS", "/tmp/a:/tmp/b")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/www", cfg.WebRoot)
	assert.Equal(t, 10*time.Minute, cfg.LockCeiling)
	assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, cfg.LockPaths)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("LAMPCTL_CMS_TIMEOUT", "soon")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LAMPCTL_CMS_TIMEOUT")
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{WebRoot: "relative", InitSystem: "upstart"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web_root must be an absolute path")
	assert.Contains(t, err.Error(), "hosts_file is required")
	assert.Contains(t, err.Error(), "lock_paths must not be empty")
	assert.Contains(t, err.Error(), `init_system "upstart"`)
}
