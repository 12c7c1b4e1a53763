package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/model"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.WebRoot = filepath.Join(root, "www")
	cfg.SitesAvailable = filepath.Join(root, "apache2", "sites-available")
	cfg.SitesEnabled = filepath.Join(root, "apache2", "sites-enabled")
	cfg.ApacheLogDir = filepath.Join(root, "log")
	cfg.HostsFile = filepath.Join(root, "hosts")
	cfg.LetsEncryptDir = filepath.Join(root, "letsencrypt")
	cfg.WebOwner = ""
	for _, dir := range []string{cfg.WebRoot, cfg.SitesAvailable, cfg.SitesEnabled, cfg.ApacheLogDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return cfg
}

func testSite(cfg *config.Config, domain string) model.Site {
	return model.Site{
		Domain:  domain,
		DocRoot: filepath.Join(cfg.WebRoot, domain),
		DBName:  "shop_db",
		DBUser:  "shop_user",
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
