package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/execx"
	"github.com/edvin/lampctl/internal/model"
)

func newTestVhostDriver(t *testing.T) (*VhostDriver, *config.Config, *execx.Fake) {
	t.Helper()
	cfg := newTestConfig(t)
	runner := execx.NewFake("a2ensite", "a2dissite", "systemctl")
	svc := NewSystemdManager(zerolog.Nop(), runner)
	return NewVhostDriver(zerolog.Nop(), cfg, runner, svc), cfg, runner
}

func TestRenderVhost(t *testing.T) {
	out, err := RenderVhost(NewVhostParams("shop.test", "/var/www/shop", "/var/log/apache2"))
	require.NoError(t, err)

	assert.Contains(t, out, "<VirtualHost *:80>")
	assert.Contains(t, out, "ServerName shop.test\n")
	assert.Contains(t, out, "ServerAlias www.shop.test\n")
	assert.Contains(t, out, "DocumentRoot /var/www/shop\n")
	assert.Contains(t, out, "<Directory /var/www/shop>")
	assert.Contains(t, out, "ErrorLog /var/log/apache2/shop.test_error.log")
	assert.Contains(t, out, "CustomLog /var/log/apache2/shop.test_access.log combined")
}

func TestRenderVhost_NoAliasForWWW(t *testing.T) {
	out, err := RenderVhost(NewVhostParams("www.shop.test", "/var/www/shop", "/var/log/apache2"))
	require.NoError(t, err)
	assert.NotContains(t, out, "ServerAlias")
}

func TestVhostDriver_ApplyWritesAndEnables(t *testing.T) {
	d, cfg, runner := newTestVhostDriver(t)
	spec := Spec{Site: testSite(cfg, "shop.test")}

	res, err := d.Apply(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)

	content := readFile(t, filepath.Join(cfg.SitesAvailable, "shop.test.conf"))
	assert.Contains(t, content, "ServerName shop.test")
	assert.Contains(t, content, "DocumentRoot "+spec.Site.DocRoot)
	assert.Equal(t, []string{"a2ensite shop.test"}, runner.Commands())
}

func TestVhostDriver_ApplyRefusesExisting(t *testing.T) {
	d, cfg, runner := newTestVhostDriver(t)
	path := filepath.Join(cfg.SitesAvailable, "shop.test.conf")
	writeFile(t, path, "# hand written\n")

	res, err := d.Apply(context.Background(), Spec{Site: testSite(cfg, "shop.test")})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
	assert.Equal(t, model.StatusFailed, res.Status)
	assert.Equal(t, model.KindAlreadyExists, res.ErrorKind)
	assert.Equal(t, "# hand written\n", readFile(t, path))
	assert.Empty(t, runner.Calls)
}

func TestVhostDriver_DryRun(t *testing.T) {
	d, cfg, runner := newTestVhostDriver(t)
	spec := Spec{Site: testSite(cfg, "shop.test"), DryRun: true}

	res, err := d.Apply(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, res.Status)
	assert.Contains(t, res.Detail, "would write")
	assert.NoFileExists(t, filepath.Join(cfg.SitesAvailable, "shop.test.conf"))
	assert.Empty(t, runner.Calls)
}

func TestVhostDriver_RemoveDeletesBaseAndCompanion(t *testing.T) {
	d, cfg, runner := newTestVhostDriver(t)
	base := filepath.Join(cfg.SitesAvailable, "shop.test.conf")
	tls := filepath.Join(cfg.SitesAvailable, "shop.test-le-ssl.conf")
	writeFile(t, base, "ServerName shop.test\n")
	writeFile(t, tls, "ServerName shop.test\n")
	require.NoError(t, os.Symlink(base, filepath.Join(cfg.SitesEnabled, "shop.test.conf")))
	require.NoError(t, os.Symlink(tls, filepath.Join(cfg.SitesEnabled, "shop.test-le-ssl.conf")))

	res, err := d.Remove(context.Background(), Spec{Site: model.Site{Domain: "shop.test"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.NoFileExists(t, base)
	assert.NoFileExists(t, tls)
	assert.NoFileExists(t, filepath.Join(cfg.SitesEnabled, "shop.test.conf"))
	assert.Equal(t, []string{"a2dissite shop.test", "a2dissite shop.test-le-ssl"}, runner.Commands())
}

func TestVhostDriver_RemoveAbsentIsSkipped(t *testing.T) {
	d, _, _ := newTestVhostDriver(t)

	res, err := d.Remove(context.Background(), Spec{Site: model.Site{Domain: "shop.test"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, res.Status)
}

func TestVhostDriver_RemoveLogs(t *testing.T) {
	d, cfg, _ := newTestVhostDriver(t)
	writeFile(t, filepath.Join(cfg.ApacheLogDir, "shop.test_error.log"), "")
	writeFile(t, filepath.Join(cfg.ApacheLogDir, "shop.test_access.log.1"), "")
	writeFile(t, filepath.Join(cfg.ApacheLogDir, "other.test_error.log"), "")

	res, err := d.RemoveLogs(context.Background(), Spec{Site: model.Site{Domain: "shop.test"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.NoFileExists(t, filepath.Join(cfg.ApacheLogDir, "shop.test_error.log"))
	assert.NoFileExists(t, filepath.Join(cfg.ApacheLogDir, "shop.test_access.log.1"))
	assert.FileExists(t, filepath.Join(cfg.ApacheLogDir, "other.test_error.log"))
}

func TestVhostDriver_Reload(t *testing.T) {
	d, _, runner := newTestVhostDriver(t)

	res, err := d.Reload(context.Background(), Spec{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.Equal(t, []string{"systemctl reload apache2"}, runner.Commands())
}

func TestVhostDriver_ReloadDirect(t *testing.T) {
	cfg := newTestConfig(t)
	runner := execx.NewFake()
	d := NewVhostDriver(zerolog.Nop(), cfg, runner, NewServiceManager(zerolog.Nop(), runner, config.InitDirect))

	_, err := d.Reload(context.Background(), Spec{})
	require.NoError(t, err)
	assert.Equal(t, []string{"apachectl graceful"}, runner.Commands())
}

func TestVhostDriver_ReloadFallsBackToRestart(t *testing.T) {
	d, _, runner := newTestVhostDriver(t)
	runner.Handler = func(cmd execx.Command) (execx.Result, error) {
		if cmd.Name == "systemctl" && cmd.Args[0] == "reload" {
			return execx.Result{Output: []byte("apache2.service is not active, cannot reload.")}, errors.New("exit status 1")
		}
		return execx.Result{}, nil
	}

	res, err := d.Reload(context.Background(), Spec{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.Contains(t, res.Detail, "restarted")
	assert.Equal(t, []string{"systemctl reload apache2", "systemctl restart apache2"}, runner.Commands())
}

func TestVhostDriver_ReloadAndRestartFail(t *testing.T) {
	d, _, runner := newTestVhostDriver(t)
	runner.Handler = func(execx.Command) (execx.Result, error) {
		return execx.Result{}, errors.New("exit status 1")
	}

	res, err := d.Reload(context.Background(), Spec{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDriverFailure)
	assert.Equal(t, model.StatusFailed, res.Status)
}

func TestVhostDriver_ListGroupsCompanion(t *testing.T) {
	d, cfg, _ := newTestVhostDriver(t)
	docRoot := filepath.Join(cfg.WebRoot, "shop")
	writeFile(t, filepath.Join(docRoot, "wp-content", ".keep"), "")
	writeFile(t, filepath.Join(docRoot, "wp-includes", ".keep"), "")
	writeFile(t, filepath.Join(docRoot, "wp-config.php"), "<?php\n")

	base, err := RenderVhost(NewVhostParams("shop.test", docRoot, cfg.ApacheLogDir))
	require.NoError(t, err)
	writeFile(t, filepath.Join(cfg.SitesAvailable, "shop.test.conf"), base)
	writeFile(t, filepath.Join(cfg.SitesAvailable, "shop.test-le-ssl.conf"),
		"<IfModule mod_ssl.c>\n<VirtualHost *:443>\n    ServerName shop.test\n    DocumentRoot "+docRoot+"\n</VirtualHost>\n</IfModule>\n")
	writeFile(t, filepath.Join(cfg.SitesAvailable, "blog.test.conf"),
		"<VirtualHost *:80>\n  ServerName blog.test\n  DocumentRoot /srv/blog\n</VirtualHost>\n")

	sites, err := d.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)

	assert.Equal(t, "blog.test", sites[0].Domain)
	assert.Equal(t, "/srv/blog", sites[0].DocRoot)
	assert.False(t, sites[0].SSL)
	assert.False(t, sites[0].CMS)

	assert.Equal(t, "shop.test", sites[1].Domain)
	assert.Equal(t, docRoot, sites[1].DocRoot)
	assert.Equal(t, filepath.Join(cfg.SitesAvailable, "shop.test.conf"), sites[1].VhostPath)
	assert.True(t, sites[1].SSL)
	assert.True(t, sites[1].CMS)
}

func TestVhostDriver_ListRedirectMeansSSL(t *testing.T) {
	d, cfg, _ := newTestVhostDriver(t)
	writeFile(t, filepath.Join(cfg.SitesAvailable, "shop.test.conf"), `<VirtualHost *:80>
    ServerName shop.test
    DocumentRoot /var/www/shop
    RewriteEngine on
    RewriteCond %{SERVER_NAME} =shop.test
    RewriteRule ^ https://%{SERVER_NAME}%{REQUEST_URI} [END,NE,R=permanent]
</VirtualHost>
`)
	writeFile(t, filepath.Join(cfg.SitesAvailable, "plain.test.conf"), `<VirtualHost *:80>
    ServerName plain.test
    DocumentRoot /var/www/plain
    # see http://example.com for docs
</VirtualHost>
`)

	sites, err := d.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "plain.test", sites[0].Domain)
	assert.False(t, sites[0].SSL)
	assert.Equal(t, "shop.test", sites[1].Domain)
	assert.True(t, sites[1].SSL)
}

func TestVhostDriver_ListFirstOccurrenceWins(t *testing.T) {
	d, cfg, _ := newTestVhostDriver(t)
	writeFile(t, filepath.Join(cfg.SitesAvailable, "a-shop.conf"), "ServerName shop.test\nDocumentRoot /var/www/first\n")
	writeFile(t, filepath.Join(cfg.SitesAvailable, "b-shop.conf"), "ServerName shop.test\nDocumentRoot /var/www/second\n")
	writeFile(t, filepath.Join(cfg.SitesAvailable, "c-noname.conf"), "DocumentRoot /var/www/none\n")

	sites, err := d.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "/var/www/first", sites[0].DocRoot)
}

func TestVhostDriver_CreateThenList(t *testing.T) {
	d, cfg, _ := newTestVhostDriver(t)
	spec := Spec{Site: testSite(cfg, "shop.test")}

	_, err := d.Apply(context.Background(), spec)
	require.NoError(t, err)

	sites, err := d.List(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "shop.test", sites[0].Domain)
	assert.Equal(t, spec.Site.DocRoot, sites[0].DocRoot)
	assert.False(t, sites[0].SSL)
}
