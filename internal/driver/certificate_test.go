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

func newTestCertificateDriver(t *testing.T) (*CertificateDriver, *config.Config, *execx.Fake) {
	t.Helper()
	cfg := newTestConfig(t)
	runner := execx.NewFake("certbot", "a2dissite")
	return NewCertificateDriver(zerolog.Nop(), cfg, runner), cfg, runner
}

func TestCertificateDriver_CertbotArgs(t *testing.T) {
	d, _, _ := newTestCertificateDriver(t)
	assert.Equal(t,
		[]string{"--apache", "--non-interactive", "--agree-tos", "--redirect", "-d", "shop.test", "-d", "www.shop.test", "--register-unsafely-without-email"},
		d.CertbotArgs("shop.test"))

	d.email = "ops@shop.test"
	args := d.CertbotArgs("www.shop.test")
	assert.Equal(t, []string{"--apache", "--non-interactive", "--agree-tos", "--redirect", "-d", "www.shop.test", "-m", "ops@shop.test"}, args)
}

func TestCertificateDriver_Apply(t *testing.T) {
	d, _, runner := newTestCertificateDriver(t)
	spec := Spec{Site: model.Site{Domain: "shop.test"}}

	res, err := d.Apply(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	require.Len(t, runner.Calls, 1)
	assert.Equal(t, "certbot", runner.Calls[0].Name)
	assert.True(t, runner.Calls[0].Stream)
}

func TestCertificateDriver_ApplyExistingIsSkipped(t *testing.T) {
	d, cfg, runner := newTestCertificateDriver(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.LetsEncryptDir, "live", "shop.test"), 0o755))

	res, err := d.Apply(context.Background(), Spec{Site: model.Site{Domain: "shop.test"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, res.Status)
	assert.Empty(t, runner.Calls)
}

func TestCertificateDriver_ApplyFailureKeepsOutput(t *testing.T) {
	d, _, runner := newTestCertificateDriver(t)
	runner.Handler = func(execx.Command) (execx.Result, error) {
		return execx.Result{Output: []byte("Challenge failed for domain shop.test")}, errors.New("exit status 1")
	}

	res, err := d.Apply(context.Background(), Spec{Site: model.Site{Domain: "shop.test"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDriverFailure)
	assert.Contains(t, res.Output, "Challenge failed")
}

func TestCertificateDriver_Remove(t *testing.T) {
	d, cfg, runner := newTestCertificateDriver(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.LetsEncryptDir, "live", "shop.test"), 0o755))
	companion := filepath.Join(cfg.SitesAvailable, "shop.test-le-ssl.conf")
	writeFile(t, companion, "<VirtualHost *:443>\n")
	require.NoError(t, os.Symlink(companion, filepath.Join(cfg.SitesEnabled, "shop.test-le-ssl.conf")))

	res, err := d.Remove(context.Background(), Spec{Site: model.Site{Domain: "shop.test"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusApplied, res.Status)
	assert.Equal(t, []string{
		"certbot delete --non-interactive --cert-name shop.test",
		"a2dissite shop.test-le-ssl",
	}, runner.Commands())
	assert.NoFileExists(t, companion)
}

func TestCertificateDriver_RemoveWithoutCertificate(t *testing.T) {
	d, _, runner := newTestCertificateDriver(t)

	res, err := d.Remove(context.Background(), Spec{Site: model.Site{Domain: "shop.test"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSkipped, res.Status)
	assert.Empty(t, runner.Calls)
}
