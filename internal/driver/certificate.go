package driver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/execx"
	"github.com/edvin/lampctl/internal/model"
	"github.com/edvin/lampctl/internal/platform"
)

// CertificateDriver obtains and deletes certificates with certbot's Apache
// plugin.
type CertificateDriver struct {
	logger    zerolog.Logger
	runner    execx.Runner
	liveDir   string
	available string
	enabled   string
	email     string
}

// NewCertificateDriver creates a CertificateDriver.
func NewCertificateDriver(logger zerolog.Logger, cfg *config.Config, runner execx.Runner) *CertificateDriver {
	return &CertificateDriver{
		logger:    logger.With().Str("component", "certificate-driver").Logger(),
		runner:    runner,
		liveDir:   filepath.Join(cfg.LetsEncryptDir, "live"),
		available: cfg.SitesAvailable,
		enabled:   cfg.SitesEnabled,
		email:     cfg.CertbotEmail,
	}
}

func (d *CertificateDriver) Kind() Kind { return KindCertificate }

func (d *CertificateDriver) certDir(domain string) string {
	return filepath.Join(d.liveDir, domain)
}

func (d *CertificateDriver) companionPath(domain string) string {
	return filepath.Join(d.available, domain+TLSSuffix+".conf")
}

// Probe reports whether a certificate lineage exists for the domain.
func (d *CertificateDriver) Probe(_ context.Context, spec Spec) (Presence, error) {
	dir := d.certDir(spec.Site.Domain)
	_, err := os.Stat(dir)
	switch {
	case err == nil:
		return Presence{Exists: true, Detail: dir}, nil
	case errors.Is(err, fs.ErrNotExist):
		return Presence{Detail: dir}, nil
	default:
		return Presence{}, fmt.Errorf("stat %s: %w", dir, err)
	}
}

// CertbotArgs returns the certbot arguments used to issue a certificate.
func (d *CertificateDriver) CertbotArgs(domain string) []string {
	args := []string{"--apache", "--non-interactive", "--agree-tos", "--redirect", "-d", domain}
	if alias := platform.WWWAlias(domain); alias != "" {
		args = append(args, "-d", alias)
	}
	if d.email != "" {
		args = append(args, "-m", d.email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}
	return args
}

// Apply issues a certificate and lets certbot install the TLS companion
// descriptor with an HTTPS redirect.
func (d *CertificateDriver) Apply(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "certificate"
	domain := spec.Site.Domain

	p, err := d.Probe(ctx, spec)
	if err != nil {
		return probeFailed(step, "run certbot for "+domain, "probe certificate", spec, err)
	}
	if p.Exists {
		return model.Skipped(step, "certificate already present at "+p.Detail), nil
	}
	args := d.CertbotArgs(domain)
	if spec.DryRun {
		return wouldDo(step, "run certbot for %s", domain), nil
	}

	d.logger.Info().Str("domain", domain).Msg("requesting certificate")
	res, err := d.runner.Run(ctx, execx.Command{Name: "certbot", Args: args, Stream: true})
	if err != nil {
		r, e := fail(step, model.NewDriverFailure(step, "certbot failed for "+domain, err))
		r.Output = string(res.Output)
		return r, e
	}
	return model.Applied(step, "issued certificate for "+domain), nil
}

// Remove deletes the certificate lineage and the TLS companion descriptor.
func (d *CertificateDriver) Remove(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "revoke-cert"
	domain := spec.Site.Domain
	companion := d.companionPath(domain)

	p, err := d.Probe(ctx, spec)
	if err != nil {
		return probeFailed(step, "delete certificate "+domain, "probe certificate", spec, err)
	}
	_, statErr := os.Stat(companion)
	hasCompanion := statErr == nil
	if !p.Exists && !hasCompanion {
		return model.Skipped(step, "no certificate for "+domain), nil
	}
	if spec.DryRun {
		return wouldDo(step, "delete certificate %s and %s", domain, companion), nil
	}

	d.logger.Info().Str("domain", domain).Msg("deleting certificate")
	if p.Exists {
		args := []string{"delete", "--non-interactive", "--cert-name", domain}
		if _, err := d.runner.Run(ctx, execx.Command{Name: "certbot", Args: args}); err != nil {
			return fail(step, model.NewDriverFailure(step, "certbot delete "+domain, err))
		}
	}
	if hasCompanion {
		link := filepath.Join(d.enabled, filepath.Base(companion))
		if _, err := os.Lstat(link); err == nil {
			if _, err := d.runner.Run(ctx, execx.Command{Name: "a2dissite", Args: []string{domain + TLSSuffix}}); err != nil {
				return fail(step, model.NewDriverFailure(step, "disable TLS site", err))
			}
			if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fail(step, model.NewDriverFailure(step, "remove "+link, err))
			}
		}
		if err := os.Remove(companion); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail(step, model.NewDriverFailure(step, "remove "+companion, err))
		}
	}
	return model.Applied(step, "deleted certificate for "+domain), nil
}
