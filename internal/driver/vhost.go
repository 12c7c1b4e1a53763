package driver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/execx"
	"github.com/edvin/lampctl/internal/model"
)

// TLSSuffix marks the companion descriptor certbot writes next to a site.
const TLSSuffix = "-le-ssl"

const webServerUnit = "apache2"

// VhostDriver manages Apache virtual host descriptors.
type VhostDriver struct {
	logger    zerolog.Logger
	runner    execx.Runner
	svc       ServiceManager
	available string
	enabled   string
	logDir    string
}

// NewVhostDriver creates a VhostDriver.
func NewVhostDriver(logger zerolog.Logger, cfg *config.Config, runner execx.Runner, svc ServiceManager) *VhostDriver {
	return &VhostDriver{
		logger:    logger.With().Str("component", "vhost-driver").Logger(),
		runner:    runner,
		svc:       svc,
		available: cfg.SitesAvailable,
		enabled:   cfg.SitesEnabled,
		logDir:    cfg.ApacheLogDir,
	}
}

func (d *VhostDriver) Kind() Kind { return KindVhost }

// DescriptorPath returns the sites-available path for domain.
func (d *VhostDriver) DescriptorPath(domain string) string {
	return filepath.Join(d.available, domain+".conf")
}

// CompanionPath returns the TLS companion descriptor path for domain.
func (d *VhostDriver) CompanionPath(domain string) string {
	return filepath.Join(d.available, domain+TLSSuffix+".conf")
}

// Probe reports whether a descriptor exists for the domain.
func (d *VhostDriver) Probe(_ context.Context, spec Spec) (Presence, error) {
	path := d.DescriptorPath(spec.Site.Domain)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return Presence{Exists: true, Detail: path}, nil
	case errors.Is(err, fs.ErrNotExist):
		return Presence{Detail: path}, nil
	default:
		return Presence{}, fmt.Errorf("stat %s: %w", path, err)
	}
}

// Apply writes and enables the descriptor. An existing descriptor is never
// overwritten.
func (d *VhostDriver) Apply(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "vhost"
	domain := spec.Site.Domain
	path := d.DescriptorPath(domain)

	p, err := d.Probe(ctx, spec)
	if err != nil {
		return probeFailed(step, "write "+path+" and run a2ensite "+domain, "probe descriptor", spec, err)
	}
	if p.Exists {
		return fail(step, model.NewAlreadyExists("virtual host %s already exists at %s", domain, path))
	}

	content, err := RenderVhost(NewVhostParams(domain, spec.Site.DocRoot, d.logDir))
	if err != nil {
		return fail(step, model.NewDriverFailure(step, "render descriptor", err))
	}
	if spec.DryRun {
		return wouldDo(step, "write %s and run a2ensite %s", path, domain), nil
	}

	d.logger.Info().Str("domain", domain).Str("path", path).Msg("writing virtual host")

	if err := os.MkdirAll(d.available, 0o755); err != nil {
		return fail(step, model.NewDriverFailure(step, "create sites-available", err))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fail(step, model.NewDriverFailure(step, "write descriptor", err))
	}
	if _, err := d.runner.Run(ctx, execx.Command{Name: "a2ensite", Args: []string{domain}}); err != nil {
		return fail(step, model.NewDriverFailure(step, "enable site", err))
	}
	return model.Applied(step, fmt.Sprintf("wrote %s and enabled %s", path, domain)), nil
}

// Remove disables the site and deletes its descriptor and TLS companion.
func (d *VhostDriver) Remove(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "remove-vhost"
	domain := spec.Site.Domain

	var present []string
	for _, path := range []string{d.DescriptorPath(domain), d.CompanionPath(domain)} {
		if _, err := os.Stat(path); err == nil {
			present = append(present, path)
		}
	}
	if len(present) == 0 {
		return model.Skipped(step, fmt.Sprintf("no descriptor for %s", domain)), nil
	}
	if spec.DryRun {
		return wouldDo(step, "disable %s and delete %s", domain, strings.Join(present, ", ")), nil
	}

	d.logger.Info().Str("domain", domain).Strs("paths", present).Msg("removing virtual host")

	for _, path := range present {
		site := strings.TrimSuffix(filepath.Base(path), ".conf")
		link := filepath.Join(d.enabled, filepath.Base(path))
		if _, err := os.Lstat(link); err == nil {
			if _, err := d.runner.Run(ctx, execx.Command{Name: "a2dissite", Args: []string{site}}); err != nil {
				return fail(step, model.NewDriverFailure(step, "disable site "+site, err))
			}
		}
		// Drop any link a2dissite left behind.
		if err := os.Remove(link); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail(step, model.NewDriverFailure(step, "remove "+link, err))
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail(step, model.NewDriverFailure(step, "remove "+path, err))
		}
	}
	return model.Applied(step, fmt.Sprintf("removed %s", strings.Join(present, ", "))), nil
}

// RemoveLogs deletes the per-site log files, rotated copies included.
func (d *VhostDriver) RemoveLogs(_ context.Context, spec Spec) (model.OperationResult, error) {
	const step = "remove-logs"
	domain := spec.Site.Domain

	var files []string
	for _, pattern := range []string{domain + "_error.log*", domain + "_access.log*"} {
		matches, err := filepath.Glob(filepath.Join(d.logDir, pattern))
		if err != nil {
			return fail(step, model.NewDriverFailure(step, "glob logs", err))
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return model.Skipped(step, fmt.Sprintf("no logs for %s", domain)), nil
	}
	if spec.DryRun {
		return wouldDo(step, "delete %d log file(s) for %s", len(files), domain), nil
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail(step, model.NewDriverFailure(step, "remove "+f, err))
		}
	}
	return model.Applied(step, fmt.Sprintf("deleted %d log file(s)", len(files))), nil
}

// Reload makes the web server pick up descriptor changes.
func (d *VhostDriver) Reload(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "reload-webserver"
	if spec.DryRun {
		return wouldDo(step, "reload %s", webServerUnit), nil
	}
	d.logger.Info().Str("unit", webServerUnit).Msg("reloading web server")
	err := d.svc.Reload(ctx, webServerUnit)
	if err == nil {
		return model.Applied(step, "reloaded "+webServerUnit), nil
	}
	d.logger.Warn().Err(err).Str("unit", webServerUnit).Msg("reload failed, restarting")
	if rerr := d.svc.Restart(ctx, webServerUnit); rerr != nil {
		return fail(step, model.NewDriverFailure(step, "reload and restart "+webServerUnit, errors.Join(err, rerr)))
	}
	return model.Applied(step, "restarted "+webServerUnit+" after a failed reload"), nil
}
