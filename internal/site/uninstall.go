package site

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/edvin/lampctl/internal/driver"
	"github.com/edvin/lampctl/internal/model"
	"github.com/edvin/lampctl/internal/preflight"
	"github.com/edvin/lampctl/internal/request"
)

// Uninstall removes a site after the operator confirms. Database removal is
// confirmed separately; declining it still removes everything else. Dry-run
// asks nothing and simulates the full removal.
func (o *Orchestrator) Uninstall(ctx context.Context, req request.UninstallSite) (*model.ExecutionReport, error) {
	report := o.newReport(preflight.CommandUninstallSite, req.Domain)
	defer o.finish(report)

	if req.DBRootAuth == "" {
		req.DBRootAuth = model.DBAuthAuto
	}
	if err := request.Validate(req); err != nil {
		return report, err
	}
	if err := request.ValidateDocRoot(o.cfg.WebRoot, req.DocRoot); err != nil {
		return report, err
	}
	if err := o.preflight(ctx, report, preflight.Request{
		Domain:      req.Domain,
		DocRoot:     req.DocRoot,
		DBRootAuth:  req.DBRootAuth,
		PasswordEnv: o.cfg.DBRootPassEnv,
	}); err != nil {
		return report, err
	}

	spec := driver.Spec{
		Site: model.Site{
			Domain:    req.Domain,
			DocRoot:   filepath.Clean(req.DocRoot),
			VhostPath: filepath.Join(o.cfg.SitesAvailable, req.Domain+".conf"),
			DBName:    req.DBName,
			DBUser:    req.DBUser,
		},
		DBRootAuth: req.DBRootAuth,
	}

	if err := o.selectSite(ctx, &spec); err != nil {
		return report, err
	}

	steps, err := o.uninstallSteps(spec.Site)
	if err != nil {
		return report, err
	}
	report.Plan = o.plan(report.Command, req.Domain, steps)

	if o.opts.DryRun {
		spec.Confirmed = true
	} else {
		prompt := fmt.Sprintf("Remove site %s (virtual host, hosts entry, logs and %s)?", req.Domain, spec.Site.DocRoot)
		if !o.confirm(ConfirmRemoveSite, prompt) {
			o.logger.Info().Str("domain", req.Domain).Msg("site removal declined")
			return report, model.NewConfirmationDeclined("remove site " + req.Domain)
		}
		spec.Confirmed = o.confirm(ConfirmRemoveDB, fmt.Sprintf("Also drop database %s and user %s?", req.DBName, req.DBUser))
		if !spec.Confirmed {
			o.logger.Info().Str("db_name", req.DBName).Msg("database removal declined, keeping database")
		}
	}

	o.logger.Info().
		Str("domain", req.Domain).
		Bool("drop_database", spec.Confirmed).
		Bool("dry_run", o.opts.DryRun).
		Msg("uninstalling site")

	return report, o.execute(ctx, report, steps, spec)
}

// selectSite probes the site's resources and fails with NotFound when none
// of them exist. It fills in SSL and CMS from what it finds and warns when
// the site's CMS configuration names another database.
func (o *Orchestrator) selectSite(ctx context.Context, spec *driver.Spec) error {
	site := &spec.Site
	found := false

	for _, kind := range []driver.Kind{driver.KindVhost, driver.KindWebroot, driver.KindHosts} {
		d, err := o.driver(kind)
		if err != nil {
			return err
		}
		p, err := d.Probe(ctx, *spec)
		if err != nil {
			if !o.opts.DryRun {
				return fmt.Errorf("probe %s: %w", kind, err)
			}
			o.logger.Warn().Err(err).Str("driver", string(kind)).Msg("probe failed")
			continue
		}
		o.logger.Debug().Str("driver", string(kind)).Bool("exists", p.Exists).Str("detail", p.Detail).Msg("probed")
		found = found || p.Exists
	}
	if !found {
		return model.NewNotFound("site %s not found", site.Domain)
	}

	if vh, err := o.driver(driver.KindVhost); err == nil {
		if l, ok := vh.(driver.Lister); ok {
			sites, err := l.List(ctx)
			if err != nil {
				o.logger.Warn().Err(err).Msg("listing sites failed")
			}
			for _, s := range sites {
				if s.Domain != site.Domain {
					continue
				}
				site.SSL = s.SSL
				site.CMS = s.CMS
				if s.DocRoot != "" && filepath.Clean(s.DocRoot) != site.DocRoot {
					o.logger.Warn().
						Str("configured", s.DocRoot).
						Str("requested", site.DocRoot).
						Msg("virtual host serves a different document root")
				}
				break
			}
		}
	}

	if wp, err := driver.ReadWPConfig(site.DocRoot); err == nil {
		if wp.DBName != "" && wp.DBName != site.DBName {
			o.logger.Warn().
				Str("configured", wp.DBName).
				Str("requested", site.DBName).
				Msg("wp-config.php names a different database")
		}
		if wp.DBUser != "" && wp.DBUser != site.DBUser {
			o.logger.Warn().
				Str("configured", wp.DBUser).
				Str("requested", site.DBUser).
				Msg("wp-config.php names a different database user")
		}
	}
	return nil
}

func (o *Orchestrator) uninstallSteps(site model.Site) ([]step, error) {
	cert, err := o.driver(driver.KindCertificate)
	if err != nil {
		return nil, err
	}
	vhost, err := o.driver(driver.KindVhost)
	if err != nil {
		return nil, err
	}
	hosts, err := o.driver(driver.KindHosts)
	if err != nil {
		return nil, err
	}
	webroot, err := o.driver(driver.KindWebroot)
	if err != nil {
		return nil, err
	}
	db, err := o.driver(driver.KindDatabase)
	if err != nil {
		return nil, err
	}
	logs, ok := vhost.(driver.LogRemover)
	if !ok {
		return nil, model.NewInvalid("%s driver cannot remove logs", vhost.Kind())
	}
	reload, err := o.reloadStep()
	if err != nil {
		return nil, err
	}

	return []step{
		{
			name:        "revoke-cert",
			description: "delete the certificate and TLS virtual host for " + site.Domain,
			run:         cert.Remove,
		},
		{
			name:        "remove-vhost",
			description: "disable and delete virtual host " + site.VhostPath,
			run:         vhost.Remove,
		},
		{
			name:        "remove-logs",
			description: "delete access and error logs of " + site.Domain,
			run:         logs.RemoveLogs,
		},
		{
			name:        "remove-hosts-entry",
			description: fmt.Sprintf("delete %s from %s", site.Domain, o.cfg.HostsFile),
			run:         hosts.Remove,
		},
		{
			name:        "remove-docroot",
			description: "delete document root " + site.DocRoot,
			run:         webroot.Remove,
		},
		{
			name:        "drop-database",
			description: fmt.Sprintf("drop database %s and user %s when confirmed", site.DBName, site.DBUser),
			run:         db.Remove,
		},
		reload,
	}, nil
}
