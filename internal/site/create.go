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

// Create provisions a new site: hosts entry, virtual host, document root
// (with the CMS when requested), database and user, permissions, and a
// web server reload. The returned report is never nil.
func (o *Orchestrator) Create(ctx context.Context, req request.CreateSite) (*model.ExecutionReport, error) {
	report := o.newReport(preflight.CommandCreateSite, req.Domain)
	defer o.finish(report)

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
			CMS:       req.WordPress,
		},
		DBPassword: req.DBPassword,
		DBRootAuth: req.DBRootAuth,
		CMSSource:  req.CMSSource,
	}

	steps, err := o.createSteps(spec.Site)
	if err != nil {
		return report, err
	}
	report.Plan = o.plan(report.Command, req.Domain, steps)

	o.logger.Info().
		Str("domain", req.Domain).
		Str("doc_root", spec.Site.DocRoot).
		Bool("cms", req.WordPress).
		Bool("dry_run", o.opts.DryRun).
		Msg("creating site")

	if err := o.execute(ctx, report, steps, spec); err != nil {
		if len(report.UndoHints) > 0 {
			report.UndoHints = append(report.UndoHints, uninstallHint(spec.Site))
		}
		return report, err
	}
	return report, nil
}

func (o *Orchestrator) createSteps(site model.Site) ([]step, error) {
	hosts, err := o.driver(driver.KindHosts)
	if err != nil {
		return nil, err
	}
	vhost, err := o.driver(driver.KindVhost)
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
	norm, ok := webroot.(driver.Normalizer)
	if !ok {
		return nil, model.NewInvalid("%s driver cannot apply permissions", webroot.Kind())
	}
	reload, err := o.reloadStep()
	if err != nil {
		return nil, err
	}

	docrootDesc := "create document root " + site.DocRoot
	if site.CMS {
		docrootDesc += " and install WordPress"
	}

	return []step{
		{
			name:        "hosts-entry",
			description: fmt.Sprintf("map %s to %s in %s", site.Domain, o.cfg.HostsIP, o.cfg.HostsFile),
			run:         hosts.Apply,
			undo:        fmt.Sprintf("remove-hosts-entry: delete the %s line from %s", site.Domain, o.cfg.HostsFile),
		},
		{
			name:        "vhost",
			description: fmt.Sprintf("write and enable virtual host %s", site.VhostPath),
			run:         vhost.Apply,
			undo:        fmt.Sprintf("remove-vhost: a2dissite %s && rm %s", site.Domain, site.VhostPath),
		},
		{
			name:        "docroot",
			description: docrootDesc,
			run:         webroot.Apply,
			undo:        fmt.Sprintf("remove-docroot: rm -rf %s", site.DocRoot),
		},
		{
			name:        "database",
			description: fmt.Sprintf("create database %s and user %s", site.DBName, site.DBUser),
			run:         db.Apply,
			undo:        fmt.Sprintf("drop-database: DROP DATABASE `%s`; DROP USER '%s'@'localhost';", site.DBName, site.DBUser),
		},
		{
			name:        "permissions",
			description: "normalize ownership and modes under " + site.DocRoot,
			run:         norm.Normalize,
		},
		reload,
	}, nil
}

func uninstallHint(site model.Site) string {
	return fmt.Sprintf("or run: lampctl uninstall-site %s --doc-root %s --db-name %s --db-user %s",
		site.Domain, site.DocRoot, site.DBName, site.DBUser)
}
