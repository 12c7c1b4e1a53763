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

// List rebuilds the site inventory from the virtual host descriptors. It
// never mutates, so a failing preflight only logs.
func (o *Orchestrator) List(ctx context.Context) ([]model.Site, error) {
	report := o.newReport(preflight.CommandListSites, "")
	if err := o.preflight(ctx, report, preflight.Request{}); err != nil {
		return nil, err
	}

	vh, err := o.driver(driver.KindVhost)
	if err != nil {
		return nil, err
	}
	l, ok := vh.(driver.Lister)
	if !ok {
		return nil, model.NewInvalid("%s driver cannot list sites", vh.Kind())
	}
	sites, err := l.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	o.logger.Debug().Int("sites", len(sites)).Msg("listed sites")
	return sites, nil
}

// capabilities are installed by install-lamp in this order.
var capabilities = []struct {
	name, description string
}{
	{driver.CapabilityWebServer, "install the Apache web server"},
	{driver.CapabilityRuntime, "install PHP and its Apache module"},
	{driver.CapabilityDatabase, "install the database server"},
	{driver.CapabilityCertificate, "install certbot and its Apache plugin"},
}

// InstallLAMP refreshes the package index once, installs the web server,
// runtime, database server and certificate client, and sets the database
// root password when one is exported. Every apt call waits for the package
// manager lock within req.WaitAptLock.
func (o *Orchestrator) InstallLAMP(ctx context.Context, req request.InstallLAMP) (*model.ExecutionReport, error) {
	report := o.newReport(preflight.CommandInstallLAMP, req.DBEngine)
	defer o.finish(report)

	if req.DBEngine == "" {
		req.DBEngine = model.EngineAuto
	}
	if err := request.Validate(req); err != nil {
		return report, err
	}

	// A variable named on the command line must be set; the configured
	// default is used only when present.
	pre := preflight.Request{PasswordEnv: req.DBRootPassEnv}
	if req.DBRootPassEnv != "" {
		pre.DBRootAuth = model.DBAuthPassword
	}
	if err := o.preflight(ctx, report, pre); err != nil {
		return report, err
	}
	passEnv := req.DBRootPassEnv
	if passEnv == "" {
		passEnv = o.cfg.DBRootPassEnv
	}

	steps, err := o.installSteps()
	if err != nil {
		return report, err
	}
	report.Plan = o.plan(report.Command, req.DBEngine, steps)

	o.logger.Info().
		Str("db_engine", req.DBEngine).
		Str("db_root_pass_env", passEnv).
		Dur("wait_apt_lock", req.WaitAptLock).
		Msg("installing LAMP stack")

	return report, o.execute(ctx, report, steps, driver.Spec{
		Engine:      req.DBEngine,
		LockBudget:  req.WaitAptLock,
		RootPassEnv: passEnv,
		RootPlugin:  req.DBRootPlugin,
	})
}

func (o *Orchestrator) installSteps() ([]step, error) {
	pkg, err := o.driver(driver.KindPackage)
	if err != nil {
		return nil, err
	}
	refresher, ok := pkg.(driver.Refresher)
	if !ok {
		return nil, model.NewInvalid("%s driver cannot refresh the package index", pkg.Kind())
	}
	db, err := o.driver(driver.KindDatabase)
	if err != nil {
		return nil, err
	}
	setter, ok := db.(driver.RootPasswordSetter)
	if !ok {
		return nil, model.NewInvalid("%s driver cannot set the root password", db.Kind())
	}

	steps := []step{{
		name:        "update-package-index",
		description: "refresh the apt package index",
		run:         refresher.Refresh,
	}}
	for _, c := range capabilities {
		capability := c.name
		steps = append(steps, step{
			name:        "install-" + capability,
			description: c.description,
			run: func(ctx context.Context, spec driver.Spec) (model.OperationResult, error) {
				spec.Capability = capability
				return pkg.Apply(ctx, spec)
			},
		})
		if capability == driver.CapabilityDatabase {
			steps = append(steps, step{
				name:        "set-db-root-password",
				description: "set the database root password when one is exported",
				run:         setter.SetRootPassword,
			})
		}
	}
	return steps, nil
}

// GenerateSSL issues a certificate for an existing, enabled site and
// reloads the web server.
func (o *Orchestrator) GenerateSSL(ctx context.Context, req request.GenerateSSL) (*model.ExecutionReport, error) {
	report := o.newReport(preflight.CommandGenerateSSL, req.Domain)
	defer o.finish(report)

	if err := request.Validate(req); err != nil {
		return report, err
	}
	if err := o.preflight(ctx, report, preflight.Request{Domain: req.Domain}); err != nil {
		return report, err
	}

	cert, err := o.driver(driver.KindCertificate)
	if err != nil {
		return report, err
	}
	reload, err := o.reloadStep()
	if err != nil {
		return report, err
	}
	steps := []step{
		{
			name:        "certificate",
			description: "request a certificate for " + req.Domain + " and enable the HTTPS redirect",
			run:         cert.Apply,
			undo:        "revoke-cert: certbot delete --cert-name " + req.Domain,
		},
		reload,
	}
	report.Plan = o.plan(report.Command, req.Domain, steps)

	return report, o.execute(ctx, report, steps, driver.Spec{
		Site: model.Site{
			Domain:    req.Domain,
			VhostPath: filepath.Join(o.cfg.SitesAvailable, req.Domain+".conf"),
			SSL:       true,
		},
	})
}

// WPPermissions applies the permission policy to an existing WordPress
// installation.
func (o *Orchestrator) WPPermissions(ctx context.Context, req request.WPPermissions) (*model.ExecutionReport, error) {
	report := o.newReport(preflight.CommandWPPermissions, req.Path)
	defer o.finish(report)

	if err := request.Validate(req); err != nil {
		return report, err
	}
	path, err := filepath.Abs(req.Path)
	if err != nil {
		return report, model.NewInvalid("path %q: %v", req.Path, err)
	}
	report.Target = path
	if err := o.preflight(ctx, report, preflight.Request{DocRoot: path}); err != nil {
		return report, err
	}

	webroot, err := o.driver(driver.KindWebroot)
	if err != nil {
		return report, err
	}
	norm, ok := webroot.(driver.Normalizer)
	if !ok {
		return report, model.NewInvalid("%s driver cannot apply permissions", webroot.Kind())
	}
	steps := []step{{
		name:        "permissions",
		description: "normalize ownership and modes under " + path,
		run:         norm.Normalize,
	}}
	report.Plan = o.plan(report.Command, path, steps)

	return report, o.execute(ctx, report, steps, driver.Spec{
		Site: model.Site{Domain: filepath.Base(path), DocRoot: path, CMS: true},
	})
}

// DatabaseInspector lists the contents of the database server.
type DatabaseInspector interface {
	ListDatabases(ctx context.Context, auth string) ([]string, error)
	ListUsers(ctx context.Context, auth string) ([]driver.DBUser, error)
}

func (o *Orchestrator) inspector(ctx context.Context, command string, req request.DatabaseQuery) (DatabaseInspector, error) {
	if err := request.Validate(req); err != nil {
		return nil, err
	}
	report := o.newReport(command, "")
	if err := o.preflight(ctx, report, preflight.Request{
		DBRootAuth:  req.DBRootAuth,
		PasswordEnv: o.cfg.DBRootPassEnv,
	}); err != nil {
		return nil, err
	}
	db, err := o.driver(driver.KindDatabase)
	if err != nil {
		return nil, err
	}
	inspector, ok := db.(DatabaseInspector)
	if !ok {
		return nil, model.NewInvalid("%s driver cannot list its contents", db.Kind())
	}
	return inspector, nil
}

// ListDatabases returns the user databases on the server.
func (o *Orchestrator) ListDatabases(ctx context.Context, req request.DatabaseQuery) ([]string, error) {
	if req.DBRootAuth == "" {
		req.DBRootAuth = model.DBAuthAuto
	}
	inspector, err := o.inspector(ctx, preflight.CommandListDatabases, req)
	if err != nil {
		return nil, err
	}
	return inspector.ListDatabases(ctx, req.DBRootAuth)
}

// ListDBUsers returns the non-system database accounts.
func (o *Orchestrator) ListDBUsers(ctx context.Context, req request.DatabaseQuery) ([]driver.DBUser, error) {
	if req.DBRootAuth == "" {
		req.DBRootAuth = model.DBAuthAuto
	}
	inspector, err := o.inspector(ctx, preflight.CommandListDBUsers, req)
	if err != nil {
		return nil, err
	}
	return inspector.ListUsers(ctx, req.DBRootAuth)
}
