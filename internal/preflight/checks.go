package preflight

import (
	"path/filepath"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/driver"
	"github.com/edvin/lampctl/internal/model"
)

// Commands with preflight requirements.
const (
	CommandInstallLAMP   = "install-lamp"
	CommandCreateSite    = "create-site"
	CommandUninstallSite = "uninstall-site"
	CommandListSites     = "list-sites"
	CommandGenerateSSL   = "generate-ssl"
	CommandWPPermissions = "wp-permissions"
	CommandListDatabases = "list-databases"
	CommandListDBUsers   = "list-db-users"
)

// Check kinds.
const (
	CheckRoot            = "root-privileges"
	CheckPackageManager  = "package-manager"
	CheckServiceManager  = "service-manager"
	CheckSupportedOS     = "supported-os"
	CheckWebServer       = "web-server"
	CheckWebServerConfig = "web-server-config"
	CheckDatabaseEngine  = "database-engine"
	CheckRuntime         = "scripting-runtime"
	CheckCertClient      = "certificate-client"
	CheckHostsWritable   = "hosts-file-writable"
	CheckWebRootWritable = "web-root-writable"
	CheckRootPassword    = "db-root-password"
	CheckVhostAvailable  = "vhost-available"
	CheckVhostEnabled    = "vhost-enabled"
	CheckDocRoot         = "document-root"
	CheckCMSMarkers      = "cms-markers"
)

// Remediations maps every check kind to its single remediation string.
var Remediations = map[string]string{
	CheckRoot:            "Re-run the command with sudo",
	CheckPackageManager:  "Use a Debian or Ubuntu host with apt-get and dpkg-query",
	CheckServiceManager:  "Install systemd or set init_system: direct",
	CheckSupportedOS:     "Use Ubuntu 20.04, 22.04 or 24.04",
	CheckWebServer:       "Run: lampctl install-lamp",
	CheckWebServerConfig: "Run: lampctl install-lamp",
	CheckDatabaseEngine:  "Run: lampctl install-lamp",
	CheckRuntime:         "Run: lampctl install-lamp",
	CheckCertClient:      "Run: apt-get install -y certbot python3-certbot-apache",
	CheckHostsWritable:   "Re-run the command with sudo",
	CheckWebRootWritable: "Re-run the command with sudo",
	CheckRootPassword:    "Export the database root password in the variable named by --db-root-pass-env",
	CheckVhostAvailable:  "Run: lampctl create-site <domain> first",
	CheckVhostEnabled:    "Run: a2ensite <domain> && systemctl reload apache2",
	CheckDocRoot:         "Pass an existing document root directory",
	CheckCMSMarkers:      "Pass the root of a WordPress installation",
}

var supportedReleases = map[string]bool{"20.04": true, "22.04": true, "24.04": true}

// Checker evaluates an Environment against a command's requirements.
type Checker struct {
	cfg *config.Config
}

// NewChecker creates a Checker.
func NewChecker(cfg *config.Config) *Checker {
	return &Checker{cfg: cfg}
}

// Check returns the findings for command. Unknown commands have no
// requirements and yield an empty report.
func (c *Checker) Check(command string, env Environment, req Request) model.PreflightReport {
	report := model.PreflightReport{Command: command}
	add := func(check string, ok bool, severity string) {
		status := model.CheckOK
		if !ok {
			status = model.CheckMissing
		}
		report.Findings = append(report.Findings, model.Finding{
			Check:       check,
			Status:      status,
			Severity:    severity,
			Remediation: Remediations[check],
		})
	}
	blocking, advisory := model.SeverityBlocking, model.SeverityAdvisory

	apacheDir := filepath.Dir(c.cfg.SitesAvailable)
	apachePaths := env.Exists(apacheDir) && env.Exists(c.cfg.SitesAvailable) && env.Exists(c.cfg.SitesEnabled)

	switch command {
	case CommandInstallLAMP:
		add(CheckRoot, env.IsRoot, blocking)
		add(CheckPackageManager, env.HasBinary("apt-get") && env.HasBinary("dpkg-query"), blocking)
		add(CheckServiceManager, env.HasBinary("systemctl") || c.cfg.InitSystem == config.InitDirect, blocking)
		add(CheckSupportedOS, env.OSID == "ubuntu" && supportedReleases[env.OSVersion], advisory)
		if env.PasswordRequired {
			add(CheckRootPassword, env.PasswordPresent, blocking)
		}

	case CommandCreateSite:
		add(CheckWebServer, env.HasBinary("apache2"), blocking)
		add(CheckWebServerConfig, apachePaths, blocking)
		add(CheckDatabaseEngine, env.HasBinary("mysql"), blocking)
		add(CheckRuntime, env.HasBinary("php"), blocking)
		add(CheckHostsWritable, env.Writable(c.cfg.HostsFile), blocking)
		add(CheckWebRootWritable, env.Writable(c.cfg.WebRoot), blocking)
		if env.PasswordRequired {
			add(CheckRootPassword, env.PasswordPresent, blocking)
		}
		add(CheckCertClient, env.HasBinary("certbot"), advisory)

	case CommandUninstallSite:
		add(CheckWebServer, env.HasBinary("apache2"), blocking)
		add(CheckWebServerConfig, apachePaths, blocking)
		add(CheckHostsWritable, env.Writable(c.cfg.HostsFile), blocking)
		add(CheckWebRootWritable, env.Writable(c.cfg.WebRoot), blocking)
		add(CheckDatabaseEngine, env.HasBinary("mysql"), advisory)
		if env.PasswordRequired {
			add(CheckRootPassword, env.PasswordPresent, advisory)
		}
		add(CheckCertClient, env.HasBinary("certbot"), advisory)

	case CommandListSites:
		add(CheckWebServerConfig, env.Exists(c.cfg.SitesAvailable), advisory)

	case CommandGenerateSSL:
		add(CheckWebServer, env.HasBinary("apache2"), blocking)
		add(CheckVhostAvailable, env.Exists(filepath.Join(c.cfg.SitesAvailable, req.Domain+".conf")), blocking)
		add(CheckVhostEnabled, env.Exists(filepath.Join(c.cfg.SitesEnabled, req.Domain+".conf")), blocking)
		add(CheckCertClient, env.HasBinary("certbot"), blocking)

	case CommandListDatabases, CommandListDBUsers:
		add(CheckDatabaseEngine, env.HasBinary("mysql"), blocking)
		if env.PasswordRequired {
			add(CheckRootPassword, env.PasswordPresent, blocking)
		}

	case CommandWPPermissions:
		add(CheckWebServer, env.HasBinary("apache2"), blocking)
		add(CheckWebServerConfig, apachePaths, blocking)
		add(CheckDocRoot, env.Exists(req.DocRoot), blocking)
		markers := true
		for _, m := range driver.CMSMarkers {
			if !env.Exists(filepath.Join(req.DocRoot, m)) {
				markers = false
			}
		}
		add(CheckCMSMarkers, markers, blocking)
	}
	return report
}

// Enforce turns blocking findings into a PreflightBlocking error. Dry-run
// reports the same findings but never blocks.
func Enforce(report model.PreflightReport, dryRun bool) error {
	blocking := report.Blocking()
	if len(blocking) == 0 || dryRun {
		return nil
	}
	return model.NewPreflightBlocking(report.Command, blocking)
}
