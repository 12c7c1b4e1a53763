package driver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/execx"
	"github.com/edvin/lampctl/internal/model"
)

// Capabilities the package driver can install.
const (
	CapabilityWebServer   = "web-server"
	CapabilityRuntime     = "runtime"
	CapabilityDatabase    = "database"
	CapabilityCertificate = "certificate"
)

// Package sets per capability. The database set is chosen at run time.
var (
	WebServerPackages   = []string{"apache2"}
	RuntimePackages     = []string{"php", "libapache2-mod-php", "php-mysql"}
	RuntimeExtras       = []string{"php-curl", "php-xml", "php-imagick", "php-mbstring", "php-zip", "php-intl", "php-gd"}
	CertificatePackages = []string{"certbot", "python3-certbot-apache"}
)

// Engine is an installable database server.
type Engine struct {
	Name      string
	ServerPkg string
	ClientPkg string
	Service   string
}

// Database engines in fallback order.
var (
	EngineMySQL        = Engine{Name: model.EngineMySQL, ServerPkg: "mysql-server", ClientPkg: "mysql-client", Service: "mysql"}
	EngineMariaDB      = Engine{Name: model.EngineMariaDB, ServerPkg: "mariadb-server", ClientPkg: "mariadb-client", Service: "mariadb"}
	EngineDefaultMySQL = Engine{Name: model.EngineMySQL, ServerPkg: "default-mysql-server", ClientPkg: "default-mysql-client", Service: "mysql"}
)

var engineFallback = []Engine{EngineMySQL, EngineMariaDB, EngineDefaultMySQL}

var candidateRe = regexp.MustCompile(`(?mi)^\s*Candidate:\s*(\S+)`)

// LockAcquirer waits for the package manager lock to be free.
type LockAcquirer interface {
	Acquire(ctx context.Context, budget time.Duration) error
}

// aptEnv keeps apt and debconf from prompting.
var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// PackageDriver installs system packages with apt. Every mutating apt call
// happens only after the lock coordinator reports the dpkg lock free. The
// package index is refreshed once per driver, before any engine selection.
type PackageDriver struct {
	logger zerolog.Logger
	runner execx.Runner
	lock   LockAcquirer

	mu        sync.Mutex
	refreshed bool
}

// NewPackageDriver creates a PackageDriver.
func NewPackageDriver(logger zerolog.Logger, runner execx.Runner, lock LockAcquirer) *PackageDriver {
	return &PackageDriver{
		logger: logger.With().Str("component", "package-driver").Logger(),
		runner: runner,
		lock:   lock,
	}
}

func (d *PackageDriver) Kind() Kind { return KindPackage }

// Installed reports whether dpkg lists pkg as installed.
func (d *PackageDriver) Installed(ctx context.Context, pkg string) bool {
	res, err := d.runner.Run(ctx, execx.Command{
		Name: "dpkg-query",
		Args: []string{"-W", "-f=${Status}", pkg},
	})
	if err != nil {
		return false
	}
	return strings.Contains(string(res.Output), "install ok installed")
}

// HasCandidate reports whether apt can install pkg.
func (d *PackageDriver) HasCandidate(ctx context.Context, pkg string) bool {
	res, err := d.runner.Run(ctx, execx.Command{Name: "apt-cache", Args: []string{"policy", pkg}})
	if err != nil {
		return false
	}
	m := candidateRe.FindStringSubmatch(string(res.Output))
	return m != nil && m[1] != "(none)"
}

// SelectEngine picks the database engine to install. An explicit choice wins
// when apt has it; otherwise mysql, mariadb and default-mysql-server are
// tried in that order.
func (d *PackageDriver) SelectEngine(ctx context.Context, choice string) (Engine, error) {
	switch choice {
	case model.EngineMySQL:
		if d.HasCandidate(ctx, EngineMySQL.ServerPkg) {
			return EngineMySQL, nil
		}
		d.logger.Warn().Str("engine", choice).Msg("requested engine has no install candidate, falling back")
	case model.EngineMariaDB:
		if d.HasCandidate(ctx, EngineMariaDB.ServerPkg) {
			return EngineMariaDB, nil
		}
		d.logger.Warn().Str("engine", choice).Msg("requested engine has no install candidate, falling back")
	}
	for _, e := range engineFallback {
		if d.HasCandidate(ctx, e.ServerPkg) {
			return e, nil
		}
	}
	return Engine{}, model.NewDriverFailure("install-"+CapabilityDatabase,
		fmt.Sprintf("no supported database server package found (tried %s, %s, %s)",
			EngineMySQL.ServerPkg, EngineMariaDB.ServerPkg, EngineDefaultMySQL.ServerPkg), nil)
}

// DetectEngine returns the database engine already installed, or "" when
// none is. dpkg status is consulted first, then the client version string.
func (d *PackageDriver) DetectEngine(ctx context.Context) string {
	if d.Installed(ctx, EngineMariaDB.ServerPkg) {
		return model.EngineMariaDB
	}
	if d.Installed(ctx, EngineMySQL.ServerPkg) || d.Installed(ctx, EngineDefaultMySQL.ServerPkg) {
		return model.EngineMySQL
	}
	res, err := d.runner.Run(ctx, execx.Command{Name: "mysql", Args: []string{"--version"}})
	if err != nil {
		return ""
	}
	if strings.Contains(strings.ToLower(string(res.Output)), "mariadb") {
		return model.EngineMariaDB
	}
	return model.EngineMySQL
}

// Packages returns the package set for a capability.
func (d *PackageDriver) Packages(ctx context.Context, spec Spec) ([]string, error) {
	switch spec.Capability {
	case CapabilityWebServer:
		return WebServerPackages, nil
	case CapabilityRuntime:
		return append(append([]string{}, RuntimePackages...), RuntimeExtras...), nil
	case CapabilityCertificate:
		return CertificatePackages, nil
	case CapabilityDatabase:
		e, err := d.SelectEngine(ctx, spec.Engine)
		if err != nil {
			return nil, err
		}
		return []string{e.ServerPkg, e.ClientPkg}, nil
	default:
		return nil, model.NewInvalid("unknown capability %q", spec.Capability)
	}
}

// Probe reports whether the capability is already installed.
func (d *PackageDriver) Probe(ctx context.Context, spec Spec) (Presence, error) {
	var pkgs []string
	switch spec.Capability {
	case CapabilityDatabase:
		if engine := d.DetectEngine(ctx); engine != "" {
			return Presence{Exists: true, Detail: engine + " installed"}, nil
		}
		return Presence{}, nil
	case CapabilityWebServer:
		pkgs = WebServerPackages
	case CapabilityRuntime:
		pkgs = RuntimePackages
	case CapabilityCertificate:
		pkgs = CertificatePackages
	default:
		return Presence{}, model.NewInvalid("unknown capability %q", spec.Capability)
	}
	var missing []string
	for _, p := range pkgs {
		if !d.Installed(ctx, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return Presence{Detail: "missing " + strings.Join(missing, " ")}, nil
	}
	return Presence{Exists: true, Detail: strings.Join(pkgs, " ") + " installed"}, nil
}

// Refresh runs apt-get update behind the lock. Later calls are no-ops.
func (d *PackageDriver) Refresh(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "update-package-index"
	if spec.DryRun {
		return wouldDo(step, "run apt-get update"), nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.refreshed {
		return model.Skipped(step, "package index already refreshed"), nil
	}
	if err := d.lock.Acquire(ctx, spec.LockBudget); err != nil {
		return fail(step, err)
	}
	d.logger.Info().Msg("refreshing package index")
	if res, err := d.runner.Run(ctx, execx.Command{Name: "apt-get", Args: []string{"update"}, Env: aptEnv, Stream: true}); err != nil {
		r, e := fail(step, model.NewDriverFailure(step, "apt-get update", err))
		r.Output = string(res.Output)
		return r, e
	}
	d.refreshed = true
	return model.Applied(step, "refreshed package index"), nil
}

// Apply installs the capability's packages unless they are present. The
// package index is refreshed first when that has not happened yet, so the
// database engine is chosen from current candidates.
func (d *PackageDriver) Apply(ctx context.Context, spec Spec) (model.OperationResult, error) {
	step := "install-" + spec.Capability

	p, err := d.Probe(ctx, spec)
	if err != nil {
		return fail(step, err)
	}
	if p.Exists {
		return model.Skipped(step, p.Detail), nil
	}
	if spec.DryRun {
		pkgs, err := d.Packages(ctx, spec)
		if err != nil {
			if model.KindOf(err) == model.KindInvalid {
				return fail(step, err)
			}
			return wouldDo(step, "install the %s packages after apt-get update (%v)", spec.Capability, err), nil
		}
		return wouldDo(step, "apt-get install -y --no-install-recommends %s", strings.Join(pkgs, " ")), nil
	}

	if res, err := d.Refresh(ctx, spec); err != nil {
		res.Step = step
		return res, err
	}
	pkgs, err := d.Packages(ctx, spec)
	if err != nil {
		return fail(step, err)
	}
	if err := d.lock.Acquire(ctx, spec.LockBudget); err != nil {
		return fail(step, err)
	}

	d.logger.Info().Strs("packages", pkgs).Msg("installing packages")
	args := append([]string{"install", "-y", "--no-install-recommends"}, pkgs...)
	if res, err := d.runner.Run(ctx, execx.Command{Name: "apt-get", Args: args, Env: aptEnv, Stream: true}); err != nil {
		r, e := fail(step, model.NewDriverFailure(step, "apt-get install", err))
		r.Output = string(res.Output)
		return r, e
	}
	return model.Applied(step, fmt.Sprintf("installed %s", strings.Join(pkgs, " "))), nil
}

// Remove is not supported for packages.
func (d *PackageDriver) Remove(_ context.Context, spec Spec) (model.OperationResult, error) {
	return model.Skipped("remove-"+spec.Capability, "package removal is not supported"), nil
}
