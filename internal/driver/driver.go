// Package driver holds the resource drivers that probe, apply and remove
// the host resources making up a site.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/lampctl/internal/model"
)

// Kind names a resource driver.
type Kind string

// Driver kinds.
const (
	KindVhost       Kind = "vhost"
	KindHosts       Kind = "hosts"
	KindWebroot     Kind = "webroot"
	KindDatabase    Kind = "database"
	KindCertificate Kind = "certificate"
	KindPackage     Kind = "package"
)

// Spec is the desired state handed to a driver. Each driver reads only the
// fields relevant to its resource.
type Spec struct {
	Site model.Site

	// DBPassword is the password for the site database user.
	DBPassword string
	// DBRootAuth selects how the database driver authenticates as root.
	DBRootAuth string

	// CMSSource overrides the configured CMS archive location.
	CMSSource string

	// RootPassEnv names the variable holding the root password to set
	// after install; RootPlugin is the MySQL authentication plugin for it.
	RootPassEnv string
	RootPlugin  string

	// Capability and Engine drive the package driver.
	Capability string
	Engine     string
	LockBudget time.Duration

	// Confirmed must be set by the caller before destructive database
	// removal is performed.
	Confirmed bool
	DryRun    bool
}

// Presence is what a probe found.
type Presence struct {
	Exists bool
	Detail string
}

// Driver manages one kind of host resource. Apply and Remove return the
// outcome together with any error; a dry-run never mutates and yields a
// skipped result describing what would happen. Probes are read-only and
// also run during dry-run.
type Driver interface {
	Kind() Kind
	Probe(ctx context.Context, spec Spec) (Presence, error)
	Apply(ctx context.Context, spec Spec) (model.OperationResult, error)
	Remove(ctx context.Context, spec Spec) (model.OperationResult, error)
}

// Reloader is implemented by drivers that front a long running service.
type Reloader interface {
	Reload(ctx context.Context, spec Spec) (model.OperationResult, error)
}

// LogRemover is implemented by drivers that leave log files behind.
type LogRemover interface {
	RemoveLogs(ctx context.Context, spec Spec) (model.OperationResult, error)
}

// Normalizer is implemented by drivers that enforce a permission policy.
type Normalizer interface {
	Normalize(ctx context.Context, spec Spec) (model.OperationResult, error)
}

// RootPasswordSetter is implemented by drivers that secure the database
// root account.
type RootPasswordSetter interface {
	SetRootPassword(ctx context.Context, spec Spec) (model.OperationResult, error)
}

// Refresher is implemented by drivers that keep a local package index.
type Refresher interface {
	Refresh(ctx context.Context, spec Spec) (model.OperationResult, error)
}

// Lister is implemented by drivers that can rebuild the site inventory.
type Lister interface {
	List(ctx context.Context) ([]model.Site, error)
}

func wouldDo(step, format string, args ...any) model.OperationResult {
	return model.Skipped(step, "would "+fmt.Sprintf(format, args...))
}

func fail(step string, err error) (model.OperationResult, error) {
	return model.Failed(step, err), err
}

// probeFailed turns a probe error into the step outcome. A dry-run cannot
// rely on a complete host, so there the step is reported as skipped with
// the probe problem attached and the plan goes on. Otherwise the error
// fails the step, keeping validation errors as they are.
func probeFailed(step, action, what string, spec Spec, err error) (model.OperationResult, error) {
	if spec.DryRun {
		return wouldDo(step, "%s (%s failed: %v)", action, what, err), nil
	}
	if model.KindOf(err) == model.KindInvalid {
		return fail(step, err)
	}
	return fail(step, model.NewDriverFailure(step, what, err))
}
