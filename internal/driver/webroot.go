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
	"github.com/edvin/lampctl/internal/platform"
)

// Permission policy applied by Normalize.
const (
	DirMode          fs.FileMode = 0o755
	FileMode         fs.FileMode = 0o644
	WritableDirMode  fs.FileMode = 0o775
	WritableFileMode fs.FileMode = 0o664
	SecretFileMode   fs.FileMode = 0o640
)

// writableDir is the CMS directory the web server writes uploads into.
const writableDir = "wp-content"

// secretFile holds database credentials.
const secretFile = "wp-config.php"

// WebrootDriver manages document root directories below the web root,
// including the optional CMS payload and its permission policy.
type WebrootDriver struct {
	logger  zerolog.Logger
	runner  execx.Runner
	cms     *CMSInstaller
	webRoot string
	owner   string
}

// NewWebrootDriver creates a WebrootDriver.
func NewWebrootDriver(logger zerolog.Logger, cfg *config.Config, runner execx.Runner, cms *CMSInstaller) *WebrootDriver {
	return &WebrootDriver{
		logger:  logger.With().Str("component", "webroot-driver").Logger(),
		runner:  runner,
		cms:     cms,
		webRoot: cfg.WebRoot,
		owner:   cfg.WebOwner,
	}
}

func (d *WebrootDriver) Kind() Kind { return KindWebroot }

// checkPath refuses document roots outside the web root.
func (d *WebrootDriver) checkPath(docRoot string) error {
	if !platform.IsChildPath(d.webRoot, docRoot) {
		return model.NewInvalid("document root %s is not below web root %s", docRoot, d.webRoot)
	}
	return nil
}

// Probe reports whether the document root exists and whether it already
// carries the CMS.
func (d *WebrootDriver) Probe(_ context.Context, spec Spec) (Presence, error) {
	docRoot := spec.Site.DocRoot
	fi, err := os.Stat(docRoot)
	if errors.Is(err, fs.ErrNotExist) {
		return Presence{Detail: docRoot}, nil
	}
	if err != nil {
		return Presence{}, fmt.Errorf("stat %s: %w", docRoot, err)
	}
	if !fi.IsDir() {
		return Presence{}, fmt.Errorf("%s exists and is not a directory", docRoot)
	}
	detail := docRoot
	if hasCMSMarkers(docRoot) {
		detail += " (cms)"
	}
	return Presence{Exists: true, Detail: detail}, nil
}

// Apply creates the document root and, when the site runs the CMS, unpacks
// it and writes its configuration.
func (d *WebrootDriver) Apply(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "docroot"
	site := spec.Site

	if err := d.checkPath(site.DocRoot); err != nil {
		return fail(step, err)
	}
	p, err := d.Probe(ctx, spec)
	if err != nil {
		return probeFailed(step, "create "+site.DocRoot, "probe document root", spec, err)
	}
	cmsPresent := p.Exists && hasCMSMarkers(site.DocRoot)

	if spec.DryRun {
		action := "create " + site.DocRoot
		if p.Exists {
			action = "reuse " + site.DocRoot
		}
		if site.CMS && !cmsPresent {
			action += " and install the CMS from " + d.cms.Source(spec.CMSSource)
		}
		return wouldDo(step, "%s", action), nil
	}

	var done []string
	changed := false
	if p.Exists {
		done = append(done, site.DocRoot+" already exists")
	} else {
		d.logger.Info().Str("doc_root", site.DocRoot).Msg("creating document root")
		if err := os.MkdirAll(site.DocRoot, DirMode); err != nil {
			return fail(step, model.NewDriverFailure(step, "create document root", err))
		}
		done = append(done, "created "+site.DocRoot)
		changed = true
	}

	if site.CMS {
		if cmsPresent {
			done = append(done, "CMS already present")
		} else {
			err := d.cms.Install(ctx, site.DocRoot, spec.CMSSource, DBSettings{
				Name:     site.DBName,
				User:     site.DBUser,
				Password: spec.DBPassword,
			})
			if errors.Is(err, ErrFetchTimeout) {
				return fail(step, model.NewTimeout(step, "fetch CMS archive", err))
			}
			if err != nil {
				return fail(step, model.NewDriverFailure(step, "install CMS", err))
			}
			done = append(done, "installed CMS")
			changed = true
		}
	}

	if !changed {
		return model.Skipped(step, strings.Join(done, "; ")), nil
	}
	return model.Applied(step, strings.Join(done, "; ")), nil
}

// Normalize applies the permission policy: directories 755 and files 644,
// the CMS upload tree 775/664, the CMS config file 640. Ownership moves to
// the configured web owner when one is set.
func (d *WebrootDriver) Normalize(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "permissions"
	docRoot := spec.Site.DocRoot

	if spec.DryRun {
		return wouldDo(step, "set ownership %s and modes 755/644 under %s", d.owner, docRoot), nil
	}
	if _, err := os.Stat(docRoot); err != nil {
		return fail(step, model.NewNotFound("document root %s: %v", docRoot, err))
	}

	if d.owner != "" {
		owner := d.owner + ":" + d.owner
		if _, err := d.runner.Run(ctx, execx.Command{Name: "chown", Args: []string{"-R", owner, docRoot}}); err != nil {
			return fail(step, model.NewDriverFailure(step, "chown "+docRoot, err))
		}
	}

	n, err := ApplyPermissions(docRoot)
	if err != nil {
		return fail(step, model.NewDriverFailure(step, "chmod "+docRoot, err))
	}
	d.logger.Info().Str("doc_root", docRoot).Int("entries", n).Msg("permissions normalized")
	return model.Applied(step, fmt.Sprintf("normalized %d entries under %s", n, docRoot)), nil
}

// ApplyPermissions walks root and sets every mode according to the policy.
// Symlinks are left untouched. It returns the number of entries changed.
func ApplyPermissions(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		mode := policyMode(root, path, e.IsDir())
		if err := os.Chmod(path, mode); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func policyMode(root, path string, dir bool) fs.FileMode {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	if !dir && rel == secretFile {
		return SecretFileMode
	}
	if rel == writableDir || strings.HasPrefix(rel, writableDir+"/") {
		if dir {
			return WritableDirMode
		}
		return WritableFileMode
	}
	if dir {
		return DirMode
	}
	return FileMode
}

// Remove deletes the document root recursively.
func (d *WebrootDriver) Remove(_ context.Context, spec Spec) (model.OperationResult, error) {
	const step = "remove-docroot"
	docRoot := spec.Site.DocRoot

	if err := d.checkPath(docRoot); err != nil {
		return fail(step, err)
	}
	if _, err := os.Stat(docRoot); errors.Is(err, fs.ErrNotExist) {
		return model.Skipped(step, docRoot+" does not exist"), nil
	}
	if spec.DryRun {
		return wouldDo(step, "delete %s recursively", docRoot), nil
	}

	d.logger.Info().Str("doc_root", docRoot).Msg("deleting document root")
	if err := os.RemoveAll(docRoot); err != nil {
		return fail(step, model.NewDriverFailure(step, "remove "+docRoot, err))
	}
	return model.Applied(step, "deleted "+docRoot), nil
}
