// Package preflight inspects the host before any mutation and classifies
// missing prerequisites as blocking or advisory.
package preflight

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/driver"
	"github.com/edvin/lampctl/internal/execx"
)

// Binaries probed for every snapshot.
var Binaries = []string{
	"apache2", "a2ensite", "mysql", "php", "certbot",
	"apt-get", "dpkg-query", "systemctl",
}

// Environment is a point-in-time view of the host. It is captured once per
// invocation and passed along; nothing re-queries the host for the same
// facts afterwards. The accessors never mutate it.
type Environment struct {
	binaries map[string]bool
	paths    map[string]bool
	writable map[string]bool

	IsRoot    bool
	OSID      string
	OSVersion string
	// PasswordRequired is set when password DB root authentication was
	// requested non-interactively; PasswordPresent when the value is set.
	PasswordRequired bool
	PasswordPresent  bool
	CapturedAt       time.Time
}

// NewEnvironment builds an Environment from explicit facts. Every listed
// binary and path is treated as present; writable lists writable paths.
func NewEnvironment(binaries, paths, writable []string) Environment {
	env := Environment{
		binaries:   map[string]bool{},
		paths:      map[string]bool{},
		writable:   map[string]bool{},
		CapturedAt: time.Now(),
	}
	for _, b := range binaries {
		env.binaries[b] = true
	}
	for _, p := range paths {
		env.paths[filepath.Clean(p)] = true
	}
	for _, p := range writable {
		env.writable[filepath.Clean(p)] = true
	}
	return env
}

// HasBinary reports whether name was found on PATH.
func (e Environment) HasBinary(name string) bool { return e.binaries[name] }

// Exists reports whether path existed at capture time.
func (e Environment) Exists(path string) bool { return e.paths[filepath.Clean(path)] }

// Writable reports whether path was writable at capture time.
func (e Environment) Writable(path string) bool { return e.writable[filepath.Clean(path)] }

// Request lists what a snapshot must look at beyond the fixed binaries.
type Request struct {
	Domain  string
	DocRoot string
	// DBRootAuth and PasswordEnv drive the password presence check.
	DBRootAuth     string
	PasswordEnv    string
	NonInteractive bool
}

// Capturer takes Environment snapshots.
type Capturer struct {
	cfg    *config.Config
	runner execx.Runner
	// OSRelease is read for the distribution check.
	OSRelease string
}

// NewCapturer creates a Capturer.
func NewCapturer(cfg *config.Config, runner execx.Runner) *Capturer {
	return &Capturer{cfg: cfg, runner: runner, OSRelease: "/etc/os-release"}
}

// Paths returns the filesystem paths a snapshot records for req.
func (c *Capturer) Paths(req Request) (exists, writable []string) {
	exists = []string{
		filepath.Dir(c.cfg.SitesAvailable),
		c.cfg.SitesAvailable,
		c.cfg.SitesEnabled,
		c.cfg.WebRoot,
		c.cfg.HostsFile,
	}
	if req.Domain != "" {
		exists = append(exists,
			filepath.Join(c.cfg.SitesAvailable, req.Domain+".conf"),
			filepath.Join(c.cfg.SitesEnabled, req.Domain+".conf"),
		)
	}
	if req.DocRoot != "" {
		exists = append(exists, req.DocRoot)
		for _, m := range driver.CMSMarkers {
			exists = append(exists, filepath.Join(req.DocRoot, m))
		}
	}
	writable = []string{c.cfg.HostsFile, c.cfg.WebRoot}
	return exists, writable
}

// Capture probes binaries and paths concurrently and returns the snapshot.
func (c *Capturer) Capture(ctx context.Context, req Request) (Environment, error) {
	exists, writable := c.Paths(req)
	env := NewEnvironment(nil, nil, nil)

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, bin := range Binaries {
		g.Go(func() error {
			_, err := c.runner.LookPath(bin)
			mu.Lock()
			env.binaries[bin] = err == nil
			mu.Unlock()
			return nil
		})
	}
	for _, p := range exists {
		g.Go(func() error {
			_, err := os.Stat(p)
			mu.Lock()
			env.paths[filepath.Clean(p)] = err == nil
			mu.Unlock()
			return nil
		})
	}
	for _, p := range writable {
		g.Go(func() error {
			ok := unix.Access(p, unix.W_OK) == nil
			mu.Lock()
			env.writable[filepath.Clean(p)] = ok
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		id, version := readOSRelease(c.OSRelease)
		mu.Lock()
		env.OSID, env.OSVersion = id, version
		mu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return Environment{}, err
	}

	env.IsRoot = os.Geteuid() == 0
	if req.DBRootAuth == "password" && req.NonInteractive {
		env.PasswordRequired = true
	}
	if req.PasswordEnv != "" {
		env.PasswordPresent = os.Getenv(req.PasswordEnv) != ""
	}
	env.CapturedAt = time.Now()
	return env, nil
}

var (
	osIDRe      = regexp.MustCompile(`(?m)^ID="?([^"\n]*)"?$`)
	osVersionRe = regexp.MustCompile(`(?m)^VERSION_ID="?([^"\n]*)"?$`)
)

func readOSRelease(path string) (id, version string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", ""
	}
	if m := osIDRe.FindSubmatch(data); m != nil {
		id = string(m[1])
	}
	if m := osVersionRe.FindSubmatch(data); m != nil {
		version = string(m[1])
	}
	return id, version
}
