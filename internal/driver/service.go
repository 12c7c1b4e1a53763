package driver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/execx"
)

// ServiceManager abstracts how the web server is told to re-read its
// configuration so the vhost driver works with or without systemd.
//
// Regular hosts use SystemdManager.
// Containers without an init system use DirectManager.
type ServiceManager interface {
	// Reload asks a service to re-read its configuration.
	Reload(ctx context.Context, unit string) error
	// Restart fully stops and starts a service.
	Restart(ctx context.Context, unit string) error
}

// NewServiceManager picks the manager for the configured init system.
func NewServiceManager(logger zerolog.Logger, runner execx.Runner, initSystem string) ServiceManager {
	if initSystem == config.InitDirect {
		return NewDirectManager(logger, runner)
	}
	return NewSystemdManager(logger, runner)
}

// SystemdManager implements ServiceManager using systemctl.
type SystemdManager struct {
	logger zerolog.Logger
	runner execx.Runner
}

// NewSystemdManager creates a ServiceManager backed by systemd.
func NewSystemdManager(logger zerolog.Logger, runner execx.Runner) *SystemdManager {
	return &SystemdManager{logger: logger.With().Str("svc_mgr", "systemd").Logger(), runner: runner}
}

func (s *SystemdManager) Reload(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "reload", unit)
}

func (s *SystemdManager) Restart(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "restart", unit)
}

func (s *SystemdManager) systemctl(ctx context.Context, args ...string) error {
	if _, err := s.runner.Run(ctx, execx.Command{Name: "systemctl", Args: args}); err != nil {
		return fmt.Errorf("systemctl %v: %w", args, err)
	}
	return nil
}

// DirectManager implements ServiceManager through apachectl, for hosts
// where the web server was started by an entrypoint rather than systemd.
type DirectManager struct {
	logger zerolog.Logger
	runner execx.Runner
}

// NewDirectManager creates a ServiceManager for environments without systemd.
func NewDirectManager(logger zerolog.Logger, runner execx.Runner) *DirectManager {
	return &DirectManager{logger: logger.With().Str("svc_mgr", "direct").Logger(), runner: runner}
}

func (d *DirectManager) Reload(ctx context.Context, unit string) error {
	d.logger.Debug().Str("unit", unit).Msg("reload: apachectl graceful")
	if _, err := d.runner.Run(ctx, execx.Command{Name: "apachectl", Args: []string{"graceful"}}); err != nil {
		return fmt.Errorf("apachectl graceful: %w", err)
	}
	return nil
}

func (d *DirectManager) Restart(ctx context.Context, unit string) error {
	d.logger.Debug().Str("unit", unit).Msg("restart: apachectl restart")
	if _, err := d.runner.Run(ctx, execx.Command{Name: "apachectl", Args: []string{"restart"}}); err != nil {
		return fmt.Errorf("apachectl restart: %w", err)
	}
	return nil
}
