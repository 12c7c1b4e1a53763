// Package site sequences the resource drivers into the site lifecycle
// commands: it runs preflight, builds the plan, executes or simulates it
// and aggregates the execution report.
package site

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/driver"
	"github.com/edvin/lampctl/internal/metrics"
	"github.com/edvin/lampctl/internal/model"
	"github.com/edvin/lampctl/internal/preflight"
)

// Questions asked before destructive steps.
const (
	ConfirmRemoveSite = "remove-site"
	ConfirmRemoveDB   = "remove-db"
)

// Confirmer asks the operator a yes/no question. id names the question so
// callers can answer it from flags; prompt is the text shown to a human.
type Confirmer func(id, prompt string) bool

// Always answers every question with yes.
func Always(string, string) bool { return true }

// Never answers every question with no.
func Never(string, string) bool { return false }

// EnvironmentCapturer takes the preflight snapshot.
type EnvironmentCapturer interface {
	Capture(ctx context.Context, req preflight.Request) (preflight.Environment, error)
}

// Options holds the per-invocation switches.
type Options struct {
	RunID          string
	DryRun         bool
	NonInteractive bool
}

// Orchestrator runs the lifecycle commands against a set of drivers.
type Orchestrator struct {
	logger   zerolog.Logger
	cfg      *config.Config
	drivers  map[driver.Kind]driver.Driver
	capturer EnvironmentCapturer
	checker  *preflight.Checker
	metrics  *metrics.Recorder
	confirm  Confirmer
	opts     Options

	now func() time.Time
}

// New creates an Orchestrator. drivers maps each kind to its implementation;
// confirm defaults to Never.
func New(
	logger zerolog.Logger,
	cfg *config.Config,
	drivers map[driver.Kind]driver.Driver,
	capturer EnvironmentCapturer,
	rec *metrics.Recorder,
	confirm Confirmer,
	opts Options,
) *Orchestrator {
	if confirm == nil {
		confirm = Never
	}
	return &Orchestrator{
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		cfg:      cfg,
		drivers:  drivers,
		capturer: capturer,
		checker:  preflight.NewChecker(cfg),
		metrics:  rec,
		confirm:  confirm,
		opts:     opts,
		now:      time.Now,
	}
}

func (o *Orchestrator) driver(kind driver.Kind) (driver.Driver, error) {
	d, ok := o.drivers[kind]
	if !ok || d == nil {
		return nil, model.NewInvalid("no %s driver configured", kind)
	}
	return d, nil
}

func (o *Orchestrator) newReport(command, target string) *model.ExecutionReport {
	return &model.ExecutionReport{
		RunID:     o.opts.RunID,
		Command:   command,
		Target:    target,
		DryRun:    o.opts.DryRun,
		StartedAt: o.now(),
	}
}

func (o *Orchestrator) finish(report *model.ExecutionReport) {
	report.FinishedAt = o.now()
	ev := o.logger.Info()
	if _, failed := report.Failure(); failed {
		ev = o.logger.Error()
	}
	ev.Str("command", report.Command).
		Str("target", report.Target).
		Bool("dry_run", report.DryRun).
		Int("steps", len(report.Results)).
		Strs("not_attempted", report.NotAttempted).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("run finished")
}

// preflight captures the environment, evaluates the command's checks and
// attaches the report. Blocking findings abort unless dry-run.
func (o *Orchestrator) preflight(ctx context.Context, report *model.ExecutionReport, req preflight.Request) error {
	req.NonInteractive = o.opts.NonInteractive
	env, err := o.capturer.Capture(ctx, req)
	if err != nil {
		return fmt.Errorf("capture environment: %w", err)
	}

	pr := o.checker.Check(report.Command, env, req)
	report.Preflight = &pr

	blocking, advisory := pr.Blocking(), pr.Advisory()
	o.metrics.SetPreflight(report.Command, len(blocking), len(advisory))
	for _, f := range advisory {
		o.logger.Warn().Str("check", f.Check).Str("remediation", f.Remediation).Msg("advisory preflight check failed")
	}
	for _, f := range blocking {
		ev := o.logger.Error()
		if o.opts.DryRun {
			ev = o.logger.Warn()
		}
		ev.Str("check", f.Check).Str("remediation", f.Remediation).Msg("blocking preflight check failed")
	}
	return preflight.Enforce(pr, o.opts.DryRun)
}
