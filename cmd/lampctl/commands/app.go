package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/lampctl/internal/config"
	"github.com/edvin/lampctl/internal/driver"
	"github.com/edvin/lampctl/internal/execx"
	"github.com/edvin/lampctl/internal/lock"
	"github.com/edvin/lampctl/internal/logging"
	"github.com/edvin/lampctl/internal/metrics"
	"github.com/edvin/lampctl/internal/model"
	"github.com/edvin/lampctl/internal/platform"
	"github.com/edvin/lampctl/internal/preflight"
	"github.com/edvin/lampctl/internal/site"
)

// app is everything one invocation needs, wired from config and flags.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	metrics     *metrics.Recorder
	orch        *site.Orchestrator
	out         io.Writer
	metricsFile string
	secrets     []string
}

// newApp loads the configuration and wires the drivers for command.
// secrets are scrubbed from every log line.
func (g *globalFlags) newApp(cmd *cobra.Command, command string, secrets ...string) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, &model.Error{Kind: model.KindInvalid, Message: "load config", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &model.Error{Kind: model.KindInvalid, Message: "validate config", Err: err}
	}

	if root := os.Getenv(cfg.DBRootPassEnv); root != "" {
		secrets = append(secrets, root)
	}
	g.secrets = append(g.secrets, secrets...)

	errOut := cmd.ErrOrStderr()
	runID := platform.NewRunID()
	logger := logging.NewLogger(cfg, logging.Options{
		Command: command,
		RunID:   runID,
		Verbose: g.verbose,
		Secrets: secrets,
		Out:     errOut,
	})

	runner := execx.NewExecRunner(logger)
	if g.verbose {
		runner.Live = errOut
		runner.UsePTY = true
	}

	rec := metrics.NewRecorder()
	coordinator := lock.NewCoordinator(logger, lock.NewCommandDetector(runner, cfg.LockPaths), cfg.LockPollInterval, cfg.LockCeiling, rec)
	coordinator.OnProgress = func(s model.LockWaitState) {
		holder := "another process"
		if s.HolderPID > 0 {
			holder = fmt.Sprintf("pid %d", s.HolderPID)
			if s.HolderCmd != "" {
				holder += " (" + s.HolderCmd + ")"
			}
		}
		fmt.Fprintf(errOut, "Waiting for the package manager lock held by %s, %s left\n", holder, s.Remaining.Round(time.Second))
	}

	svc := driver.NewServiceManager(logger, runner, cfg.InitSystem)
	cms := driver.NewCMSInstaller(logger, driver.NewSourceFetcher(logger, cfg), cfg.CMSArchiveURL)
	drivers := map[driver.Kind]driver.Driver{
		driver.KindPackage:     driver.NewPackageDriver(logger, runner, coordinator),
		driver.KindHosts:       driver.NewHostsDriver(logger, cfg.HostsFile, cfg.HostsIP),
		driver.KindVhost:       driver.NewVhostDriver(logger, cfg, runner, svc),
		driver.KindWebroot:     driver.NewWebrootDriver(logger, cfg, runner, cms),
		driver.KindDatabase:    driver.NewDatabaseDriver(logger, runner, cfg.DBRootPassEnv),
		driver.KindCertificate: driver.NewCertificateDriver(logger, cfg, runner),
	}

	orch := site.New(logger, cfg, drivers, preflight.NewCapturer(cfg, runner), rec,
		newConfirmer(g, errOut),
		site.Options{RunID: runID, DryRun: g.dryRun, NonInteractive: g.nonInteractive},
	)

	metricsFile := g.metricsFile
	if metricsFile == "" {
		metricsFile = cfg.MetricsFile
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		metrics:     rec,
		orch:        orch,
		out:         cmd.OutOrStdout(),
		metricsFile: metricsFile,
		secrets:     secrets,
	}, nil
}

// context bounds the whole run by the configured command timeout plus
// extra, which covers waits the operator asked for explicitly.
func (a *app) context(parent context.Context, extra time.Duration) (context.Context, context.CancelFunc) {
	if a.cfg.CommandTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, a.cfg.CommandTimeout+extra)
}

// close flushes the metrics textfile.
func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.metricsFile); err != nil {
		a.logger.Warn().Err(err).Str("path", a.metricsFile).Msg("writing metrics textfile failed")
	}
}

// report prints the execution report and passes err through.
func (a *app) report(r *model.ExecutionReport, err error) error {
	site.RenderReport(a.out, r, a.secrets...)
	return err
}
