// Package commands implements the lampctl command line.
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/edvin/lampctl/internal/logging"
	"github.com/edvin/lampctl/internal/model"
)

// Streams are the process standard streams.
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// BuildInfo is stamped into the binary at build time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath     string
	metricsFile    string
	dryRun         bool
	verbose        bool
	nonInteractive bool
	yes            bool
	removeDB       bool

	// started is set once flags and arguments were accepted.
	started bool

	// in is shared by every prompt so buffered input is never lost.
	in *bufio.Reader

	// secrets are masked in everything printed to the operator.
	secrets []string
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, streams Streams, info BuildInfo) int {
	g := &globalFlags{}
	if streams.In != nil {
		g.in = bufio.NewReader(streams.In)
	}
	root := newRootCommand(g, info)
	root.SetArgs(args)
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.Err)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return model.ExitOK
	}
	if errors.Is(err, model.ErrConfirmationDeclined) {
		fmt.Fprintln(streams.Err, "Aborted:", logging.Redact(err.Error(), g.secrets...))
		return model.ExitOK
	}
	fmt.Fprintln(streams.Err, "Error:", logging.Redact(err.Error(), g.secrets...))
	if !g.started {
		// Unknown commands, bad flags and wrong argument counts.
		return model.ExitError
	}
	return model.ExitCode(err)
}

func newRootCommand(g *globalFlags, info BuildInfo) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lampctl",
		Short: "Provision and tear down LAMP sites on a single host",
		Long: `lampctl manages Apache virtual hosts, hosts file entries, document roots,
MySQL/MariaDB databases, WordPress payloads and Let's Encrypt certificates
on one Ubuntu machine.

Every command runs preflight checks first. With --dry-run nothing is
changed and the plan is printed instead.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		g.started = true
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file path (default /etc/lampctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&g.dryRun, "dry-run", false, "print the plan without changing anything")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "debug logging and live output of apt and certbot")
	rootCmd.PersistentFlags().BoolVar(&g.nonInteractive, "non-interactive", false, "never prompt; unanswered questions are declined")
	rootCmd.PersistentFlags().BoolVarP(&g.yes, "yes", "y", false, "confirm site removal without prompting")
	rootCmd.PersistentFlags().BoolVar(&g.removeDB, "remove-db", false, "confirm database removal without prompting")
	rootCmd.PersistentFlags().StringVar(&g.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	rootCmd.AddCommand(newInstallLAMPCommand(g))
	rootCmd.AddCommand(newCreateSiteCommand(g))
	rootCmd.AddCommand(newUninstallSiteCommand(g))
	rootCmd.AddCommand(newListSitesCommand(g))
	rootCmd.AddCommand(newGenerateSSLCommand(g))
	rootCmd.AddCommand(newWPPermissionsCommand(g))
	rootCmd.AddCommand(newListDatabasesCommand(g))
	rootCmd.AddCommand(newListDBUsersCommand(g))

	return rootCmd
}
