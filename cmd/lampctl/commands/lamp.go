package commands

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/lampctl/internal/model"
	"github.com/edvin/lampctl/internal/preflight"
	"github.com/edvin/lampctl/internal/request"
	"github.com/edvin/lampctl/internal/site"
)

func newInstallLAMPCommand(g *globalFlags) *cobra.Command {
	var (
		engine      string
		passEnv     string
		plugin      string
		waitSeconds int
	)

	cmd := &cobra.Command{
		Use:   "install-lamp",
		Short: "Install Apache, PHP, the database server and certbot",
		Long: `Install the LAMP stack with apt.

Every apt call first waits for the package manager lock. With
--wait-apt-lock 0 a held lock fails the command at once with exit code 2.

When the variable named by --db-root-pass-env (default db_root_pass_env
from the config) is set, its value becomes the database root password.`,
		Example: `  lampctl install-lamp
  lampctl install-lamp --db-engine mariadb --wait-apt-lock 600
  LAMPCTL_DB_ROOT_PASS='S3cret!' lampctl install-lamp --non-interactive --db-root-pass-env LAMPCTL_DB_ROOT_PASS`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var secrets []string
			if passEnv != "" {
				secrets = append(secrets, os.Getenv(passEnv))
			}
			a, err := g.newApp(cmd, preflight.CommandInstallLAMP, secrets...)
			if err != nil {
				return err
			}
			defer a.close()
			waitAptLock := time.Duration(waitSeconds) * time.Second
			ctx, cancel := a.context(cmd.Context(), waitAptLock)
			defer cancel()

			return a.report(a.orch.InstallLAMP(ctx, request.InstallLAMP{
				DBEngine:      engine,
				DBRootPassEnv: passEnv,
				DBRootPlugin:  plugin,
				WaitAptLock:   waitAptLock,
			}))
		},
	}

	cmd.Flags().StringVar(&engine, "db-engine", model.EngineAuto, "database server: auto, mysql or mariadb")
	cmd.Flags().StringVar(&passEnv, "db-root-pass-env", "", "environment variable holding the database root password to set; must be set when named (default from config, optional)")
	cmd.Flags().StringVar(&plugin, "db-root-plugin", "", "MySQL authentication plugin for root: mysql_native_password or caching_sha2_password")
	cmd.Flags().IntVar(&waitSeconds, "wait-apt-lock", 120, "seconds to wait for the package manager lock")
	return cmd
}

func newListDatabasesCommand(g *globalFlags) *cobra.Command {
	var auth string
	cmd := &cobra.Command{
		Use:   "list-databases",
		Short: "List the user databases on the database server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.newApp(cmd, preflight.CommandListDatabases)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.context(cmd.Context(), 0)
			defer cancel()

			names, err := a.orch.ListDatabases(ctx, request.DatabaseQuery{DBRootAuth: auth})
			if err != nil {
				return err
			}
			site.RenderDatabases(a.out, names)
			return nil
		},
	}
	cmd.Flags().StringVar(&auth, "db-root-auth", model.DBAuthAuto, "database root authentication: auto, socket or password")
	return cmd
}

func newListDBUsersCommand(g *globalFlags) *cobra.Command {
	var auth string
	cmd := &cobra.Command{
		Use:   "list-db-users",
		Short: "List the database accounts that are not system users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.newApp(cmd, preflight.CommandListDBUsers)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.context(cmd.Context(), 0)
			defer cancel()

			users, err := a.orch.ListDBUsers(ctx, request.DatabaseQuery{DBRootAuth: auth})
			if err != nil {
				return err
			}
			site.RenderDBUsers(a.out, users)
			return nil
		},
	}
	cmd.Flags().StringVar(&auth, "db-root-auth", model.DBAuthAuto, "database root authentication: auto, socket or password")
	return cmd
}
