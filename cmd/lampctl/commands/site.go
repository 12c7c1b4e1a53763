package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/edvin/lampctl/internal/model"
	"github.com/edvin/lampctl/internal/preflight"
	"github.com/edvin/lampctl/internal/request"
	"github.com/edvin/lampctl/internal/site"
)

// passwordEnv is read when --db-password is not given.
const passwordEnv = "LAMPCTL_DB_PASSWORD"

type siteFlags struct {
	docRoot    string
	dbName     string
	dbUser     string
	dbPassword string
	dbRootAuth string
	wordpress  bool
	cmsSource  string
}

func (f *siteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.docRoot, "doc-root", "", "document root (default <web_root>/<domain>)")
	cmd.Flags().StringVar(&f.dbName, "db-name", "", "database name")
	cmd.Flags().StringVar(&f.dbUser, "db-user", "", "database user")
	cmd.Flags().StringVar(&f.dbRootAuth, "db-root-auth", model.DBAuthAuto, "database root authentication: auto, socket or password")
}

func (f *siteFlags) resolveDocRoot(webRoot, domain string) string {
	if f.docRoot == "" {
		return filepath.Join(webRoot, domain)
	}
	return f.docRoot
}

func newCreateSiteCommand(g *globalFlags) *cobra.Command {
	f := &siteFlags{}
	cmd := &cobra.Command{
		Use:   "create-site <domain>",
		Short: "Create a site: hosts entry, virtual host, document root and database",
		Long: `Create a site for <domain>.

The steps run in order and the first failure stops the run:
hosts entry, virtual host, document root (with WordPress when --wordpress
is set), database and user, permissions, web server reload.

A failed run is not rolled back. The report lists the applied steps and
how to undo each of them.`,
		Example: `  lampctl create-site shop.test --db-name shop_db --db-user shop_user --db-password 'S3cret!'
  lampctl create-site blog.test --wordpress --db-name blog --db-user blog --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			password := f.dbPassword
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				password = promptLine(g, cmd.ErrOrStderr(), "Password for database user "+f.dbUser)
			}

			a, err := g.newApp(cmd, preflight.CommandCreateSite, password)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.context(cmd.Context(), 0)
			defer cancel()

			return a.report(a.orch.Create(ctx, request.CreateSite{
				Domain:     domain,
				DocRoot:    f.resolveDocRoot(a.cfg.WebRoot, domain),
				DBName:     f.dbName,
				DBUser:     f.dbUser,
				DBPassword: password,
				WordPress:  f.wordpress,
				CMSSource:  f.cmsSource,
				DBRootAuth: f.dbRootAuth,
			}))
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.dbPassword, "db-password", "", "database user password (or set "+passwordEnv+")")
	cmd.Flags().BoolVar(&f.wordpress, "wordpress", false, "install WordPress into the document root")
	cmd.Flags().StringVar(&f.cmsSource, "cms-source", "", "WordPress archive URL, s3:// URI or local path (default cms_archive_url from config)")
	return cmd
}

func newUninstallSiteCommand(g *globalFlags) *cobra.Command {
	f := &siteFlags{}
	cmd := &cobra.Command{
		Use:   "uninstall-site <domain>",
		Short: "Remove a site and, when confirmed, its database",
		Long: `Remove the site for <domain>: certificate, virtual host, logs, hosts
entry and document root. The database and user are dropped only when that
is confirmed separately (--remove-db or the prompt).`,
		Example: `  lampctl uninstall-site shop.test --db-name shop_db --db-user shop_user
  lampctl uninstall-site shop.test --db-name shop_db --db-user shop_user --yes --remove-db --non-interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			a, err := g.newApp(cmd, preflight.CommandUninstallSite)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.context(cmd.Context(), 0)
			defer cancel()

			return a.report(a.orch.Uninstall(ctx, request.UninstallSite{
				Domain:     domain,
				DocRoot:    f.resolveDocRoot(a.cfg.WebRoot, domain),
				DBName:     f.dbName,
				DBUser:     f.dbUser,
				DBRootAuth: f.dbRootAuth,
			}))
		},
	}
	f.register(cmd)
	return cmd
}

func newListSitesCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-sites",
		Short: "List the sites configured on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.newApp(cmd, preflight.CommandListSites)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.context(cmd.Context(), 0)
			defer cancel()

			sites, err := a.orch.List(ctx)
			if err != nil {
				return err
			}
			site.RenderSites(a.out, sites)
			return nil
		},
	}
}

func newGenerateSSLCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-ssl <domain>",
		Short: "Request a Let's Encrypt certificate for an existing site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd, preflight.CommandGenerateSSL)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.context(cmd.Context(), 0)
			defer cancel()

			return a.report(a.orch.GenerateSSL(ctx, request.GenerateSSL{Domain: args[0]}))
		},
	}
}

func newWPPermissionsCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "wp-permissions <path>",
		Short: "Reset ownership and modes of a WordPress installation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.newApp(cmd, preflight.CommandWPPermissions)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, cancel := a.context(cmd.Context(), 0)
			defer cancel()

			return a.report(a.orch.WPPermissions(ctx, request.WPPermissions{Path: args[0]}))
		},
	}
}
