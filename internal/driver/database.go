package driver

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/execx"
	"github.com/edvin/lampctl/internal/model"
)

// validNameRe matches only alphanumeric characters and underscores.
// This prevents SQL injection in database/user names.
var validNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// userHost is the only host site users are created for.
const userHost = "localhost"

// systemSchemas are hidden from database listings.
var systemSchemas = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"mysql":              true,
	"sys":                true,
}

// systemUsers are hidden from user listings.
var systemUsers = map[string]bool{
	"root":             true,
	"mysql.sys":        true,
	"mysql.session":    true,
	"mysql.infoschema": true,
	"mariadb.sys":      true,
	"debian-sys-maint": true,
}

// DatabaseDriver manages site databases and users via the mysql CLI. SQL is
// fed on stdin and the root password travels in MYSQL_PWD so neither shows
// up in the process list.
type DatabaseDriver struct {
	logger  zerolog.Logger
	runner  execx.Runner
	passEnv string

	mu       sync.Mutex
	resolved string
}

// NewDatabaseDriver creates a DatabaseDriver. passEnv names the environment
// variable holding the root password for password authentication.
func NewDatabaseDriver(logger zerolog.Logger, runner execx.Runner, passEnv string) *DatabaseDriver {
	return &DatabaseDriver{
		logger:  logger.With().Str("component", "database-driver").Logger(),
		runner:  runner,
		passEnv: passEnv,
	}
}

func (d *DatabaseDriver) Kind() Kind { return KindDatabase }

// validateName checks that a name contains only safe characters.
func validateName(name string) error {
	if !validNameRe.MatchString(name) {
		return model.NewInvalid("invalid name %q: only alphanumeric and underscore allowed", name)
	}
	return nil
}

func validateNames(site model.Site) error {
	if err := validateName(site.DBName); err != nil {
		return err
	}
	return validateName(site.DBUser)
}

// quoteSQL escapes s for a single quoted SQL string literal.
func quoteSQL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// command builds a mysql invocation for the given auth mode.
func (d *DatabaseDriver) command(mode, sql string, extra ...string) (execx.Command, error) {
	cmd := execx.Command{Name: "mysql", Stdin: sql}
	switch mode {
	case model.DBAuthSocket:
		cmd.Args = []string{"--protocol=socket", "-u", "root"}
	case model.DBAuthPassword:
		pass := os.Getenv(d.passEnv)
		if pass == "" {
			return execx.Command{}, model.NewInvalid("password authentication requested but %s is not set", d.passEnv)
		}
		cmd.Args = []string{"-u", "root"}
		cmd.Env = []string{"MYSQL_PWD=" + pass}
	default:
		return execx.Command{}, model.NewInvalid("unknown database auth mode %q", mode)
	}
	cmd.Args = append(cmd.Args, extra...)
	return cmd, nil
}

// resolveAuth turns auto into a concrete mode: socket when root can log in
// over the unix socket, password otherwise.
func (d *DatabaseDriver) resolveAuth(ctx context.Context, mode string) (string, error) {
	if mode != "" && mode != model.DBAuthAuto {
		return mode, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved != "" {
		return d.resolved, nil
	}

	cmd, _ := d.command(model.DBAuthSocket, "SELECT 1;", "-N", "-B")
	_, err := d.runner.Run(ctx, cmd)
	if err == nil {
		d.resolved = model.DBAuthSocket
		return d.resolved, nil
	}
	if os.Getenv(d.passEnv) == "" {
		return "", fmt.Errorf("socket authentication failed and %s is not set: %w", d.passEnv, err)
	}
	d.logger.Debug().Msg("socket authentication failed, falling back to password")
	d.resolved = model.DBAuthPassword
	return d.resolved, nil
}

// query runs sql as root and returns the output.
func (d *DatabaseDriver) query(ctx context.Context, auth, sql string) (string, error) {
	mode, err := d.resolveAuth(ctx, auth)
	if err != nil {
		return "", err
	}
	cmd, err := d.command(mode, sql, "-N", "-B")
	if err != nil {
		return "", err
	}
	res, err := d.runner.Run(ctx, cmd)
	if err != nil {
		return "", err
	}
	return string(res.Output), nil
}

// Probe reports whether the database or the user exists.
func (d *DatabaseDriver) Probe(ctx context.Context, spec Spec) (Presence, error) {
	site := spec.Site
	if err := validateNames(site); err != nil {
		return Presence{}, err
	}

	dbOut, err := d.query(ctx, spec.DBRootAuth, fmt.Sprintf("SHOW DATABASES LIKE '%s';", site.DBName))
	if err != nil {
		return Presence{}, fmt.Errorf("look up database %s: %w", site.DBName, err)
	}
	userOut, err := d.query(ctx, spec.DBRootAuth, fmt.Sprintf("SELECT User FROM mysql.user WHERE User = '%s';", site.DBUser))
	if err != nil {
		return Presence{}, fmt.Errorf("look up user %s: %w", site.DBUser, err)
	}

	dbExists := containsLine(dbOut, site.DBName)
	userExists := containsLine(userOut, site.DBUser)
	var found []string
	if dbExists {
		found = append(found, "database "+site.DBName)
	}
	if userExists {
		found = append(found, "user "+site.DBUser)
	}
	return Presence{Exists: dbExists || userExists, Detail: strings.Join(found, ", ")}, nil
}

// Apply creates the database and a user whose privileges are scoped to it.
// It refuses when either already exists.
func (d *DatabaseDriver) Apply(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "database"
	site := spec.Site
	if err := validateNames(site); err != nil {
		return fail(step, err)
	}
	action := fmt.Sprintf("create database %s and user '%s'@'%s'", site.DBName, site.DBUser, userHost)

	p, err := d.Probe(ctx, spec)
	if err != nil {
		return probeFailed(step, action, "probe database", spec, err)
	}
	if p.Exists {
		return fail(step, model.NewAlreadyExists("%s already exists", p.Detail))
	}
	if spec.DryRun {
		return wouldDo(step, "%s", action), nil
	}

	d.logger.Info().
		Str("database", site.DBName).
		Str("username", site.DBUser).
		Msg("creating database and user")

	sql := strings.Join([]string{
		fmt.Sprintf("CREATE DATABASE `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci;", site.DBName),
		fmt.Sprintf("CREATE USER '%s'@'%s' IDENTIFIED BY '%s';", site.DBUser, userHost, quoteSQL(spec.DBPassword)),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON `%s`.* TO '%s'@'%s';", site.DBName, site.DBUser, userHost),
		"FLUSH PRIVILEGES;",
	}, "\n")
	if _, err := d.query(ctx, spec.DBRootAuth, sql); err != nil {
		return fail(step, model.NewDriverFailure(step, "create database and user", err))
	}
	return model.Applied(step, fmt.Sprintf("created database %s and user %s", site.DBName, site.DBUser)), nil
}

// Remove drops the database and its user. Nothing is dropped unless the
// caller set Confirmed.
func (d *DatabaseDriver) Remove(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "drop-database"
	site := spec.Site

	if !spec.Confirmed {
		return model.Skipped(step, fmt.Sprintf("kept database %s: removal not confirmed", site.DBName)), nil
	}
	if err := validateNames(site); err != nil {
		return fail(step, err)
	}
	p, err := d.Probe(ctx, spec)
	if err != nil {
		action := fmt.Sprintf("drop database %s and user %s", site.DBName, site.DBUser)
		return probeFailed(step, action, "probe database", spec, err)
	}
	if !p.Exists {
		return model.Skipped(step, fmt.Sprintf("database %s and user %s do not exist", site.DBName, site.DBUser)), nil
	}
	if spec.DryRun {
		return wouldDo(step, "drop %s", p.Detail), nil
	}

	d.logger.Info().
		Str("database", site.DBName).
		Str("username", site.DBUser).
		Msg("dropping database and user")

	sql := strings.Join([]string{
		fmt.Sprintf("DROP DATABASE IF EXISTS `%s`;", site.DBName),
		fmt.Sprintf("DROP USER IF EXISTS '%s'@'%s';", site.DBUser, userHost),
		"FLUSH PRIVILEGES;",
	}, "\n")
	if _, err := d.query(ctx, spec.DBRootAuth, sql); err != nil {
		return fail(step, model.NewDriverFailure(step, "drop database and user", err))
	}
	return model.Applied(step, "dropped "+p.Detail), nil
}

// Root authentication plugins accepted for MySQL.
const (
	PluginNativePassword = "mysql_native_password"
	PluginCachingSHA2    = "caching_sha2_password"
)

// rootPasswordSQL builds the statement that gives root a password. MariaDB
// keeps unix_socket working next to the password.
func rootPasswordSQL(engine, plugin, password string) string {
	if engine == model.EngineMariaDB {
		return fmt.Sprintf("ALTER USER 'root'@'localhost' IDENTIFIED VIA unix_socket OR mysql_native_password USING PASSWORD('%s');\nFLUSH PRIVILEGES;", quoteSQL(password))
	}
	if plugin == "" {
		plugin = PluginCachingSHA2
	}
	return fmt.Sprintf("ALTER USER 'root'@'localhost' IDENTIFIED WITH %s BY '%s';\nFLUSH PRIVILEGES;", plugin, quoteSQL(password))
}

// engine reports which server the mysql client talks to, falling back to
// fallback when the client is missing or ambiguous.
func (d *DatabaseDriver) engine(ctx context.Context, fallback string) string {
	res, err := d.runner.Run(ctx, execx.Command{Name: "mysql", Args: []string{"--version"}})
	if err == nil {
		if strings.Contains(strings.ToLower(string(res.Output)), "mariadb") {
			return model.EngineMariaDB
		}
		return model.EngineMySQL
	}
	if fallback == model.EngineMariaDB {
		return model.EngineMariaDB
	}
	return model.EngineMySQL
}

// SetRootPassword sets the root password from the variable named by
// spec.RootPassEnv over the unix socket. It is skipped when the variable is
// unset or root already accepts that password.
func (d *DatabaseDriver) SetRootPassword(ctx context.Context, spec Spec) (model.OperationResult, error) {
	const step = "set-db-root-password"
	if spec.RootPassEnv == "" {
		return model.Skipped(step, "skipping database root password: no variable named"), nil
	}
	pass := os.Getenv(spec.RootPassEnv)
	if pass == "" {
		return model.Skipped(step, fmt.Sprintf("skipping database root password: %s is not set", spec.RootPassEnv)), nil
	}
	engine := d.engine(ctx, spec.Engine)
	if spec.DryRun {
		return wouldDo(step, "set the %s root password from %s", engine, spec.RootPassEnv), nil
	}

	probe := execx.Command{Name: "mysql", Args: []string{"-u", "root", "-N", "-B"}, Env: []string{"MYSQL_PWD=" + pass}, Stdin: "SELECT 1;"}
	if _, err := d.runner.Run(ctx, probe); err == nil {
		return model.Skipped(step, "root already accepts the password from "+spec.RootPassEnv), nil
	}

	d.logger.Info().Str("engine", engine).Str("env", spec.RootPassEnv).Msg("setting database root password")
	cmd, _ := d.command(model.DBAuthSocket, rootPasswordSQL(engine, spec.RootPlugin, pass))
	if _, err := d.runner.Run(ctx, cmd); err != nil {
		return fail(step, model.NewDriverFailure(step, "set root password", err))
	}
	d.mu.Lock()
	d.resolved = ""
	d.mu.Unlock()
	return model.Applied(step, fmt.Sprintf("set the %s root password from %s", engine, spec.RootPassEnv)), nil
}

// ListDatabases returns the user databases, system schemas excluded.
func (d *DatabaseDriver) ListDatabases(ctx context.Context, auth string) ([]string, error) {
	out, err := d.query(ctx, auth, "SHOW DATABASES;")
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || systemSchemas[name] {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// DBUser is one account from mysql.user.
type DBUser struct {
	User string
	Host string
}

// ListUsers returns the non-system accounts.
func (d *DatabaseDriver) ListUsers(ctx context.Context, auth string) ([]DBUser, error) {
	out, err := d.query(ctx, auth, "SELECT User, Host FROM mysql.user ORDER BY User, Host;")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var users []DBUser
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(fields) != 2 || fields[0] == "" || systemUsers[fields[0]] {
			continue
		}
		users = append(users, DBUser{User: fields[0], Host: fields[1]})
	}
	return users, nil
}

func containsLine(out, want string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}
