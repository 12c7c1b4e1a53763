// Package execx runs the external commands the drivers depend on and keeps
// their combined output for diagnostics.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/logging"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the current environment. Secrets belong here
	// (MYSQL_PWD) rather than on argv.
	Env []string
	// Stdin is fed to the process when non-empty.
	Stdin string
	Dir   string
	// Stream marks slow commands (apt-get, certbot) whose output is echoed
	// live when the runner has a Live writer.
	Stream bool
}

// String renders the command line with password-like arguments masked.
func (c Command) String() string {
	return logging.Redact(strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " ")))
}

// Result is the captured outcome of a command.
type Result struct {
	Output   []byte
	ExitCode int
}

// Runner executes commands. Drivers depend on this interface so tests can
// substitute a Fake.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger zerolog.Logger
	// Live receives output of Stream commands as it is produced.
	Live io.Writer
	// UsePTY runs Stream commands under a pseudo-terminal so tools such as
	// apt-get keep their progress output.
	UsePTY bool
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.With().Str("component", "runner").Logger()}
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run implements Runner. A non-zero exit is returned as an *ExitError that
// carries the redacted output.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	r.logger.Debug().Str("cmd", cmd.String()).Msg("executing command")

	var (
		out []byte
		err error
	)
	if cmd.Stream && r.Live != nil {
		out, err = r.stream(c, cmd)
	} else {
		if cmd.Stdin != "" {
			c.Stdin = strings.NewReader(cmd.Stdin)
		}
		out, err = c.CombinedOutput()
	}

	res := Result{Output: out}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return res, &ExitError{Cmd: cmd.String(), Code: res.ExitCode, Output: logging.Redact(string(out)), Err: err}
	}
	return res, nil
}

func (r *ExecRunner) stream(c *exec.Cmd, cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	w := io.MultiWriter(&buf, r.Live)

	if r.UsePTY && cmd.Stdin == "" {
		ptmx, err := pty.Start(c)
		if err == nil {
			defer ptmx.Close()
			// Reading the pty master fails with EIO once the child exits.
			_, _ = io.Copy(w, ptmx)
			return buf.Bytes(), c.Wait()
		}
		r.logger.Debug().Err(err).Msg("pty unavailable, falling back to pipes")
	}

	c.Stdin = nil
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}
	c.Stdout = w
	c.Stderr = w
	err := c.Run()
	return buf.Bytes(), err
}

// ExitError is a failed command with its captured output.
type ExitError struct {
	Cmd    string
	Code   int
	Output string
	Err    error
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Cmd, out, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
