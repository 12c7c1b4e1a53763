package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/edvin/lampctl/internal/config"
)

// Options carries per-invocation context for the root logger.
type Options struct {
	Command string
	RunID   string
	Verbose bool
	// Secrets are scrubbed from every log line in addition to the built-in
	// password patterns.
	Secrets []string
	// Out defaults to os.Stderr.
	Out io.Writer
}

// NewLogger creates a structured zerolog.Logger with invocation context fields.
// Non-empty fields are added automatically. Output passes through a
// RedactingWriter so secrets never reach the log sink.
func NewLogger(cfg *config.Config, opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	out = NewRedactingWriter(out, opts.Secrets...)
	if opts.Verbose && isTerminal(opts.Out) {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With().Timestamp()

	if opts.Command != "" {
		ctx = ctx.Str("command", opts.Command)
	}
	if opts.RunID != "" {
		ctx = ctx.Str("run_id", opts.RunID)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		ctx = ctx.Str("host", host)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	if opts.Verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	return logger.Level(level)
}

func isTerminal(w io.Writer) bool {
	if w == nil {
		w = os.Stderr
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
