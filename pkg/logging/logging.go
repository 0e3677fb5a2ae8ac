// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Options control handler construction.
type Options struct {
	Debug bool
	JSON  bool
	// Out defaults to stderr so diagnostics never mix with command output.
	Out io.Writer
}

// Setup builds the root logger, tags it with a per-invocation id, and
// installs it as the slog default.
func Setup(opts Options) *slog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		h = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	log := slog.New(h).With("invocation", uuid.NewString())
	slog.SetDefault(log)
	return log
}
