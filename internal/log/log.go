// Package log wires the process logger: a terminal handler for the operator
// and a JSON file per command for later inspection, fanned out behind clog.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	charmlog "github.com/charmbracelet/log"
	slogmulti "github.com/samber/slog-multi"
)

// DirName is the directory under the user's home that holds command logs.
const DirName = ".secure_ec2"

type Options struct {
	// Command names the log file.
	Command string
	// Debug lowers the terminal level to debug. The file always gets debug.
	Debug bool
	// Dir overrides the log directory.
	Dir string
	// Output is the terminal stream. Defaults to os.Stderr.
	Output io.Writer
	// Handlers receive every record in addition to the terminal and file.
	Handlers []slog.Handler
}

// Setup installs the fanned-out logger into ctx and as the slog default. The
// returned func closes the log file. Failing to open the file is logged and
// otherwise ignored.
func Setup(ctx context.Context, opts Options) (context.Context, func()) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := charmlog.InfoLevel
	if opts.Debug {
		level = charmlog.DebugLevel
	}
	handlers := []slog.Handler{
		charmlog.NewWithOptions(out, charmlog.Options{
			Level:           level,
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		}),
	}
	for _, h := range opts.Handlers {
		if h != nil {
			handlers = append(handlers, h)
		}
	}

	closeFile := func() {}
	var warn []any
	if dir, err := logDir(opts.Dir); err != nil {
		warn = []any{"error", err.Error()}
	} else if fh, closer, err := openFileHandler(dir, opts.Command); err != nil {
		warn = []any{"path", Path(dir, opts.Command), "error", err.Error()}
	} else {
		handlers = append(handlers, fh)
		closeFile = closer
	}

	logger := clog.New(slogmulti.Fanout(handlers...))
	ctx = clog.WithLogger(ctx, logger)
	slog.SetDefault(&logger.Logger)

	if warn != nil {
		logger.Warn("failed to open log file", warn...)
	}
	return ctx, closeFile
}

func logDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DirName), nil
}
