package log

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gosimple/slug"
)

// Path returns the log file of command inside dir.
func Path(dir, command string) string {
	name := slug.Make(command)
	if name == "" {
		name = "secure-ec2"
	}
	return filepath.Join(dir, fmt.Sprintf("%s.log", name))
}

// openFileHandler appends JSON records of every level to the command's log
// file.
func openFileHandler(dir, command string) (slog.Handler, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(Path(dir, command), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}

	h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return h, func() { _ = f.Close() }, nil
}
