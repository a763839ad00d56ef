// Package logx builds the per-render session logger.
package logx

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"reelforge/internal/paths"
)

const sessionTimeFormat = "20060102-150405"

// New opens a session log file named for the current time under the
// workspace logs directory and returns a logger writing to it. The caller
// closes the returned closer once the render finishes.
func New(w paths.Workspace) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(w.LogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	name := "render-" + time.Now().Format(sessionTimeFormat) + ".log"
	file, err := os.OpenFile(filepath.Join(w.LogsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open session log: %w", err)
	}
	return log.New(file, "", log.LstdFlags|log.Lmicroseconds), file, nil
}

// Discard returns a logger that drops everything, for callers that do not
// want a session log.
func Discard() *log.Logger {
	return log.New(io.Discard, "", 0)
}
