package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/weft/internal/config"
)

// Logger appends timestamped lines to .weft/logs/weft.log so users can
// inspect failures after a dev session has exited.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
	clock  func() time.Time
}

// New creates (or reuses) the log file for the workspace root.
func New(root string) (*Logger, error) {
	logDir := filepath.Join(root, config.WeftDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "weft.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f, clock: time.Now}, nil
}

// Tee mirrors every line to w in addition to the log file.
func (l *Logger) Tee(w io.Writer) *Logger {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	l.mirror = w
	l.mu.Unlock()
	return l
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	l.mu.Lock()
	defer l.mu.Unlock()
	timestamp := l.clock().Format(time.RFC3339)
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
	if l.mirror != nil {
		fmt.Fprintln(l.mirror, line)
	}
}
