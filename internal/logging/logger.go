package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/lattice-prompts/internal/config"
)

// Option customizes a Logger.
type Option func(*Logger)

// WithMirror copies every line to w as well, e.g. os.Stderr for --verbose.
func WithMirror(w io.Writer) Option {
	return func(l *Logger) {
		if w != nil {
			l.mirror = w
		}
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		if now != nil {
			l.now = now
		}
	}
}

// Logger appends timestamped lines to .lattice/logs/lattice.log so cycle
// warnings and resolver failures can be inspected after a render finishes.
// It is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
	now    func() time.Time
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string, opts ...Option) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.LatticeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "lattice.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	l := &Logger{file: f, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Path returns the log file location.
func (l *Logger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	timestamp := l.now().Format(time.RFC3339)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
	if l.mirror != nil {
		fmt.Fprintln(l.mirror, line)
	}
}
