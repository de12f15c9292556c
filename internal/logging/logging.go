// Package logging builds the zerolog logger for a run. The caller owns the
// returned Logger and must Close it to flush the rotating log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "2006-01-02 15:04:05"

// Config controls logger construction.
type Config struct {
	FilePath   string // empty = no file output
	MaxSizeMB  int    // rotate after this size
	MaxBackups int    // rotated files to keep
	Level      string // "trace", "debug", "info", "warn", "error"
	Format     string // "console" or "json"
	Stderr     bool   // mirror log lines to stderr
}

// Logger is a zerolog logger bound to its output files.
type Logger struct {
	zerolog.Logger
	closers []io.Closer
}

// New opens the configured outputs and returns a ready Logger.
// With neither a file nor stderr configured, log lines are discarded.
func New(cfg Config) (*Logger, error) {
	var writers []io.Writer
	var closers []io.Closer

	if path := strings.TrimSpace(cfg.FilePath); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		writers = append(writers, formatWriter(cfg.Format, file))
		closers = append(closers, file)
	}
	if cfg.Stderr {
		writers = append(writers, formatWriter(cfg.Format, os.Stderr))
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	return &Logger{
		Logger:  zerolog.New(out).Level(level).With().Timestamp().Logger(),
		closers: closers,
	}, nil
}

// Close flushes and closes the log files. The Logger must not be used after.
func (l *Logger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

// ParseLevel maps a level name to a zerolog level; empty means debug.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug":
		return zerolog.DebugLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "disabled", "off":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", level)
	}
}

func formatWriter(format string, w io.Writer) io.Writer {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: timeFormat,
	}
}
