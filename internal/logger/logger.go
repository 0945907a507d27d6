// Package logger provides treefuse's structured logging, grounded on
// gcsfuse's internal/logger: a package-level default logger built on
// log/slog, selectable text or JSON format, six severities (TRACE through
// CRITICAL) plus OFF, and optional rotation and syslog sinks.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/RackSec/srslog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	programLevel  = new(slog.LevelVar)
	defaultLogger = slog.New(newHandler(os.Stdout, "text", programLevel))
)

// Config describes how to build the default logger.
type Config struct {
	// Format is "text" or "json".
	Format string

	// Severity is one of trace, debug, info, warning, error, critical, off.
	Severity string

	// FilePath, if non-empty, routes output through a rotating file
	// (gopkg.in/natefinch/lumberjack.v2) instead of stdout.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Syslog, if true, sends output to the local syslog daemon via
	// github.com/RackSec/srslog instead of stdout. When FilePath is also
	// set, output goes to both the rotating file and syslog.
	Syslog bool
}

// Init rebuilds the default logger from cfg. It is meant to be called once,
// early in main, after flags are parsed.
func Init(cfg Config) error {
	programLevel.Set(ParseLevel(cfg.Severity))

	var w io.Writer = os.Stdout
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
	}

	if cfg.Syslog {
		sw, err := srslog.New(srslog.LOG_INFO|srslog.LOG_DAEMON, "treefuse")
		if err != nil {
			return err
		}
		if cfg.FilePath != "" {
			w = io.MultiWriter(w, sw)
		} else {
			w = sw
		}
	}

	defaultLogger = slog.New(newHandler(w, cfg.Format, programLevel))
	return nil
}

func orDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

func newHandler(w io.Writer, format string, level *slog.LevelVar) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceAttr(format),
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// replaceAttr renames slog's built-in keys (severity instead of level,
// message instead of msg) and, for JSON, nests the timestamp as
// {seconds, nanos} instead of an RFC3339 string.
func replaceAttr(format string) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.LevelKey:
			lvl, _ := a.Value.Any().(slog.Level)
			a.Key = "severity"
			a.Value = slog.StringValue(severityName(lvl))
		case slog.MessageKey:
			a.Key = "message"
		case slog.TimeKey:
			if format == "json" {
				t, _ := a.Value.Any().(time.Time)
				return slog.Attr{
					Key: "timestamp",
					Value: slog.GroupValue(
						slog.Int64("seconds", t.Unix()),
						slog.Int64("nanos", int64(t.Nanosecond())),
					),
				}
			}
		}
		return a
	}
}

func log(ctx context.Context, level slog.Level, format string, args ...any) {
	if !defaultLogger.Enabled(ctx, level) {
		return
	}
	defaultLogger.Log(ctx, level, sprintf(format, args...))
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// Tracef logs at TRACE, the finest severity, typically used for per-op
// tracing of reads and lookups.
func Tracef(format string, args ...any) { log(context.Background(), LevelTrace, format, args...) }

// Debugf logs at DEBUG.
func Debugf(format string, args ...any) { log(context.Background(), LevelDebug, format, args...) }

// Infof logs at INFO.
func Infof(format string, args ...any) { log(context.Background(), LevelInfo, format, args...) }

// Warnf logs at WARNING.
func Warnf(format string, args ...any) { log(context.Background(), LevelWarn, format, args...) }

// Errorf logs at ERROR.
func Errorf(format string, args ...any) { log(context.Background(), LevelError, format, args...) }

// Criticalf logs at CRITICAL, the highest severity --log-level accepts.
func Criticalf(format string, args ...any) {
	log(context.Background(), LevelCritical, format, args...)
}

// Default returns the process-wide *slog.Logger, for components (like
// stats.Reporter) that want direct access instead of the Tracef-style
// package functions.
func Default() *slog.Logger { return defaultLogger }
