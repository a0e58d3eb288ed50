// Package logger provides structured logging for the service: a thin
// wrapper over slog that carries the service name, filters by level and
// bridges into the stdlib log.Logger the http.Server expects.
package logger

import (
	"context"
	"io"
	"log"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLogLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Logger struct {
	handler slog.Handler
	min     Level
}

func New(w io.Writer, minLevel Level, service string) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: minLevel.slog()})
	handler := h.WithAttrs([]slog.Attr{slog.String("service", service)})
	return &Logger{handler: handler, min: minLevel}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelDebug, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelInfo, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelWarn, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelError, msg, args...)
}

func (l *Logger) Log(ctx context.Context, level Level, msg string, args ...any) {
	if level < l.min {
		return
	}

	r := slog.NewRecord(time.Now(), level.slog(), msg, 0)
	r.Add(args...)
	_ = l.handler.Handle(ctx, r)
}

// BuildInfo logs the module version and VCS revision when available.
func (l *Logger) BuildInfo(ctx context.Context) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	args := []any{"go", info.GoVersion, "module", info.Main.Path, "version", info.Main.Version}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			args = append(args, "revision", s.Value)
		}
	}
	l.Info(ctx, "build info", args...)
}

// NewStdLogger adapts the structured logger for code that expects a
// *log.Logger, such as http.Server.ErrorLog.
func NewStdLogger(l *Logger, level Level) *log.Logger {
	return log.New(stdWriter{log: l, level: level}, "", 0)
}

type stdWriter struct {
	log   *Logger
	level Level
}

func (w stdWriter) Write(p []byte) (int, error) {
	w.log.Log(context.Background(), w.level, strings.TrimSpace(string(p)))
	return len(p), nil
}
