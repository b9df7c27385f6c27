package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the operational log.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Level selects the minimum severity emitted by the supervisor logger.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// FileConfig describes the supervisor's own rotated operational log.
// This is distinct from the worker log, which is a plain append-only file
// owned by the launched process. Rotation parameters follow lumberjack
// semantics.
type FileConfig struct {
	Path       string // operational log path; empty disables the file sink
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// SlogConfig describes the console sink.
type SlogConfig struct {
	Level      Level
	Color      bool
	TimeStamps bool
}

// Config is the unified logging configuration for one supervisor invocation.
type Config struct {
	Slog SlogConfig
	File FileConfig
}

// Writer returns the rotating writer for the operational log, or nil when
// no path is configured.
func (c FileConfig) Writer() io.WriteCloser {
	if c.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// NewSlogger builds the supervisor logger: colored (or plain) text on stderr
// plus the rotated operational file when one is configured. The file sink
// always records timestamps and never carries color codes.
func (c Config) NewSlogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Slog.Level.slogLevel()}
	var console slog.Handler
	if c.Slog.Color {
		console = NewColorTextHandler(os.Stderr, opts, c.Slog.TimeStamps)
	} else {
		console = newTextHandler(os.Stderr, opts, c.Slog.TimeStamps)
	}
	fw := c.File.Writer()
	if fw == nil {
		return slog.New(console)
	}
	file := slog.NewTextHandler(fw, &slog.HandlerOptions{Level: c.Slog.Level.slogLevel()})
	return slog.New(fanoutHandler{console, file})
}

func (l Level) slogLevel() slog.Level {
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

// fanoutHandler duplicates records across sinks. A record is emitted to every
// handler whose level admits it; the first error wins.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	next := make(fanoutHandler, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
