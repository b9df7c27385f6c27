package logger

import (
	"context"
	"io"
	"log/slog"
)

// ColorTextHandler wraps slog.TextHandler to add ANSI color codes for different log levels
type ColorTextHandler struct {
	*slog.TextHandler
}

// NewColorTextHandler creates a new ColorTextHandler
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	return &ColorTextHandler{
		TextHandler: slog.NewTextHandler(w, withTimeOption(opts, showTime)),
	}
}

// Handle implements slog.Handler
func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	// Add color based on level
	var colorCode string
	switch r.Level {
	case slog.LevelDebug:
		colorCode = "\033[36m" // Cyan
	case slog.LevelInfo:
		colorCode = "\033[32m" // Green
	case slog.LevelWarn:
		colorCode = "\033[33m" // Yellow
	case slog.LevelError:
		colorCode = "\033[31m" // Red
	default:
		colorCode = "\033[0m" // Reset/default
	}

	// Modify the message to include color
	originalMsg := r.Message
	r.Message = colorCode + r.Level.String() + "\033[0m  " + originalMsg

	return h.TextHandler.Handle(ctx, r)
}

func newTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) slog.Handler {
	return slog.NewTextHandler(w, withTimeOption(opts, showTime))
}

func withTimeOption(opts *slog.HandlerOptions, showTime bool) *slog.HandlerOptions {
	if showTime {
		return opts
	}
	out := &slog.HandlerOptions{}
	if opts != nil {
		*out = *opts
	}
	prev := out.ReplaceAttr
	out.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		if prev != nil {
			return prev(groups, a)
		}
		return a
	}
	return out
}
