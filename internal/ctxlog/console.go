package ctxlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed, color.Bold)
	debugColor = color.New(color.FgCyan)
)

// ConsoleHandler is a slog.Handler that writes one human-readable line per
// record, in the "tool: level: message key=value" shape build tools print.
// Level prefixes are colored when the writer is a terminal.
type ConsoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

// NewConsoleHandler returns a handler writing to w at the given minimum level.
func NewConsoleHandler(w io.Writer, level slog.Level) *ConsoleHandler {
	return &ConsoleHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
	}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, rec slog.Record) error {
	var sb strings.Builder
	sb.WriteString("mk2ninja: ")
	switch {
	case rec.Level >= slog.LevelError:
		sb.WriteString(errorColor.Sprint("error: "))
	case rec.Level >= slog.LevelWarn:
		sb.WriteString(warnColor.Sprint("warning: "))
	case rec.Level < slog.LevelInfo:
		sb.WriteString(debugColor.Sprint("debug: "))
	}
	sb.WriteString(rec.Message)

	appendAttr := func(a slog.Attr) {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		sb.WriteString(fmt.Sprint(a.Value.Resolve().Any()))
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		appendAttr(a)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &h2
}

// WithGroup implements slog.Handler. Groups are flattened; the console
// format has no nesting.
func (h *ConsoleHandler) WithGroup(string) slog.Handler {
	return h
}
