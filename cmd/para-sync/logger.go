// ABOUTME: Logger setup for the CLI with a colorized console handler
// ABOUTME: Logs go to stderr so command output on stdout stays machine readable

package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/para-sync/internal/config"
)

var (
	levelTags = map[slog.Level]string{
		slog.LevelDebug: color.MagentaString("DBG"),
		slog.LevelInfo:  color.CyanString("INF"),
		slog.LevelWarn:  color.YellowString("WRN"),
		slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR"),
	}
	dim       = color.New(color.FgHiBlack)
	component = color.New(color.FgBlue)
	highlight = color.New(color.FgGreen)
)

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = &consoleHandler{mu: &sync.Mutex{}, out: os.Stderr, level: level}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// consoleHandler prints one colored line per record. The "component" attr
// becomes a bracketed prefix and collection/topic values are highlighted so
// a watch session is easy to scan.
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Level
	component string
	attrs     []slog.Attr
	prefix    string
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(dim.Sprint(r.Time.Format("15:04:05.000")))
	b.WriteByte(' ')
	tag, ok := levelTags[r.Level]
	if !ok {
		tag = r.Level.String()
	}
	b.WriteString(tag)
	b.WriteByte(' ')
	if h.component != "" {
		b.WriteString(component.Sprintf("[%s] ", h.component))
	}
	b.WriteString(r.Message)

	for _, a := range h.attrs {
		appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	b.WriteString(dim.Sprintf(" %s%s=", prefix, a.Key))
	v := a.Value.Resolve().String()
	switch a.Key {
	case "collection", "topic", "user_id":
		b.WriteString(highlight.Sprint(v))
	default:
		b.WriteString(v)
	}
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		if a.Key == "component" && h.prefix == "" {
			next.component = a.Value.String()
			continue
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
