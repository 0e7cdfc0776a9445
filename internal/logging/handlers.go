package logging

import (
	"context"
	"log/slog"
	"strings"
)

// levelFilter picks a minimum level from the pipeline the logger is tagged
// with, falling back to the global level. The wrapped handler must admit
// everything at floor() or lower.
type levelFilter struct {
	next       slog.Handler
	global     slog.Level
	byPipeline map[string]slog.Level
	pipeline   string
}

func newLevelFilter(level string, pipelines map[string]string) *levelFilter {
	f := &levelFilter{global: parseLevel(level)}
	if len(pipelines) > 0 {
		f.byPipeline = make(map[string]slog.Level, len(pipelines))
		for name, raw := range pipelines {
			f.byPipeline[strings.ToLower(strings.TrimSpace(name))] = parseLevel(raw)
		}
	}
	return f
}

// floor is the most verbose level any pipeline may log at.
func (f *levelFilter) floor() slog.Level {
	lowest := f.global
	for _, level := range f.byPipeline {
		if level < lowest {
			lowest = level
		}
	}
	return lowest
}

func (f *levelFilter) wrap(next slog.Handler) slog.Handler {
	clone := *f
	clone.next = next
	return &clone
}

func (f *levelFilter) min() slog.Level {
	if level, ok := f.byPipeline[f.pipeline]; ok {
		return level
	}
	return f.global
}

func (f *levelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= f.min() && f.next.Enabled(ctx, level)
}

func (f *levelFilter) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < f.min() {
		return nil
	}
	return f.next.Handle(ctx, record)
}

func (f *levelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *f
	clone.next = f.next.WithAttrs(attrs)
	for _, attr := range attrs {
		if attr.Key == FieldPipeline {
			clone.pipeline = strings.ToLower(attr.Value.String())
		}
	}
	return &clone
}

func (f *levelFilter) WithGroup(name string) slog.Handler {
	clone := *f
	clone.next = f.next.WithGroup(name)
	return &clone
}

// AtLeast returns a handler that drops records below level before they
// reach h.
func AtLeast(h slog.Handler, level slog.Level) slog.Handler {
	if h == nil {
		return NoopHandler{}
	}
	return &levelFilter{next: h, global: level}
}

type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	var filtered []slog.Handler
	for _, h := range handlers {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopHandler{}
	case 1:
		return filtered[0]
	}
	return &fanoutHandler{handlers: filtered}
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: next}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		next[i] = handler.WithGroup(name)
	}
	return &fanoutHandler{handlers: next}
}

// TeeLogger duplicates the output of base into extra handlers.
func TeeLogger(base *slog.Logger, extra ...slog.Handler) *slog.Logger {
	if base == nil {
		return slog.New(newFanoutHandler(extra...))
	}
	return slog.New(newFanoutHandler(append([]slog.Handler{base.Handler()}, extra...)...))
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
