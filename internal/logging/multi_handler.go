package logging

import (
	"context"
	"errors"
	"log/slog"
)

// outputs sends each supervisor log record to every configured destination:
// the console, the rotated log file and the journal.
type outputs []slog.Handler

// newOutputs skips nil destinations.
func newOutputs(handlers ...slog.Handler) outputs {
	out := make(outputs, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (o outputs) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range o {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes to every destination that accepts the level. A failing
// destination does not stop the others; their errors are joined.
func (o outputs) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range o {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (o outputs) WithAttrs(attrs []slog.Attr) slog.Handler {
	return o.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (o outputs) WithGroup(name string) slog.Handler {
	return o.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (o outputs) each(derive func(slog.Handler) slog.Handler) outputs {
	out := make(outputs, len(o))
	for i, h := range o {
		out[i] = derive(h)
	}
	return out
}
