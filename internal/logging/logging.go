// Package logging wires log/slog the way the CLI commands need: a single
// Logger constructor picking text or JSON output at a given level, and a
// context carrier for attributes (job/rank identifiers) that should show up
// on every log line written while handling a request without being passed
// explicitly to every call site.
package logging

import (
	"context"
	"io"
	"log/slog"
)

// Logger returns a slog.Logger writing to w, either as logfmt text or as
// JSON, at the given minimum level.
func Logger(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(&ctxHandler{Handler: h})
}

type ctxAttrsKey struct{}

// AppendCtx returns a context carrying attrs in addition to any already
// attached by an earlier AppendCtx call, for a ctxHandler to merge into every
// record logged through that context.
func AppendCtx(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	existing, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

// ctxHandler wraps a slog.Handler, adding whatever attributes AppendCtx
// attached to the record's context.
type ctxHandler struct {
	slog.Handler
}

func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxAttrsKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{Handler: h.Handler.WithGroup(name)}
}
