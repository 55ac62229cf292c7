package observability

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// sensitiveKeys are attribute keys whose values are replaced before output.
var sensitiveKeys = map[string]struct{}{
	"access_token":  {},
	"api_secret":    {},
	"authorization": {},
	"password":      {},
	"secret":        {},
	"token":         {},
}

const redactedValue = "[redacted]"

// contextHandler adds trace_id and span_id from the context and redacts
// credential-like attributes before passing records on.
type contextHandler struct {
	handler slog.Handler
}

func newContextHandler(handler slog.Handler) *contextHandler {
	return &contextHandler{handler: handler}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(redact(attr))
		return true
	})

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		out.AddAttrs(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return h.handler.Handle(ctx, out)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		redacted[i] = redact(attr)
	}
	return &contextHandler{handler: h.handler.WithAttrs(redacted)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{handler: h.handler.WithGroup(name)}
}

// redact masks sensitive keys, descending into groups.
func redact(attr slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(attr.Key)]; ok {
		return slog.String(attr.Key, redactedValue)
	}

	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return slog.Attr{Key: attr.Key, Value: value}
	}

	group := value.Group()
	redacted := make([]slog.Attr, len(group))
	for i, a := range group {
		redacted[i] = redact(a)
	}
	return slog.Attr{Key: attr.Key, Value: slog.GroupValue(redacted...)}
}
