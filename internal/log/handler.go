package log

import (
	"context"
	"log/slog"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/requestid"
)

// ContextHandler wraps an slog.Handler and adds request-scoped values
// (request_id, and account_id/tenant_id once the caller is authenticated)
// to every record.
type ContextHandler struct {
	inner slog.Handler
}

func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := requestid.FromContext(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	if identity := domain.IdentityFromContext(ctx); identity != nil {
		r.AddAttrs(slog.String("account_id", identity.ID))
		if identity.TenantID != "" {
			r.AddAttrs(slog.String("tenant_id", identity.TenantID))
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name)}
}
