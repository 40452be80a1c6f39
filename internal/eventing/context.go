package eventing

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"

	"claim-batch/internal/auth"
)

type contextKey string

const (
	contextKeyEnvelope contextKey = "eventing.envelope"
	contextKeyCorr     contextKey = "eventing.correlation_id"
)

// WithEnvelope attaches the envelope being relayed.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKeyEnvelope, env)
}

// EnvelopeFromContext returns the envelope being relayed, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(contextKeyEnvelope).(Envelope)
	return env, ok
}

// WithCorrelationID overrides the correlation id of recorded events.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, contextKeyCorr, correlationID)
}

// MetaFromContext derives envelope metadata for events recorded under ctx.
// The tenant comes from the authenticated caller, else defaultTenantID.
// The correlation id is an explicit override, else the HTTP request id.
func MetaFromContext(ctx context.Context, defaultTenantID string) Meta {
	meta := Meta{TenantID: auth.TenantIDFromContext(ctx)}
	if meta.TenantID == "" {
		meta.TenantID = defaultTenantID
	}
	if corr, ok := ctx.Value(contextKeyCorr).(string); ok && corr != "" {
		meta.CorrelationID = corr
	} else {
		meta.CorrelationID = middleware.GetReqID(ctx)
	}
	return meta
}
