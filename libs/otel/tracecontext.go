package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	traceparentKey = "traceparent"
	tracestateKey  = "tracestate"
)

// TraceContextStrings serializes the active span context in W3C form, for
// persisting alongside records that outlive the request.
func TraceContextStrings(ctx context.Context) (string, string) {
	mc := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, mc)
	return mc[traceparentKey], mc[tracestateKey]
}

// ContextWithTraceContext restores a span context serialized earlier so
// downstream work links back to the originating trace. Tracestate without a
// traceparent carries nothing, so it is ignored.
func ContextWithTraceContext(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	mc := propagation.MapCarrier{traceparentKey: traceparent}
	if tracestate != "" {
		mc[tracestateKey] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, mc)
}
