package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/smallbiznis/tryon"

// sensitiveKeys never reach an exporter, whatever the caller passes.
var sensitiveKeys = map[attribute.Key]struct{}{
	"credential_token": {},
	"fingerprint":      {},
	"contact_address":  {},
	"client_ip":        {},
	"authorization":    {},
}

// Start opens an internal span for a domain operation.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(SafeAttributes(attrs...)...),
	)
}

// End records err on span, unless it is one of the expected domain outcomes,
// and closes it.
func End(span trace.Span, err error, expected ...error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.kind", err.Error()))
		if !isExpected(err, expected) {
			if safeErr := SafeError(err); safeErr != nil {
				span.RecordError(safeErr)
			}
			span.SetStatus(codes.Error, "operation failed")
		}
	}
	span.End()
}

func isExpected(err error, expected []error) bool {
	for _, e := range expected {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// ExtractContext reads upstream trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes that could carry credentials or personal data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := sensitiveKeys[attr.Key]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

type redactedError struct{ msg string }

func (e redactedError) Error() string { return e.msg }

// SafeError truncates error text before it is attached to a span.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return redactedError{msg: msg}
}
