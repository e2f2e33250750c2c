package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var blockedAttributeKeys = map[attribute.Key]struct{}{
	"authorization":       {},
	"http.request.header": {},
	"db.statement":        {},
	"token":               {},
}

// SafeAttributes drops attributes that may leak credentials or raw SQL.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attr.Key]; blocked {
			continue
		}
		if strings.Contains(strings.ToLower(string(attr.Key)), "password") {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error suitable for span recording, truncating long messages.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return errors.New(msg)
}

// ExtractContext pulls W3C trace context from the carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// StartSpan opens an internal span on the engine tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer("obligo/engine").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(SafeAttributes(attrs...)...)
	}
	return ctx, func(err error) {
		if safeErr := SafeError(err); safeErr != nil {
			span.RecordError(safeErr)
		}
		span.End()
	}
}
