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
	"client_email":  {},
	"client.email":  {},
	"authorization": {},
	"iban":          {},
	"card_number":   {},
}

// ExtractContext restores trace context from inbound carriers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// SafeAttributes drops attributes that may carry personal or payment data.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, blocked := blockedAttributeKeys[attribute.Key(strings.ToLower(string(attr.Key)))]; blocked {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces an error to its message with email addresses masked.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	fields := strings.Fields(err.Error())
	for i, f := range fields {
		if strings.Contains(f, "@") {
			fields[i] = "[redacted]"
		}
	}
	return errors.New(strings.Join(fields, " "))
}
