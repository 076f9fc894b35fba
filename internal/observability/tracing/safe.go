package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"gorm.io/gorm"
)

var allowedSpanKeys = map[attribute.Key]struct{}{
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"request_id":              {},
	"business_id":             {},
	"coupon.outcome":          {},
	"coupon.reason":           {},
	"coupon.attempts":         {},
	"tenant.source":           {},
}

// SafeAttributes drops attributes that are not on the allowlist so hostnames,
// coupon codes and customer identifiers never leave the process.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

var (
	errTimeout  = errors.New("timeout")
	errDatabase = errors.New("database_error")
	errInternal = errors.New("internal_error")
)

// SafeError maps an error to a low-detail classification before it is recorded on a span.
func SafeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errTimeout
	case errors.Is(err, gorm.ErrInvalidDB), errors.Is(err, gorm.ErrInvalidTransaction):
		return errDatabase
	default:
		return errInternal
	}
}

// ExtractContext pulls remote trace context from carrier using the global propagator.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otelPropagator().Extract(ctx, carrier)
}
