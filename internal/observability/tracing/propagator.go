package tracing

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func otelPropagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}
