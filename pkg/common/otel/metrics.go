package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// GetMeterProvider returns the global meter provider set by InitTelemetry.
func GetMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}
