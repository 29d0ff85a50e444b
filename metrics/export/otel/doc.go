// Package otel publishes engine metrics as OpenTelemetry observable
// instruments. The caller owns the MeterProvider; one callback reads the
// engine snapshot per collection.
package otel
