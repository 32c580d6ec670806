// Package otel provides OpenTelemetry metric exporter bindings for the
// engine's counters.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine
// metric. A single callback reads [praxis.Engine.MetricsSnapshot] on
// each collection cycle.
//
// The package never owns the OTel MeterProvider; callers supply the
// Meter and mount collection themselves.
package otel
