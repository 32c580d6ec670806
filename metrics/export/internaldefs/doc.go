// Package internaldefs exposes the stable metric definitions shared by
// exporter implementations.
//
// Counter definitions live here so the Prometheus and OTel exporters
// render identical metric names and help text. Changes here affect all
// exporters simultaneously.
package internaldefs
