// Package prometheus renders engine metrics in Prometheus text
// exposition format.
//
// [NewPrometheusExporter] accepts an [praxis.Engine] and exposes an
// [http.Handler] that serves every counter prefixed praxis_*_total.
// Nothing is registered in a global Prometheus registry; callers mount
// the Handler where they want it.
package prometheus
