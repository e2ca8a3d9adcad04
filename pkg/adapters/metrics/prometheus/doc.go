// Package prometheus implements ports.MetricsCollector with Prometheus
// counters, gauges and histograms.
package prometheus
