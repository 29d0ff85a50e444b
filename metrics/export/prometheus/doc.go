// Package prometheus exposes engine counters and the verification latency
// histogram in the Prometheus text format. Mount Exporter.Handler on the
// scrape path; nothing is registered globally.
package prometheus
