// Package metric provides Prometheus metrics for credvault.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: private registry and typed recording helpers
//   - collector.go: scrape-time gauges for open vaults
//
// Metrics include:
//
//   - Unlock attempts, lockouts and key derivation latency
//   - Record operation counters
//   - Store write, retry, reload and recovery counters
//   - Audit append counters and KV engine sizes
//
// The CLI shell prints them in the text exposition format.
package metric
