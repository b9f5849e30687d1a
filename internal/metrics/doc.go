// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - FMP request counts, latencies and rate limiter waits
//   - Batch commit latencies and errors per entity
//   - Import job outcomes and row counts per entity
//   - Running imports
package metrics
