// Package observability provides structured logging and metrics for the
// governance rule plane.
//
// This package implements:
//   - zap logger construction from configuration
//   - Prometheus metric collectors for state transitions, sweep passes
//     and event dispatch
package observability
