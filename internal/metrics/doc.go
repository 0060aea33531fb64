// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection state and handshake rejections
//   - Frame rates: received, routed, dropped by reason
//   - Fan-out deliveries and per-recipient failures
//   - Board channel count
//   - Session audit writer throughput
package metrics
