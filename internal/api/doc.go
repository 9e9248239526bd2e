// Package api implements the relay's HTTP server.
//
// This package provides:
//   - POST /toggle/{key}: pulse the relay, 200 with an empty body or 500
//     with the failure text
//   - POST /user: issue an access key, returned in a small HTML fragment
//   - Health, JSON and Prometheus metrics, and audit log endpoints
//   - WebSocket hub broadcasting door and user events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Graceful Degradation
//
// MQTT, InfluxDB and tracing are optional. The toggle and registration
// routes work with none of them.
package api
