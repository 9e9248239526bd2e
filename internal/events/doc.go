// Package events fans relay activity out to observers.
//
// The HTTP handlers and CLI publish an Event for every toggle and every
// registration. The Bus hands each event to its sinks (MQTT, InfluxDB,
// the audit log, WebSocket clients, Prometheus) in the background. A sink
// failure is logged and never reaches the caller that published.
package events
