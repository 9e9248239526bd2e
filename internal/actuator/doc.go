// Package actuator drives the relay output line.
//
// The package separates three layers:
//
//   - Backend acquires a Line for a pin (real GPIO via go-rpio, or an
//     in-memory fake).
//   - Line is one exclusively owned digital output.
//   - Actuator is what the HTTP layer calls: Driver owns a Line and turns
//     each Pulse call into active-hold-restore; NoOp returns immediately.
//
// Which Actuator runs is decided once at startup from configuration, whose
// default is fixed at build time by the "rpi" build tag. Nothing here
// inspects the host to pick an implementation.
//
// Concurrency:
//
// A Driver holds its mutex for the entire pulse, so concurrent callers are
// serialised and holds never overlap. With RejectOverlap set, a caller that
// finds a pulse in flight fails fast with ErrPinBusy instead of queueing.
//
// Actuators never log; callers own observability.
package actuator
