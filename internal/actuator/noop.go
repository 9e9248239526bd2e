package actuator

import (
	"context"
	"sync/atomic"
	"time"
)

// NoOp is the actuator for hosts without the relay. Every pulse succeeds
// immediately; the hold is not observed.
type NoOp struct {
	opts      Options
	pulses    atomic.Uint64
	lastPulse atomic.Int64
}

// NewNoOp creates a NoOp reporting opts in its Plan.
func NewNoOp(opts Options) *NoOp {
	return &NoOp{opts: opts}
}

// Name implements Actuator.
func (n *NoOp) Name() string { return "noop" }

// Acquire implements Actuator.
func (n *NoOp) Acquire() error { return nil }

// Pulse implements Actuator.
func (n *NoOp) Pulse(_ context.Context) error {
	n.pulses.Add(1)
	n.lastPulse.Store(time.Now().UnixNano())
	return nil
}

// Plan implements Actuator.
func (n *NoOp) Plan() Pulse { return n.opts.plan() }

// Stats implements Actuator.
func (n *NoOp) Stats() Stats {
	s := Stats{Driver: n.Name(), Pulses: n.pulses.Load(), Acquired: true}
	if ns := n.lastPulse.Load(); ns != 0 {
		s.LastPulse = time.Unix(0, ns).UTC()
	}
	return s
}

// Close implements Actuator.
func (n *NoOp) Close() error { return nil }
