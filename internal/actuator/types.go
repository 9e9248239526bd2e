package actuator

import (
	"context"
	"fmt"
	"time"
)

// Level is the logical state of a digital output.
type Level bool

// Output levels.
const (
	Low  Level = false
	High Level = true
)

// Inverse returns the opposite level.
func (l Level) Inverse() Level {
	return !l
}

func (l Level) String() string {
	if l == High {
		return "high"
	}
	return "low"
}

// Pulse describes one actuation. It is a plain value and never persisted.
type Pulse struct {
	Pin     int           `json:"pin"`
	Active  Level         `json:"-"`
	Hold    time.Duration `json:"-"`
	Restore bool          `json:"restore"`
}

// Inactive returns the resting level of the line.
func (p Pulse) Inactive() Level {
	return p.Active.Inverse()
}

func (p Pulse) String() string {
	return fmt.Sprintf("pin %d %s for %s", p.Pin, p.Active, p.Hold)
}

// Line is one exclusively owned digital output.
type Line interface {
	// Pin returns the BCM pin number.
	Pin() int

	// Set drives the line to level.
	Set(level Level) error

	// Release gives up ownership. The line cannot be used afterwards.
	Release() error
}

// Backend hands out Lines.
type Backend interface {
	// Name identifies the backend in health output ("rpio", "fake").
	Name() string

	// Acquire claims pin, drives it to initial and configures it as an output.
	// A pin that is already claimed fails with ErrPinBusy.
	Acquire(pin int, initial Level) (Line, error)
}

// Stats summarises actuator activity since startup.
type Stats struct {
	Driver    string    `json:"driver"`
	Pulses    uint64    `json:"pulses"`
	Failures  uint64    `json:"failures"`
	Acquired  bool      `json:"acquired"`
	LastPulse time.Time `json:"last_pulse,omitzero"`
}

// Actuator produces pulses on the relay line.
//
// Pulse blocks for the hold duration. Cancelling ctx does not abort a
// pulse: once requested, it runs to completion.
type Actuator interface {
	// Name identifies the implementation.
	Name() string

	// Acquire claims the output line ahead of the first pulse.
	Acquire() error

	// Pulse drives the line active, holds, and (if configured) restores it.
	Pulse(ctx context.Context) error

	// Plan describes the pulse the next call will produce.
	Plan() Pulse

	// Stats reports counters for metrics endpoints.
	Stats() Stats

	// Close releases the output line.
	Close() error
}

// Options configures a Driver or NoOp.
type Options struct {
	Pin             int
	Hold            time.Duration
	ActiveLow       bool
	RestoreInactive bool
	RejectOverlap   bool
}

func (o Options) plan() Pulse {
	active := High
	if o.ActiveLow {
		active = Low
	}
	return Pulse{
		Pin:     o.Pin,
		Active:  active,
		Hold:    o.Hold,
		Restore: o.RestoreInactive,
	}
}
