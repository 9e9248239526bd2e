//go:build !linux

package actuator

import "fmt"

// RPIO is unavailable off Linux; every Acquire fails with ErrUnavailable.
type RPIO struct{}

// NewRPIO returns the stub backend.
func NewRPIO() *RPIO {
	return &RPIO{}
}

// Name implements Backend.
func (RPIO) Name() string { return "rpio" }

// Acquire implements Backend.
func (RPIO) Acquire(pin int, _ Level) (Line, error) {
	return nil, fmt.Errorf("%w: pin %d: no memory-mapped gpio on this platform", ErrUnavailable, pin)
}
