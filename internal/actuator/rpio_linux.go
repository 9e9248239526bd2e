//go:build linux

package actuator

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// hostClaims tracks pins owned through the memory-mapped GPIO block. There
// is one block per host, so the set is shared by every RPIO backend.
var hostClaims = newClaimSet()

// rpioMapping ref-counts rpio.Open/rpio.Close across backends.
var rpioMapping struct {
	mu    sync.Mutex
	users int
}

// RPIO drives BCM pins through /dev/gpiomem using go-rpio.
type RPIO struct{}

// NewRPIO returns the Raspberry Pi backend. The GPIO block is mapped on the
// first Acquire.
func NewRPIO() *RPIO {
	return &RPIO{}
}

// Name implements Backend.
func (RPIO) Name() string { return "rpio" }

// Acquire implements Backend.
func (RPIO) Acquire(pin int, initial Level) (Line, error) {
	if pin < 0 || pin > maxPin {
		return nil, fmt.Errorf("%w: %d", ErrPinUnavailable, pin)
	}
	if err := hostClaims.claim(pin); err != nil {
		return nil, err
	}
	if err := openMapping(); err != nil {
		hostClaims.release(pin)
		return nil, err
	}

	p := rpio.Pin(uint8(pin))
	p.Write(rpioState(initial))
	p.Output()

	return &rpioLine{pin: pin, p: p}, nil
}

func openMapping() error {
	rpioMapping.mu.Lock()
	defer rpioMapping.mu.Unlock()
	if rpioMapping.users == 0 {
		if err := rpio.Open(); err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return fmt.Errorf("%w: mapping gpio: %v", ErrUnavailable, err)
		}
	}
	rpioMapping.users++
	return nil
}

func closeMapping() error {
	rpioMapping.mu.Lock()
	defer rpioMapping.mu.Unlock()
	if rpioMapping.users == 0 {
		return nil
	}
	rpioMapping.users--
	if rpioMapping.users == 0 {
		return rpio.Close()
	}
	return nil
}

func rpioState(l Level) rpio.State {
	if l == High {
		return rpio.High
	}
	return rpio.Low
}

type rpioLine struct {
	pin int
	p   rpio.Pin

	mu       sync.Mutex
	released bool
}

func (l *rpioLine) Pin() int { return l.pin }

func (l *rpioLine) Set(level Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLineReleased
	}
	l.p.Write(rpioState(level))
	return nil
}

// Release leaves the pin at its last level and unmaps the GPIO block when
// no other line is live.
func (l *rpioLine) Release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	l.mu.Unlock()

	hostClaims.release(l.pin)
	if err := closeMapping(); err != nil {
		return fmt.Errorf("unmapping gpio: %w", err)
	}
	return nil
}
