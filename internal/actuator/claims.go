package actuator

import (
	"fmt"
	"sync"
)

// claimSet records which pins have a live Line. It enforces the one-handle-
// per-pin rule for a piece of hardware.
type claimSet struct {
	mu   sync.Mutex
	pins map[int]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{pins: make(map[int]struct{})}
}

func (c *claimSet) claim(pin int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.pins[pin]; taken {
		return fmt.Errorf("%w: pin %d already claimed", ErrPinBusy, pin)
	}
	c.pins[pin] = struct{}{}
	return nil
}

func (c *claimSet) release(pin int) {
	c.mu.Lock()
	delete(c.pins, pin)
	c.mu.Unlock()
}

func (c *claimSet) held(pin int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, taken := c.pins[pin]
	return taken
}
