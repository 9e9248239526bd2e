package actuator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/nerrad567/garage-relay/internal/actuator"

// Driver owns one output line and produces pulses on it.
//
// The line is acquired by Acquire or lazily by the first Pulse and then
// reused for every pulse. A failed acquisition is not remembered; the next
// pulse tries again.
//
// Thread Safety: all methods are safe for concurrent use.
type Driver struct {
	backend Backend
	opts    Options

	// mu is held for the whole pulse, including the hold.
	mu   sync.Mutex
	line Line

	pulses    atomic.Uint64
	failures  atomic.Uint64
	lastPulse atomic.Int64
	acquired  atomic.Bool
}

// NewDriver creates a Driver for opts.Pin on backend. No hardware is touched
// until Acquire or Pulse.
func NewDriver(backend Backend, opts Options) (*Driver, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrUnavailable)
	}
	if opts.Hold < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidHold, opts.Hold)
	}
	return &Driver{backend: backend, opts: opts}, nil
}

// Name returns the backend name.
func (d *Driver) Name() string {
	return d.backend.Name()
}

// Plan describes the pulse the driver produces.
func (d *Driver) Plan() Pulse {
	return d.opts.plan()
}

// Acquire claims the output line if it is not held yet.
func (d *Driver) Acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.lineLocked()
	return err
}

// Pulse drives the line active, waits for the hold, and restores the
// inactive level when RestoreInactive is set.
//
// Concurrent calls queue behind the one in flight, unless RejectOverlap is
// set, in which case they fail with ErrPinBusy.
func (d *Driver) Pulse(ctx context.Context) error {
	op := d.Plan()
	_, span := otel.Tracer(tracerName).Start(ctx, "actuator.pulse")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gpio.pin", op.Pin),
		attribute.String("gpio.active", op.Active.String()),
		attribute.Int64("gpio.hold_ms", op.Hold.Milliseconds()),
	)

	err := d.pulse(op)
	if err != nil {
		d.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	d.pulses.Add(1)
	d.lastPulse.Store(time.Now().UnixNano())
	return nil
}

func (d *Driver) pulse(op Pulse) error {
	if d.opts.RejectOverlap {
		if !d.mu.TryLock() {
			return fmt.Errorf("%w: pulse already in progress on pin %d", ErrPinBusy, op.Pin)
		}
	} else {
		d.mu.Lock()
	}
	defer d.mu.Unlock()

	line, err := d.lineLocked()
	if err != nil {
		return err
	}

	if err := line.Set(op.Active); err != nil {
		return fmt.Errorf("driving pin %d %s: %w", op.Pin, op.Active, err)
	}

	hold(op.Hold)

	if op.Restore {
		if err := line.Set(op.Inactive()); err != nil {
			return fmt.Errorf("restoring pin %d %s: %w", op.Pin, op.Inactive(), err)
		}
	}
	return nil
}

// hold parks the calling goroutine for d without spinning.
func hold(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	<-t.C
}

// lineLocked returns the owned line, acquiring it on first use.
// Caller must hold d.mu.
func (d *Driver) lineLocked() (Line, error) {
	if d.line != nil {
		return d.line, nil
	}

	line, err := d.backend.Acquire(d.opts.Pin, d.Plan().Inactive())
	if err != nil {
		return nil, fmt.Errorf("acquiring pin %d: %w", d.opts.Pin, err)
	}
	d.line = line
	d.acquired.Store(true)
	return line, nil
}

// Stats reports counters since startup.
func (d *Driver) Stats() Stats {
	s := Stats{
		Driver:   d.Name(),
		Pulses:   d.pulses.Load(),
		Failures: d.failures.Load(),
		Acquired: d.acquired.Load(),
	}
	if ns := d.lastPulse.Load(); ns != 0 {
		s.LastPulse = time.Unix(0, ns).UTC()
	}
	return s
}

// Close waits for any pulse in flight and releases the line.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.line == nil {
		return nil
	}
	err := d.line.Release()
	d.line = nil
	d.acquired.Store(false)
	if err != nil {
		return fmt.Errorf("releasing pin %d: %w", d.opts.Pin, err)
	}
	return nil
}
