package actuator

import (
	"fmt"
	"sync"
	"time"
)

// Transition is one recorded level change on a FakeLine.
type Transition struct {
	Level Level
	At    time.Time
}

// FakeBackend is an in-memory Backend that records every level change.
// It is used by tests and by the "fake" driver for bench runs.
type FakeBackend struct {
	claims *claimSet

	mu    sync.Mutex
	lines map[int]*FakeLine

	// AcquireErr, when set, makes Acquire fail with it.
	AcquireErr error
}

// NewFakeBackend creates an empty FakeBackend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		claims: newClaimSet(),
		lines:  make(map[int]*FakeLine),
	}
}

// Name implements Backend.
func (b *FakeBackend) Name() string { return "fake" }

// Acquire implements Backend.
func (b *FakeBackend) Acquire(pin int, initial Level) (Line, error) {
	b.mu.Lock()
	failErr := b.AcquireErr
	b.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}

	if pin < 0 || pin > maxPin {
		return nil, fmt.Errorf("%w: %d", ErrPinUnavailable, pin)
	}
	if err := b.claims.claim(pin); err != nil {
		return nil, err
	}

	line := &FakeLine{backend: b, pin: pin, level: initial}
	line.record(initial)

	b.mu.Lock()
	b.lines[pin] = line
	b.mu.Unlock()
	return line, nil
}

// SetAcquireErr changes the acquisition failure while the backend is in use.
func (b *FakeBackend) SetAcquireErr(err error) {
	b.mu.Lock()
	b.AcquireErr = err
	b.mu.Unlock()
}

// Line returns the most recent line acquired for pin, or nil.
func (b *FakeBackend) Line(pin int) *FakeLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lines[pin]
}

// Claimed reports whether pin currently has a live line.
func (b *FakeBackend) Claimed(pin int) bool {
	return b.claims.held(pin)
}

// FakeLine is the Line handed out by FakeBackend.
type FakeLine struct {
	backend *FakeBackend
	pin     int

	mu          sync.Mutex
	level       Level
	released    bool
	transitions []Transition
	setErr      error
}

// Pin implements Line.
func (l *FakeLine) Pin() int { return l.pin }

// Set implements Line.
func (l *FakeLine) Set(level Level) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return ErrLineReleased
	}
	if l.setErr != nil {
		return l.setErr
	}
	l.level = level
	l.transitions = append(l.transitions, Transition{Level: level, At: time.Now()})
	return nil
}

// Release implements Line.
func (l *FakeLine) Release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	l.mu.Unlock()
	l.backend.claims.release(l.pin)
	return nil
}

// FailWith makes subsequent Set calls return err. Pass nil to recover.
func (l *FakeLine) FailWith(err error) {
	l.mu.Lock()
	l.setErr = err
	l.mu.Unlock()
}

// Level returns the current output level.
func (l *FakeLine) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Released reports whether Release has been called.
func (l *FakeLine) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

// Transitions returns the level changes made through Set, excluding the
// initial level set at acquisition.
func (l *FakeLine) Transitions() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.transitions) <= 1 {
		return nil
	}
	out := make([]Transition, len(l.transitions)-1)
	copy(out, l.transitions[1:])
	return out
}

func (l *FakeLine) record(level Level) {
	l.transitions = append(l.transitions, Transition{Level: level, At: time.Now()})
}
