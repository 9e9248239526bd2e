package actuator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
)

const testPin = 2

func newTestDriver(t *testing.T, opts Options) (*Driver, *FakeBackend) {
	t.Helper()
	backend := NewFakeBackend()
	d, err := NewDriver(backend, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, backend
}

func defaultOpts(hold time.Duration) Options {
	return Options{Pin: testPin, Hold: hold, ActiveLow: true, RestoreInactive: true}
}

func TestDriver_PulseActiveLow(t *testing.T) {
	d, backend := newTestDriver(t, defaultOpts(200*time.Millisecond))

	start := time.Now()
	require.NoError(t, d.Pulse(context.Background()))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)

	line := backend.Line(testPin)
	require.NotNil(t, line)
	tr := line.Transitions()
	require.Len(t, tr, 2)
	assert.Equal(t, Low, tr[0].Level)
	assert.Equal(t, High, tr[1].Level)
	assert.GreaterOrEqual(t, tr[1].At.Sub(tr[0].At), 200*time.Millisecond)
	assert.Equal(t, High, line.Level(), "line rests inactive")
}

func TestDriver_PulseActiveHigh(t *testing.T) {
	opts := defaultOpts(10 * time.Millisecond)
	opts.ActiveLow = false
	d, backend := newTestDriver(t, opts)

	require.NoError(t, d.Pulse(context.Background()))

	tr := backend.Line(testPin).Transitions()
	require.Len(t, tr, 2)
	assert.Equal(t, High, tr[0].Level)
	assert.Equal(t, Low, tr[1].Level)
}

func TestDriver_AcquireSetsInactiveFirst(t *testing.T) {
	d, backend := newTestDriver(t, defaultOpts(0))

	require.NoError(t, d.Acquire())
	line := backend.Line(testPin)
	require.NotNil(t, line)
	assert.Equal(t, High, line.Level())
	assert.Empty(t, line.Transitions())
	assert.True(t, d.Stats().Acquired)
}

func TestDriver_NoRestore(t *testing.T) {
	opts := defaultOpts(5 * time.Millisecond)
	opts.RestoreInactive = false
	d, backend := newTestDriver(t, opts)

	require.NoError(t, d.Pulse(context.Background()))

	line := backend.Line(testPin)
	require.Len(t, line.Transitions(), 1)
	assert.Equal(t, Low, line.Level(), "line left active")
}

func TestDriver_ConcurrentPulsesSerialise(t *testing.T) {
	const hold = 200 * time.Millisecond
	d, backend := newTestDriver(t, defaultOpts(hold))

	start := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = d.Pulse(context.Background())
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, elapsed, 2*hold)

	// Holds must not overlap: active, inactive, active, inactive.
	tr := backend.Line(testPin).Transitions()
	require.Len(t, tr, 4)
	for i, want := range []Level{Low, High, Low, High} {
		assert.Equal(t, want, tr[i].Level, "transition %d", i)
	}
	assert.False(t, tr[2].At.Before(tr[1].At))
	assert.Equal(t, uint64(2), d.Stats().Pulses)
}

func TestDriver_RejectOverlap(t *testing.T) {
	opts := defaultOpts(150 * time.Millisecond)
	opts.RejectOverlap = true
	d, _ := newTestDriver(t, opts)

	first := make(chan error, 1)
	go func() { first <- d.Pulse(context.Background()) }()

	// Let the first pulse take the lock.
	time.Sleep(30 * time.Millisecond)

	err := d.Pulse(context.Background())
	assert.ErrorIs(t, err, ErrPinBusy)
	require.NoError(t, <-first)

	stats := d.Stats()
	assert.Equal(t, uint64(1), stats.Pulses)
	assert.Equal(t, uint64(1), stats.Failures)
}

func TestDriver_AcquireFailureNotCached(t *testing.T) {
	d, backend := newTestDriver(t, defaultOpts(0))
	boom := errors.New("gpiomem: permission denied")
	backend.SetAcquireErr(boom)

	err := d.Pulse(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pin 2")
	assert.False(t, d.Stats().Acquired)

	backend.SetAcquireErr(nil)
	require.NoError(t, d.Pulse(context.Background()))
	assert.True(t, d.Stats().Acquired)
	assert.Equal(t, uint64(1), d.Stats().Failures)
}

func TestDriver_SetFailureReported(t *testing.T) {
	d, backend := newTestDriver(t, defaultOpts(0))
	require.NoError(t, d.Acquire())
	backend.Line(testPin).FailWith(errors.New("write failed"))

	err := d.Pulse(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driving pin 2 low")
	assert.Contains(t, err.Error(), "write failed")
}

func TestDriver_CancelledContextStillPulses(t *testing.T) {
	d, backend := newTestDriver(t, defaultOpts(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.Pulse(ctx))
	assert.Len(t, backend.Line(testPin).Transitions(), 2)
}

func TestDriver_CloseReleasesClaim(t *testing.T) {
	d, backend := newTestDriver(t, defaultOpts(0))
	require.NoError(t, d.Acquire())
	assert.True(t, backend.Claimed(testPin))

	require.NoError(t, d.Close())
	assert.False(t, backend.Claimed(testPin))
	assert.True(t, backend.Line(testPin).Released())
	assert.False(t, d.Stats().Acquired)

	// Reacquires on the next pulse.
	require.NoError(t, d.Pulse(context.Background()))
	assert.True(t, backend.Claimed(testPin))
}

func TestDriver_PinClaimedOnce(t *testing.T) {
	backend := NewFakeBackend()
	a, err := NewDriver(backend, defaultOpts(0))
	require.NoError(t, err)
	b, err := NewDriver(backend, defaultOpts(0))
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Acquire())
	err = b.Acquire()
	assert.ErrorIs(t, err, ErrPinBusy)
}

func TestFakeLine_ReleasedRejectsSet(t *testing.T) {
	backend := NewFakeBackend()
	line, err := backend.Acquire(testPin, High)
	require.NoError(t, err)
	require.NoError(t, line.Release())
	assert.ErrorIs(t, line.Set(Low), ErrLineReleased)
	assert.NoError(t, line.Release(), "second release is a no-op")
}

func TestFakeBackend_PinOutOfRange(t *testing.T) {
	_, err := NewFakeBackend().Acquire(40, High)
	assert.ErrorIs(t, err, ErrPinUnavailable)
}

func TestNewDriver_NegativeHold(t *testing.T) {
	_, err := NewDriver(NewFakeBackend(), Options{Hold: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidHold)
}

func TestNoOp_ReturnsImmediately(t *testing.T) {
	n := NewNoOp(defaultOpts(time.Second))

	start := time.Now()
	require.NoError(t, n.Pulse(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, uint64(1), n.Stats().Pulses)
	assert.Equal(t, time.Second, n.Plan().Hold)
	assert.NoError(t, n.Close())
}

func TestNew_SelectsDriver(t *testing.T) {
	base := config.GPIOConfig{Pin: 17, HoldMS: 250, ActiveLow: true, RestoreInactive: true, Overlap: config.OverlapQueue}

	tests := []struct {
		driver  string
		want    string
		wantErr error
	}{
		{driver: config.DriverNoOp, want: "noop"},
		{driver: config.DriverFake, want: "fake"},
		{driver: config.DriverRPIO, want: "rpio"},
		{driver: "sysfs", wantErr: ErrUnknownDriver},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := base
			cfg.Driver = tt.driver
			a, err := New(cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name())
			plan := a.Plan()
			assert.Equal(t, 17, plan.Pin)
			assert.Equal(t, 250*time.Millisecond, plan.Hold)
			assert.Equal(t, Low, plan.Active)
		})
	}
}

func TestOptionsFromConfig_Reject(t *testing.T) {
	opts := OptionsFromConfig(config.GPIOConfig{Overlap: config.OverlapReject})
	assert.True(t, opts.RejectOverlap)
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, High, Low.Inverse())
	assert.Equal(t, "pin 2 low for 200ms", defaultOpts(200*time.Millisecond).plan().String())
}
