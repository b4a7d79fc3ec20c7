package pacer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func TestTickSleepsRemainder(t *testing.T) {
	clock := NewMockClock(epoch)
	p := New(5*time.Millisecond, clock)

	err := p.Tick(func() error {
		clock.Advance(2 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, epoch.Add(5*time.Millisecond), clock.Now())
}

func TestTickOverrunNoCompensation(t *testing.T) {
	clock := NewMockClock(epoch)
	p := New(5*time.Millisecond, clock)

	// Overrun, then exact, then short: only the short tick sleeps, and
	// by its own remainder only.
	for _, work := range []time.Duration{12 * time.Millisecond, 5 * time.Millisecond, time.Millisecond} {
		w := work
		require.NoError(t, p.Tick(func() error {
			clock.Advance(w)
			return nil
		}))
	}
	assert.Equal(t, []time.Duration{4 * time.Millisecond}, clock.Sleeps())

	st := p.Stats()
	assert.Equal(t, uint64(3), st.Ticks)
	assert.Equal(t, uint64(2), st.Overruns)
	assert.Equal(t, time.Millisecond, st.LastWork)
}

func TestTickPropagatesError(t *testing.T) {
	clock := NewMockClock(epoch)
	p := New(5*time.Millisecond, clock)
	boom := errors.New("boom")

	err := p.Tick(func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, clock.Sleeps())
}

func TestDefaults(t *testing.T) {
	p := New(0, nil)
	assert.Equal(t, 5*time.Millisecond, p.Interval())
	assert.Equal(t, 5*time.Millisecond, IntervalFor(200))
	assert.Equal(t, 5*time.Millisecond, IntervalFor(0))
	assert.Equal(t, 50*time.Millisecond, IntervalFor(20))
}

func TestTickRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	const interval = 20 * time.Millisecond
	p := New(interval, RealClock{})

	start := time.Now()
	require.NoError(t, p.Tick(func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}))
	assert.GreaterOrEqual(t, time.Since(start), interval)

	start = time.Now()
	require.NoError(t, p.Tick(func() error {
		time.Sleep(interval + 5*time.Millisecond)
		return nil
	}))
	// No sleep after an overrun: only the work itself plus scheduler slack.
	assert.Less(t, time.Since(start), 2*interval+10*time.Millisecond)
}
