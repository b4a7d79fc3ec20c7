package console

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/output"
	"github.com/shaunagostinho/sensordash/internal/window"
)

func TestConsolePublish(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	s := &acquire.Snapshot{
		Tick:     12,
		Stamp:    ts,
		Distance: 20.5,
		Yaw:      10,
		Pitch:    47.5,
		Valid:    [3]bool{true, true, false},
		RawBank:  window.RawBank{10, 20, 30, 40, 50, 60, 70, 80},
	}
	require.NoError(t, c.Publish(s))

	want := "2025-09-19T14:41:54Z tick=12  Distance: 20.50  Yaw Angle: 10.00  Pitch Angle: 47.50!  bank=[10 20 30 40 50 60 70 80]\n"
	assert.Equal(t, want, buf.String())

	buf.Reset()
	s.Stale = true
	require.NoError(t, c.Publish(s))
	assert.Contains(t, buf.String(), "(stale)")
}

func TestThrottledConsole(t *testing.T) {
	var buf bytes.Buffer
	th := output.NewThrottle("console", New(&buf), time.Second)
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)

	for i := 0; i < 10; i++ {
		th.Consume(&acquire.Snapshot{Tick: uint64(i), Stamp: ts.Add(time.Duration(i) * 300 * time.Millisecond)})
	}
	// Ticks 0, 4 and 8 fall on or after each one-second boundary.
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Contains(t, buf.String(), "tick=4 ")
	assert.Equal(t, 0, th.Failures())
	assert.NoError(t, th.Close())
}
