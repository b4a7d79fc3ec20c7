package acquire

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/frame"
	"github.com/shaunagostinho/sensordash/internal/pacer"
	"github.com/shaunagostinho/sensordash/internal/sensor"
	"github.com/shaunagostinho/sensordash/internal/window"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func response(dist, yaw, pitch uint8, bank ...uint8) []byte {
	r := frame.Response{Header: [2]byte{0xAA, 0x01}, Distance: dist, Yaw: yaw, Pitch: pitch, Trailer: 0x55}
	copy(r.Bank[:], bank)
	return r.Encode()
}

type recorder struct {
	snaps []*Snapshot
	after func(n int)
}

func (r *recorder) Publish(s *Snapshot) {
	r.snaps = append(r.snaps, s)
	if r.after != nil {
		r.after(len(r.snaps))
	}
}

func newTestLoop(t *testing.T, tr sensor.Transport, sink Sink, size int) (*Loop, *pacer.MockClock) {
	t.Helper()
	clk := pacer.NewMockClock(epoch)
	l, err := New(tr, sink, Options{WindowSize: size, Clock: clk})
	require.NoError(t, err)
	return l, clk
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.Error(t, err)

	bad := calib.DefaultConfig()
	bad.Yaw.Min, bad.Yaw.Max = 5, -5
	_, err = New(sensor.NewFakeTransport(), nil, Options{Calibration: bad})
	assert.ErrorContains(t, err, "inverted")
}

func TestStepSendsRequestAndDecodes(t *testing.T) {
	tr := sensor.NewFakeTransport(response(205, 100, 100, 10, 20, 30, 40, 50, 60, 70, 80))
	rec := &recorder{}
	l, _ := newTestLoop(t, tr, rec, 4)

	require.NoError(t, l.Step())

	require.Len(t, tr.Writes(), 1)
	assert.Equal(t, []byte{0x52, 0x01, 0x00, 0x53}, tr.Writes()[0])

	require.Len(t, rec.snaps, 1)
	s := rec.snaps[0]
	assert.Equal(t, uint64(1), s.Tick)
	assert.Equal(t, epoch, s.Stamp)
	assert.False(t, s.Stale)
	assert.Equal(t, 20.5, s.Distance)
	assert.Equal(t, 10.0, s.Yaw)
	assert.Equal(t, 10.0, s.Pitch)
	assert.Equal(t, [3]bool{true, true, true}, s.Valid)
	assert.Equal(t, window.RawBank{10, 20, 30, 40, 50, 60, 70, 80}, s.RawBank)

	if diff := cmp.Diff([]float64{0, 0, 0, 20.5}, s.DistanceWindow); diff != "" {
		t.Errorf("distance window mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0, 0, 10}, s.Window(calib.Yaw)); diff != "" {
		t.Errorf("yaw window mismatch (-want +got):\n%s", diff)
	}
}

func TestStepOutOfRangeEntersWindowAsSentinel(t *testing.T) {
	tr := sensor.NewFakeTransport(response(255, 100, 0))
	rec := &recorder{}
	l, _ := newTestLoop(t, tr, rec, 3)

	require.NoError(t, l.Step())
	s := rec.snaps[0]

	// The displayed value is the pre-validation one.
	assert.InDelta(t, 25.5, s.Distance, 1e-9)
	assert.Equal(t, -40.0, s.Pitch)
	assert.Equal(t, [3]bool{false, true, false}, s.Valid)
	assert.Equal(t, []float64{0, 0, 0}, s.DistanceWindow)
	assert.Equal(t, []float64{0, 0, 0}, s.PitchWindow)
	assert.Equal(t, []float64{0, 0, 10}, s.YawWindow)
	assert.Equal(t, [3]uint64{1, 0, 1}, s.Stats.OutOfRange)
}

func TestStepShortFrameIsStale(t *testing.T) {
	tr := sensor.NewFakeTransport(
		response(100, 100, 100, 1, 2, 3, 4, 5, 6, 7, 8),
		response(50, 90, 110)[:10],
		nil,
		response(60, 80, 120),
	)
	rec := &recorder{}
	l, _ := newTestLoop(t, tr, rec, 3)

	for i := 0; i < 4; i++ {
		require.NoError(t, l.Step())
	}
	require.Len(t, rec.snaps, 4)

	first, short, empty, last := rec.snaps[0], rec.snaps[1], rec.snaps[2], rec.snaps[3]
	assert.False(t, first.Stale)
	assert.True(t, short.Stale)
	assert.True(t, empty.Stale)
	assert.False(t, last.Stale)

	// Stale ticks leave windows and bank untouched.
	for _, s := range []*Snapshot{short, empty} {
		if diff := cmp.Diff(first, s, cmpopts.IgnoreFields(Snapshot{}, "Tick", "Stamp", "Stale", "Stats")); diff != "" {
			t.Errorf("stale snapshot changed (-want +got):\n%s", diff)
		}
	}
	assert.Equal(t, uint64(2), empty.Stats.ShortFrames)
	assert.Equal(t, uint64(3), empty.Tick)

	assert.Equal(t, []float64{0, 10, 6}, last.DistanceWindow)
	assert.Equal(t, window.RawBank{}, last.RawBank)
}

func TestSetOffsetAppliesAtNextTick(t *testing.T) {
	tr := sensor.NewFakeTransport(response(100, 100, 100), response(100, 100, 100))
	rec := &recorder{}
	l, _ := newTestLoop(t, tr, rec, 2)

	require.NoError(t, l.Step())
	require.NoError(t, l.SetOffset(calib.Yaw, 2))
	assert.Equal(t, 10.0, rec.snaps[0].Yaw, "published snapshots are not rewritten")

	require.NoError(t, l.Step())
	s := rec.snaps[1]
	assert.Equal(t, 12.0, s.Yaw)
	assert.Equal(t, 10.0, s.Pitch)
	assert.Equal(t, []float64{10, 12}, s.YawWindow)
	assert.Equal(t, [3]float64{0, 2, 0}, s.Stats.Offsets)
}

func TestSetOffsetRejectsBadValues(t *testing.T) {
	l, _ := newTestLoop(t, sensor.NewFakeTransport(), nil, 2)
	assert.Error(t, l.SetOffset(calib.Channel(9), 1))
	assert.Error(t, l.SetOffset(calib.Distance, math.NaN()))
}

func TestRunStopsOnCancel(t *testing.T) {
	tr := sensor.NewFakeTransport()
	for i := 0; i < 10; i++ {
		tr.Queue(response(100, 100, 100))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{after: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	l, clk := newTestLoop(t, tr, rec, 8)
	assert.Equal(t, Running, l.RunState())

	require.NoError(t, l.Run(ctx))

	assert.Equal(t, Stopped, l.RunState())
	assert.True(t, tr.Closed())
	assert.Len(t, rec.snaps, 3, "the tick in flight completes, no further tick starts")
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond}, clk.Sleeps())
	assert.Equal(t, epoch.Add(10*time.Millisecond), rec.snaps[2].Stamp)
}

func TestRunStopsOnTransportFault(t *testing.T) {
	tr := sensor.NewFakeTransport(response(1, 2, 3), response(1, 2, 3))
	tr.ReadErr = errors.New("device unplugged")
	tr.ReadErrAfter = 2
	rec := &recorder{}
	l, _ := newTestLoop(t, tr, rec, 4)

	err := l.Run(context.Background())
	require.Error(t, err)

	var ioe *sensor.IOError
	require.True(t, errors.As(err, &ioe))
	assert.Equal(t, "read", ioe.Op)
	assert.Len(t, rec.snaps, 2)
	assert.Equal(t, Stopped, l.RunState())
	assert.True(t, tr.Closed())
}

func TestRunWriteFault(t *testing.T) {
	tr := sensor.NewFakeTransport()
	tr.WriteErr = errors.New("broken pipe")
	l, _ := newTestLoop(t, tr, nil, 4)

	err := l.Run(context.Background())
	assert.ErrorContains(t, err, "write failed: broken pipe")
	assert.True(t, tr.Closed())
}

func TestRunCancelledBeforeStart(t *testing.T) {
	tr := sensor.NewFakeTransport(response(1, 2, 3))
	rec := &recorder{}
	l, _ := newTestLoop(t, tr, rec, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))
	assert.Empty(t, rec.snaps)
	assert.Empty(t, tr.Writes())
	assert.True(t, tr.Closed())
}

func TestSnapshotsAreIndependent(t *testing.T) {
	tr := sensor.NewFakeTransport(response(10, 100, 100), response(20, 100, 100))
	rec := &recorder{}
	l, _ := newTestLoop(t, tr, rec, 2)

	require.NoError(t, l.Step())
	rec.snaps[0].DistanceWindow[0] = 99
	require.NoError(t, l.Step())

	assert.Equal(t, []float64{1, 2}, rec.snaps[1].DistanceWindow)
}

func TestShortFrameSummaryAfterBurst(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	good := response(100, 100, 100)
	tr := sensor.NewFakeTransport([]byte{1, 2, 3}, []byte{1, 2, 3}, good, good, good)
	l, clk := newTestLoop(t, tr, &recorder{}, 4)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Step())
		clk.Advance(400 * time.Millisecond)
	}
	assert.Zero(t, strings.Count(logs.String(), "short frames"), "window still open at 800ms")

	require.NoError(t, l.Step())
	assert.Contains(t, logs.String(), "[acquire] 2 short frames in last 1.2s")

	require.NoError(t, l.Step())
	assert.Equal(t, 1, strings.Count(logs.String(), "short frames"))
}
