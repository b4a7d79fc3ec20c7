// Package acquire runs the acquisition loop: request, read, decode,
// calibrate, window, publish and pace, one tick at a time.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/frame"
	"github.com/shaunagostinho/sensordash/internal/pacer"
	"github.com/shaunagostinho/sensordash/internal/sensor"
	"github.com/shaunagostinho/sensordash/internal/window"
)

// RunState is the loop's lifecycle state.
type RunState int32

const (
	Running RunState = iota
	Stopped
)

func (s RunState) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// DefaultReadTimeout bounds one response read.
const DefaultReadTimeout = time.Second

// Options configures a Loop. Zero values select the defaults.
type Options struct {
	WindowSize  int
	Interval    time.Duration
	ReadTimeout time.Duration
	Calibration calib.Config
	Clock       pacer.Clock
}

type offsetUpdate struct {
	ch     calib.Channel
	offset float64
}

// Loop owns the acquisition state and is its only writer. Operator offset
// changes arrive through a queue and are applied at the next tick boundary.
type Loop struct {
	tr          sensor.Transport
	sink        Sink
	pacer       *pacer.Pacer
	clock       pacer.Clock
	cal         calib.Config
	readTimeout time.Duration
	req         []byte

	state   *State
	stats   Stats
	offsets chan offsetUpdate
	run     atomic.Int32

	shortWindowStart time.Time
	shortInWindow    int
}

// New builds a loop around an open transport. The loop takes ownership of
// tr and closes it when Run returns.
func New(tr sensor.Transport, sink Sink, opts Options) (*Loop, error) {
	if tr == nil {
		return nil, errors.New("acquire: nil transport")
	}
	if sink == nil {
		sink = Sinks(nil)
	}
	if opts.Calibration == (calib.Config{}) {
		opts.Calibration = calib.DefaultConfig()
	}
	if err := opts.Calibration.Validate(); err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Clock == nil {
		opts.Clock = pacer.RealClock{}
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = window.DefaultSize
	}

	l := &Loop{
		tr:          tr,
		sink:        sink,
		pacer:       pacer.New(opts.Interval, opts.Clock),
		clock:       opts.Clock,
		cal:         opts.Calibration,
		readTimeout: opts.ReadTimeout,
		req:         frame.BuildRequest(),
		state:       NewState(opts.WindowSize),
		offsets:     make(chan offsetUpdate, 16),
	}
	l.syncOffsets()
	return l, nil
}

// RunState reports whether the loop is running.
func (l *Loop) RunState() RunState { return RunState(l.run.Load()) }

// Interval returns the tick interval.
func (l *Loop) Interval() time.Duration { return l.pacer.Interval() }

// SetOffset queues an offset change for ch. It is safe to call from any
// goroutine.
func (l *Loop) SetOffset(ch calib.Channel, offset float64) error {
	var scratch calib.Config
	if err := scratch.SetOffset(ch, offset); err != nil {
		return err
	}
	select {
	case l.offsets <- offsetUpdate{ch: ch, offset: offset}:
		return nil
	default:
		return errors.New("acquire: offset queue full, retry")
	}
}

// Run ticks until ctx is cancelled or the transport fails. Cancellation is
// observed between ticks; the tick in flight always completes. The
// transport is closed on return. A nil error means an orderly stop.
func (l *Loop) Run(ctx context.Context) error {
	l.run.Store(int32(Running))
	defer func() {
		l.run.Store(int32(Stopped))
		if cerr := l.tr.Close(); cerr != nil {
			log.Printf("[acquire] close %s: %v", l.tr.Name(), cerr)
		}
		log.Printf("[acquire] stopped after %d ticks (%d short frames, %d overruns)",
			l.stats.Ticks, l.stats.ShortFrames, l.pacer.Stats().Overruns)
	}()

	log.Printf("[acquire] running on %s every %v", l.tr.Name(), l.pacer.Interval())
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := l.pacer.Tick(l.Step); err != nil {
			return fmt.Errorf("acquire: %w", err)
		}
	}
}

// Step performs one unpaced tick. Only transport faults are returned; a
// short response skips decoding and still publishes.
func (l *Loop) Step() error {
	l.applyOffsets()

	if err := l.tr.Write(l.req); err != nil {
		return err
	}
	b, err := l.tr.Read(frame.ResponseSize, l.readTimeout)
	if err != nil {
		return err
	}

	l.stats.Ticks++
	stale := false
	resp, err := frame.ParseResponse(b)
	switch {
	case err == nil:
		l.state.Apply(resp, l.cal)
		l.countOutOfRange()
		l.flushShortFrames(l.clock.Now())
	case errors.Is(err, frame.ErrShortFrame):
		stale = true
		l.stats.ShortFrames++
		l.noteShortFrame()
	default:
		return err
	}

	snap := l.state.Snapshot()
	snap.Tick = l.stats.Ticks
	snap.Stamp = l.clock.Now()
	snap.Stale = stale
	snap.Stats = l.stats
	snap.Stats.Overruns = l.pacer.Stats().Overruns
	l.sink.Publish(snap)
	return nil
}

func (l *Loop) countOutOfRange() {
	for _, ch := range calib.Channels {
		if !l.state.latest[ch].Valid {
			l.stats.OutOfRange[ch]++
		}
	}
}

func (l *Loop) applyOffsets() {
	for {
		select {
		case u := <-l.offsets:
			if err := l.cal.SetOffset(u.ch, u.offset); err != nil {
				log.Printf("[acquire] offset %s: %v", u.ch, err)
				continue
			}
			log.Printf("[acquire] %s offset set to %g", u.ch, u.offset)
			l.syncOffsets()
		default:
			return
		}
	}
}

func (l *Loop) syncOffsets() {
	for _, ch := range calib.Channels {
		l.stats.Offsets[ch] = l.cal.Channel(ch).Offset
	}
}

// noteShortFrame counts a short frame. Counts are summarised at most once
// per second.
func (l *Loop) noteShortFrame() {
	now := l.clock.Now()
	if l.shortInWindow == 0 {
		l.shortWindowStart = now
	}
	l.shortInWindow++
	l.flushShortFrames(now)
}

// flushShortFrames logs the pending count once a second has passed since the
// first short frame it covers. Clean ticks call it too, so a burst is
// reported after it ends.
func (l *Loop) flushShortFrames(now time.Time) {
	if l.shortInWindow == 0 {
		return
	}
	elapsed := now.Sub(l.shortWindowStart)
	if elapsed < time.Second {
		return
	}
	log.Printf("[acquire] %d short frames in last %v", l.shortInWindow, elapsed.Round(time.Millisecond))
	l.shortInWindow = 0
}
