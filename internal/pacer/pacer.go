// Package pacer runs work at a fixed target rate by measuring how long each
// iteration took and sleeping out the remainder of the interval.
package pacer

import "time"

// DefaultRateHz is the default telemetry rate.
const DefaultRateHz = 200

// Pacer paces a loop to a fixed interval. An overrun is absorbed: the next
// tick starts immediately and there is no catch-up on later ticks.
type Pacer struct {
	interval time.Duration
	clock    Clock

	ticks    uint64
	overruns uint64
	lastWork time.Duration
}

// New returns a Pacer with the given interval. A nil clock selects
// RealClock; a non-positive interval selects 1/DefaultRateHz.
func New(interval time.Duration, clock Clock) *Pacer {
	if interval <= 0 {
		interval = IntervalFor(DefaultRateHz)
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Pacer{interval: interval, clock: clock}
}

// IntervalFor converts a rate in Hz to a tick interval.
func IntervalFor(hz int) time.Duration {
	if hz <= 0 {
		hz = DefaultRateHz
	}
	return time.Second / time.Duration(hz)
}

// Interval returns the target tick interval.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Tick runs work and then blocks for whatever is left of the interval. A
// work error is returned as is, without sleeping.
func (p *Pacer) Tick(work func() error) error {
	start := p.clock.Now()
	err := work()
	elapsed := p.clock.Now().Sub(start)

	p.ticks++
	p.lastWork = elapsed
	if err != nil {
		return err
	}
	if elapsed < p.interval {
		p.clock.Sleep(p.interval - elapsed)
		return nil
	}
	p.overruns++
	return nil
}

// Stats reports counters since creation.
type Stats struct {
	Ticks    uint64        `json:"ticks"`
	Overruns uint64        `json:"overruns"`
	LastWork time.Duration `json:"lastWorkNs"`
}

func (p *Pacer) Stats() Stats {
	return Stats{Ticks: p.ticks, Overruns: p.overruns, LastWork: p.lastWork}
}
