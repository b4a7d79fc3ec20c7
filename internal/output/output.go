// Package output holds the text and network sinks that mirror the live
// readings outside the dashboard.
package output

import (
	"log"
	"time"

	"github.com/shaunagostinho/sensordash/internal/acquire"
)

type Output interface {
	Publish(s *acquire.Snapshot) error
	Close() error
}

// Throttle adapts an Output to acquire.Consumer, forwarding at most one
// snapshot per interval of snapshot time. Consume must be called from a
// single goroutine, as acquire.AsyncSink does.
type Throttle struct {
	name     string
	out      Output
	interval time.Duration

	last      time.Time
	failures  int
	lastError time.Time
}

func NewThrottle(name string, out Output, interval time.Duration) *Throttle {
	return &Throttle{name: name, out: out, interval: interval}
}

func (t *Throttle) Consume(s *acquire.Snapshot) {
	if !t.last.IsZero() && s.Stamp.Sub(t.last) < t.interval {
		return
	}
	t.last = s.Stamp

	if err := t.out.Publish(s); err != nil {
		t.failures++
		if time.Since(t.lastError) >= 5*time.Second {
			log.Printf("[%s] publish failed (%d so far): %v", t.name, t.failures, err)
			t.lastError = time.Now()
		}
	}
}

// Failures returns how many publishes returned an error.
func (t *Throttle) Failures() int { return t.failures }

func (t *Throttle) Close() error { return t.out.Close() }
