package acquire

import (
	"context"
	"sync/atomic"
)

// Sink receives one snapshot per tick. Publish is called from the
// acquisition loop and must return promptly; slow consumers belong behind
// an AsyncSink.
type Sink interface {
	Publish(s *Snapshot)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(s *Snapshot)

func (f SinkFunc) Publish(s *Snapshot) { f(s) }

// Sinks fans a snapshot out to every member in order.
type Sinks []Sink

func (ss Sinks) Publish(s *Snapshot) {
	for _, sink := range ss {
		sink.Publish(s)
	}
}

// Mailbox is a one-slot, latest-wins handoff between one producer and one
// consumer. A Put never blocks; an unread snapshot is replaced.
type Mailbox struct {
	ch      chan *Snapshot
	dropped atomic.Uint64
}

func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan *Snapshot, 1)}
}

// Put stores s, replacing any snapshot the consumer has not taken yet.
func (m *Mailbox) Put(s *Snapshot) {
	select {
	case m.ch <- s:
		return
	default:
	}
	select {
	case <-m.ch:
		m.dropped.Add(1)
	default:
	}
	select {
	case m.ch <- s:
	default:
		m.dropped.Add(1)
	}
}

// C returns the channel the consumer receives from.
func (m *Mailbox) C() <-chan *Snapshot { return m.ch }

// Dropped returns how many snapshots were replaced before being read.
func (m *Mailbox) Dropped() uint64 { return m.dropped.Load() }

// Consumer processes snapshots off the loop goroutine.
type Consumer interface {
	Consume(s *Snapshot)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(s *Snapshot)

func (f ConsumerFunc) Consume(s *Snapshot) { f(s) }

// AsyncSink decouples a Consumer from the loop through a Mailbox.
type AsyncSink struct {
	Name string
	mb   *Mailbox
	c    Consumer
}

// Async wraps c so that Publish only touches the mailbox.
func Async(name string, c Consumer) *AsyncSink {
	return &AsyncSink{Name: name, mb: NewMailbox(), c: c}
}

func (a *AsyncSink) Publish(s *Snapshot) { a.mb.Put(s) }

// Dropped reports snapshots the consumer skipped because it was busy.
func (a *AsyncSink) Dropped() uint64 { return a.mb.Dropped() }

// Run delivers snapshots to the consumer until ctx is done.
func (a *AsyncSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-a.mb.C():
			a.c.Consume(s)
		}
	}
}
