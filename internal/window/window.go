// Package window keeps the rolling per-channel histories and the latest
// raw sensor bank.
package window

import "github.com/shaunagostinho/sensordash/internal/frame"

// DefaultSize is the rolling window length.
const DefaultSize = 200

// Ring is a fixed-capacity rolling window. It starts zero-filled, so it
// always holds exactly Cap values; each Push evicts the oldest in O(1).
type Ring struct {
	buf    []float64
	head   int // index of the oldest value, and of the next write
	pushes uint64
}

// NewRing returns a zero-filled window of the given capacity. A
// non-positive size selects DefaultSize.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{buf: make([]float64, size)}
}

// Push appends v and drops the oldest value.
func (r *Ring) Push(v float64) {
	r.buf[r.head] = v
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	r.pushes++
}

// Cap returns the window length.
func (r *Ring) Cap() int { return len(r.buf) }

// Len always equals Cap: slots not yet written hold the zero sentinel.
func (r *Ring) Len() int { return len(r.buf) }

// Pushes returns the number of values pushed since creation.
func (r *Ring) Pushes() uint64 { return r.pushes }

// Last returns the most recently pushed value, or 0 before any push.
func (r *Ring) Last() float64 {
	i := r.head - 1
	if i < 0 {
		i = len(r.buf) - 1
	}
	return r.buf[i]
}

// Snapshot returns a copy of the window, oldest first.
func (r *Ring) Snapshot() []float64 {
	return r.AppendTo(make([]float64, 0, len(r.buf)))
}

// AppendTo appends the window, oldest first, to dst.
func (r *Ring) AppendTo(dst []float64) []float64 {
	dst = append(dst, r.buf[r.head:]...)
	return append(dst, r.buf[:r.head]...)
}

// RawBank is the latest snapshot of the raw sensor bank. No history is kept.
type RawBank [frame.BankSize]uint8

// Set overwrites the bank wholesale.
func (b *RawBank) Set(v [frame.BankSize]uint8) { *b = v }
