package sensor

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/shaunagostinho/sensordash/internal/frame"
)

// DemoConfig tunes the simulated device.
type DemoConfig struct {
	// ShortFrameRate is the probability in [0,1] of answering with a
	// truncated frame.
	ShortFrameRate float64
	// Seed seeds the noise source; 0 uses the current time.
	Seed int64
}

// Demo simulates the sensor for development and testing. It answers each
// request frame with one response frame; anything else is ignored.
type Demo struct {
	mu      sync.Mutex
	rng     *rand.Rand
	cfg     DemoConfig
	t       float64 // virtual time accumulator
	pending []byte
	closed  bool
}

func NewDemo(cfg DemoConfig) *Demo {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Demo{rng: rand.New(rand.NewSource(seed)), cfg: cfg}
}

func (d *Demo) Name() string { return "Demo (Simulated)" }

func (d *Demo) Write(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return &IOError{Op: "write", Err: errors.New("demo device closed")}
	}
	d.pending = d.pending[:0]
	if !frame.IsRequest(p) {
		return nil
	}

	resp := d.next().Encode()
	if d.cfg.ShortFrameRate > 0 && d.rng.Float64() < d.cfg.ShortFrameRate {
		resp = resp[:d.rng.Intn(frame.ResponseSize)]
	}
	d.pending = append(d.pending, resp...)
	return nil
}

func (d *Demo) Read(n int, _ time.Duration) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, &IOError{Op: "read", Err: errors.New("demo device closed")}
	}
	if n > len(d.pending) {
		n = len(d.pending)
	}
	out := make([]byte, n)
	copy(out, d.pending)
	d.pending = d.pending[n:]
	return out, nil
}

func (d *Demo) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// next advances the simulation by one 200 Hz tick and returns the frame the
// device would send.
func (d *Demo) next() frame.Response {
	d.t += 0.005

	// Target drifting in and out of range, occasionally past the 20.5 m cutoff.
	dist := 11 + 10*math.Sin(d.t*0.4) + d.rng.Float64()*0.6
	yaw := 25*math.Sin(d.t*0.9) + d.rng.Float64()*1.5
	pitch := 18*math.Cos(d.t*0.6) + d.rng.Float64()*1.5

	r := frame.Response{
		Header:   [2]byte{0x52, 0x01},
		Distance: clampByte(dist * 10),
		Yaw:      clampByte((yaw + 40) * 2),
		Pitch:    clampByte((pitch + 40) * 2),
		Trailer:  0x53,
	}
	for i := range r.Bank {
		phase := float64(i) * math.Pi / 4
		r.Bank[i] = clampByte(128 + 100*math.Sin(d.t*1.3+phase) + d.rng.Float64()*20)
	}
	return r
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
