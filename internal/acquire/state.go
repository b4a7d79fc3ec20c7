package acquire

import (
	"time"

	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/frame"
	"github.com/shaunagostinho/sensordash/internal/window"
)

// Stats are the loop counters carried in every snapshot.
type Stats struct {
	Ticks       uint64                     `json:"ticks"`
	ShortFrames uint64                     `json:"shortFrames"`
	Overruns    uint64                     `json:"overruns"`
	OutOfRange  [calib.NumChannels]uint64  `json:"outOfRange"` // distance, yaw, pitch
	Offsets     [calib.NumChannels]float64 `json:"offsets"`
}

// Snapshot is the state handed to sinks once per tick. It is a deep copy
// and must be treated as read-only: the same value may reach several sinks.
type Snapshot struct {
	Tick  uint64    `json:"tick"`
	Stamp time.Time `json:"stamp"`
	// Stale is set when this tick's response was short; everything else
	// is unchanged from the previous tick.
	Stale bool `json:"stale"`

	// Latest calibrated values before range checking, for text display.
	Distance float64 `json:"distance"`
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	// Valid reports per channel whether the latest value was in range;
	// an invalid value entered its window as calib.Sentinel.
	Valid [calib.NumChannels]bool `json:"valid"`

	DistanceWindow []float64      `json:"distanceWindow"`
	YawWindow      []float64      `json:"yawWindow"`
	PitchWindow    []float64      `json:"pitchWindow"`
	RawBank        window.RawBank `json:"rawBank"`

	Stats Stats `json:"stats"`
}

// Value returns the latest pre-window value of ch.
func (s *Snapshot) Value(ch calib.Channel) float64 {
	switch ch {
	case calib.Distance:
		return s.Distance
	case calib.Yaw:
		return s.Yaw
	case calib.Pitch:
		return s.Pitch
	}
	return 0
}

// Window returns the rolling window of ch, oldest first.
func (s *Snapshot) Window(ch calib.Channel) []float64 {
	switch ch {
	case calib.Distance:
		return s.DistanceWindow
	case calib.Yaw:
		return s.YawWindow
	case calib.Pitch:
		return s.PitchWindow
	}
	return nil
}

// State is the acquisition state owned by the loop: one rolling window per
// scalar channel, the latest raw bank and the latest readings.
type State struct {
	windows [calib.NumChannels]*window.Ring
	bank    window.RawBank
	latest  [calib.NumChannels]calib.Reading
}

// NewState returns zero-filled state with windows of the given size.
func NewState(size int) *State {
	s := &State{}
	for i := range s.windows {
		s.windows[i] = window.NewRing(size)
	}
	return s
}

// Apply calibrates a decoded response into the state and returns the
// scalar readings. The raw bank is passed through without range checks.
func (s *State) Apply(resp frame.Response, cfg calib.Config) [calib.NumChannels]calib.Reading {
	raws := [calib.NumChannels]uint8{resp.Distance, resp.Yaw, resp.Pitch}
	for _, ch := range calib.Channels {
		r := calib.Measure(ch, raws[ch], cfg)
		s.windows[ch].Push(r.Windowed)
		s.latest[ch] = r
	}
	s.bank.Set(resp.Bank)
	return s.latest
}

// Window returns a copy of the window for ch.
func (s *State) Window(ch calib.Channel) []float64 { return s.windows[ch].Snapshot() }

// RawBank returns the latest raw bank.
func (s *State) RawBank() window.RawBank { return s.bank }

// Snapshot deep-copies the state.
func (s *State) Snapshot() *Snapshot {
	snap := &Snapshot{
		Distance:       s.latest[calib.Distance].Value,
		Yaw:            s.latest[calib.Yaw].Value,
		Pitch:          s.latest[calib.Pitch].Value,
		DistanceWindow: s.windows[calib.Distance].Snapshot(),
		YawWindow:      s.windows[calib.Yaw].Snapshot(),
		PitchWindow:    s.windows[calib.Pitch].Snapshot(),
		RawBank:        s.bank,
	}
	for _, ch := range calib.Channels {
		snap.Valid[ch] = s.latest[ch].Valid
	}
	return snap
}
