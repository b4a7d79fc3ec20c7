// Package calib converts raw response bytes into physical units and checks
// them against each channel's valid range.
package calib

import (
	"fmt"
	"math"
	"strings"
)

// Sentinel replaces calibrated values that fall outside their valid range.
const Sentinel = 0.0

// Channel identifies one of the scalar telemetry channels.
type Channel int

const (
	Distance Channel = iota
	Yaw
	Pitch

	NumChannels = 3
)

// Channels lists the scalar channels in publication order.
var Channels = [NumChannels]Channel{Distance, Yaw, Pitch}

func (c Channel) String() string {
	switch c {
	case Distance:
		return "distance"
	case Yaw:
		return "yaw"
	case Pitch:
		return "pitch"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Label is the human-readable name used on displays.
func (c Channel) Label() string {
	switch c {
	case Distance:
		return "Distance"
	case Yaw:
		return "Yaw Angle"
	case Pitch:
		return "Pitch Angle"
	default:
		return c.String()
	}
}

// ParseChannel accepts a channel name, case-insensitively.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "distance", "dist":
		return Distance, nil
	case "yaw":
		return Yaw, nil
	case "pitch":
		return Pitch, nil
	}
	return 0, fmt.Errorf("calib: unknown channel %q", s)
}

// ChannelConfig is the linear transform and valid range for one channel:
//
//	value = raw*Scale/Divisor + Bias + Offset, valid iff Min <= value <= Max
//
// A zero Divisor means 1. Decimal steps go in Divisor: raw/10 rounds to the
// nearest double, raw*0.1 may not, and limits are compared exactly.
type ChannelConfig struct {
	Scale   float64 `yaml:"scale" json:"scale"`
	Divisor float64 `yaml:"divisor,omitempty" json:"divisor,omitempty"`
	Bias    float64 `yaml:"bias" json:"bias"`
	Offset  float64 `yaml:"offset" json:"offset"` // operator adjustable
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`
}

func (cc ChannelConfig) divisor() float64 {
	if cc.Divisor == 0 {
		return 1
	}
	return cc.Divisor
}

// Config holds the calibration of every scalar channel.
type Config struct {
	Distance ChannelConfig `yaml:"distance" json:"distance"`
	Yaw      ChannelConfig `yaml:"yaw" json:"yaw"`
	Pitch    ChannelConfig `yaml:"pitch" json:"pitch"`
}

// DefaultConfig returns the factory calibration with zero offsets.
func DefaultConfig() Config {
	return Config{
		Distance: ChannelConfig{Scale: 1, Divisor: 10, Bias: 0, Min: 0, Max: 20.5},
		Yaw:      ChannelConfig{Scale: 1, Divisor: 2, Bias: -40, Min: -30, Max: 30},
		Pitch:    ChannelConfig{Scale: 1, Divisor: 2, Bias: -40, Min: -30, Max: 30},
	}
}

// Channel returns the settings for ch.
func (c Config) Channel(ch Channel) ChannelConfig {
	switch ch {
	case Distance:
		return c.Distance
	case Yaw:
		return c.Yaw
	case Pitch:
		return c.Pitch
	}
	return ChannelConfig{}
}

func (c *Config) channel(ch Channel) *ChannelConfig {
	switch ch {
	case Distance:
		return &c.Distance
	case Yaw:
		return &c.Yaw
	case Pitch:
		return &c.Pitch
	}
	return nil
}

// SetOffset changes the offset of ch. Offsets are the only fields that may
// change after startup.
func (c *Config) SetOffset(ch Channel, offset float64) error {
	cc := c.channel(ch)
	if cc == nil {
		return fmt.Errorf("calib: unknown channel %d", int(ch))
	}
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return fmt.Errorf("calib: %s offset must be finite", ch)
	}
	cc.Offset = offset
	return nil
}

// WithoutOffsets returns c with every offset zeroed.
func (c Config) WithoutOffsets() Config {
	c.Distance.Offset, c.Yaw.Offset, c.Pitch.Offset = 0, 0, 0
	return c
}

// Validate checks every channel for a usable transform and range.
func (c Config) Validate() error {
	for _, ch := range Channels {
		cc := c.Channel(ch)
		for name, v := range map[string]float64{
			"scale": cc.Scale, "divisor": cc.Divisor, "bias": cc.Bias, "offset": cc.Offset, "min": cc.Min, "max": cc.Max,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("calib: %s %s must be finite", ch, name)
			}
		}
		if cc.Min > cc.Max {
			return fmt.Errorf("calib: %s range [%g, %g] is inverted", ch, cc.Min, cc.Max)
		}
	}
	return nil
}

// Calibrate applies the channel transform to a raw byte.
func Calibrate(ch Channel, raw uint8, cfg Config) float64 {
	cc := cfg.Channel(ch)
	return float64(raw)*cc.Scale/cc.divisor() + cc.Bias + cc.Offset
}

// InRange reports whether v lies in the channel's inclusive valid range.
func InRange(ch Channel, v float64, cfg Config) bool {
	cc := cfg.Channel(ch)
	return cc.Min <= v && v <= cc.Max
}

// Validate returns v when it is in range and Sentinel otherwise.
func Validate(ch Channel, v float64, cfg Config) float64 {
	if InRange(ch, v, cfg) {
		return v
	}
	return Sentinel
}

// Reading is a single calibrated sample. Value is the calibrated value
// before range checking; Windowed is what goes into the rolling window.
// Valid tells a genuine zero apart from a clamped one.
type Reading struct {
	Raw      uint8   `json:"raw"`
	Value    float64 `json:"value"`
	Windowed float64 `json:"windowed"`
	Valid    bool    `json:"valid"`
}

// Measure calibrates and validates one raw byte.
func Measure(ch Channel, raw uint8, cfg Config) Reading {
	v := Calibrate(ch, raw, cfg)
	ok := InRange(ch, v, cfg)
	r := Reading{Raw: raw, Value: v, Windowed: Sentinel, Valid: ok}
	if ok {
		r.Windowed = v
	}
	return r
}
