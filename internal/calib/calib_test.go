package calib

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrateDefaults(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 20.5, Calibrate(Distance, 205, cfg))
	assert.InDelta(t, 25.5, Calibrate(Distance, 255, cfg), 1e-9)
	assert.Equal(t, 0.0, Calibrate(Distance, 0, cfg))
	assert.Equal(t, 10.0, Calibrate(Yaw, 100, cfg))
	assert.Equal(t, 10.0, Calibrate(Pitch, 100, cfg))
	assert.Equal(t, -40.0, Calibrate(Yaw, 0, cfg))
	assert.Equal(t, 87.5, Calibrate(Pitch, 255, cfg))
}

func TestCalibrateDistanceMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	prev := math.Inf(-1)
	for raw := 0; raw <= 255; raw++ {
		v := Calibrate(Distance, uint8(raw), cfg)
		assert.GreaterOrEqual(t, v, prev, "raw %d", raw)
		prev = v
	}
}

func TestCalibrateOffsets(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.SetOffset(Yaw, 1.5))
	require.NoError(t, cfg.SetOffset(Pitch, -2))

	assert.Equal(t, 11.5, Calibrate(Yaw, 100, cfg))
	assert.Equal(t, 8.0, Calibrate(Pitch, 100, cfg))
	assert.Equal(t, 20.5, Calibrate(Distance, 205, cfg), "distance offset untouched")

	assert.Error(t, cfg.SetOffset(Channel(7), 1))
	assert.Error(t, cfg.SetOffset(Yaw, math.NaN()))
	assert.Error(t, cfg.SetOffset(Yaw, math.Inf(1)))
}

func TestCalibrateDistanceOffsetAtLimit(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.SetOffset(Distance, -4.7))

	// 25.2 - 4.7 lands exactly on the inclusive upper limit.
	r := Measure(Distance, 252, cfg)
	assert.Equal(t, 20.5, r.Value)
	assert.True(t, r.Valid)
	assert.Equal(t, 20.5, r.Windowed)
}

func TestCalibrateMatchesDivision(t *testing.T) {
	cfg := DefaultConfig()
	for raw := 0; raw <= 255; raw++ {
		assert.Equal(t, float64(raw)/10.0, Calibrate(Distance, uint8(raw), cfg), "distance raw %d", raw)
		assert.Equal(t, float64(raw)/2-40.0, Calibrate(Yaw, uint8(raw), cfg), "yaw raw %d", raw)
	}

	// A zero divisor leaves the scale alone.
	cfg.Yaw = ChannelConfig{Scale: 0.5, Bias: -40, Min: -30, Max: 30}
	assert.Equal(t, 10.0, Calibrate(Yaw, 100, cfg))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		ch   Channel
		in   float64
		want float64
	}{
		{Distance, 0, 0},
		{Distance, 20.5, 20.5},
		{Distance, 20.50001, Sentinel},
		{Distance, -0.1, Sentinel},
		{Distance, 25.5, Sentinel},
		{Yaw, -30, -30},
		{Yaw, 30, 30},
		{Yaw, 30.5, Sentinel},
		{Yaw, -30.5, Sentinel},
		{Pitch, 12.5, 12.5},
		{Pitch, -40, Sentinel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Validate(tt.ch, tt.in, cfg), "%s %v", tt.ch, tt.in)
	}
}

func TestValidateEveryRawByte(t *testing.T) {
	cfg := DefaultConfig()
	for _, ch := range Channels {
		cc := cfg.Channel(ch)
		for raw := 0; raw <= 255; raw++ {
			v := Calibrate(ch, uint8(raw), cfg)
			got := Validate(ch, v, cfg)
			if v < cc.Min || v > cc.Max {
				assert.Equal(t, Sentinel, got, "%s raw %d", ch, raw)
			} else {
				assert.Equal(t, v, got, "%s raw %d", ch, raw)
			}
		}
	}
}

func TestMeasure(t *testing.T) {
	cfg := DefaultConfig()

	r := Measure(Distance, 255, cfg)
	assert.InDelta(t, 25.5, r.Value, 1e-9)
	assert.Equal(t, Sentinel, r.Windowed)
	assert.False(t, r.Valid)
	assert.Equal(t, uint8(255), r.Raw)

	// A genuine zero reading stays distinguishable from a clamped one.
	r = Measure(Distance, 0, cfg)
	assert.Equal(t, 0.0, r.Windowed)
	assert.True(t, r.Valid)

	r = Measure(Yaw, 100, cfg)
	assert.Equal(t, Reading{Raw: 100, Value: 10, Windowed: 10, Valid: true}, r)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Yaw.Min, cfg.Yaw.Max = 10, -10
	assert.ErrorContains(t, cfg.Validate(), "inverted")

	cfg = DefaultConfig()
	cfg.Distance.Scale = math.NaN()
	assert.ErrorContains(t, cfg.Validate(), "distance scale")

	cfg = DefaultConfig()
	cfg.Pitch.Divisor = math.Inf(1)
	assert.ErrorContains(t, cfg.Validate(), "pitch divisor")
}

func TestParseChannel(t *testing.T) {
	for in, want := range map[string]Channel{"distance": Distance, "DIST": Distance, " Yaw ": Yaw, "pitch": Pitch} {
		got, err := ParseChannel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseChannel("roll")
	assert.Error(t, err)

	assert.Equal(t, "yaw", Yaw.String())
	assert.Equal(t, "Pitch Angle", Pitch.Label())
}
