package render

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/sensordash/internal/acquire"
	"github.com/shaunagostinho/sensordash/internal/calib"
	"github.com/shaunagostinho/sensordash/internal/window"
)

func testSnapshot() *acquire.Snapshot {
	s := &acquire.Snapshot{
		Tick:     42,
		Distance: 20.5,
		Yaw:      -3.25,
		Pitch:    47.5,
		Valid:    [3]bool{true, true, false},
		RawBank:  window.RawBank{0, 10, 20, 30, 255, 128, 64, 1},
	}
	for i := 0; i < 20; i++ {
		s.DistanceWindow = append(s.DistanceWindow, float64(i))
		s.YawWindow = append(s.YawWindow, float64(i)-10)
		s.PitchWindow = append(s.PitchWindow, calib.Sentinel)
	}
	return s
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Distance: 20.50", Title(calib.Distance, 20.5))
	assert.Equal(t, "Yaw Angle: -3.25", Title(calib.Yaw, -3.25))
	assert.Equal(t, "Pitch Angle: 47.50", Title(calib.Pitch, 47.5))
}

func TestBankLabels(t *testing.T) {
	assert.Equal(t, []string{"S0", "S1", "S2", "S3", "S4", "S5", "S6", "S7"}, BankLabels())
}

func TestPNG(t *testing.T) {
	var buf bytes.Buffer
	l := DefaultLayout()
	l.Width, l.Height = 480, 640
	require.NoError(t, PNG(&buf, testSnapshot(), l))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 480, img.Bounds().Dx())
	assert.Equal(t, 640, img.Bounds().Dy())
}

func TestPNGEmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PNG(&buf, &acquire.Snapshot{}, Layout{}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))
}

func TestChartsHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ChartsHTML(&buf, testSnapshot(), DefaultLayout()))

	html := buf.String()
	assert.True(t, strings.Contains(html, "<html"), "expected a full page")
	for _, want := range []string{"Distance: 20.50", "Yaw Angle: -3.25", "Pitch Angle: 47.50", "S7", "tick 42"} {
		assert.Contains(t, html, want)
	}
}
