package calib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uniform = Points{2048, 4096, 6144}

func uniformTable() Table {
	return Table{uniform, uniform, uniform, uniform}
}

func TestInterpolate(t *testing.T) {
	testCases := []struct {
		name   string
		raw    int
		points Points
		expect float64
	}{
		{"zero", 2048, uniform, 0},
		{"mid", 4096, uniform, 17},
		{"high", 6144, uniform, 34},
		{"quarter", 3072, uniform, 8.5},
		{"three quarters", 5120, uniform, 25.5},
		{"above high", 8192, uniform, 51},
		{"below zero", 1024, uniform, -8.5},
		{"degenerate lower", 3, Points{5, 5, 20}, 0},
		{"upper after degenerate lower", 10, Points{5, 5, 20}, 17 + 17*(5.0/15.0)},
		{"degenerate upper", 30, Points{0, 20, 20}, 17},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expect, Interpolate(tc.raw, tc.points), 1e-9)
		})
	}
}

func TestInterpolateContinuousAtMid(t *testing.T) {
	points := Points{1900, 3712, 5555}
	require.Equal(t, SegmentKg, Interpolate(points[PointMid], points))
	lower := SegmentKg * (float64(points[PointMid]-points[PointZero]) / float64(points[PointMid]-points[PointZero]))
	require.Equal(t, SegmentKg, lower)
}

func TestInterpolateMonotonic(t *testing.T) {
	points := Points{1900, 3712, 5555}
	prev := Interpolate(0, points)
	for raw := 1; raw < 8000; raw++ {
		v := Interpolate(raw, points)
		require.GreaterOrEqualf(t, v, prev, "raw=%d", raw)
		prev = v
	}
}

func TestEngineEmptyBoard(t *testing.T) {
	e := NewEngine(uniformTable())
	e.SetRaw(2048, 2048, 2048, 2048)
	for s := Sensor(0); s < NumSensors; s++ {
		assert.Equal(t, 0.0, e.Reading(s), s.String())
	}
	assert.Equal(t, 0.0, e.TotalWeight())
}

func TestEngineClampsNegative(t *testing.T) {
	e := NewEngine(Table{{0, 100, 200}, {0, 100, 200}, {0, 100, 200}, {0, 100, 200}})
	e.SetRaw(-5, -1, -32768, 0)
	assert.Equal(t, 0.0, e.TotalWeight())
}

func TestEngineWarmupMean(t *testing.T) {
	e := NewEngine(uniformTable())
	e.SetRaw(4096, 2048, 2048, 2048)
	assert.Equal(t, 17.0, e.TopLeft())
	e.SetRaw(6144, 2048, 2048, 2048)
	assert.Equal(t, 25.5, e.TopLeft())
	e.SetRaw(2048, 2048, 2048, 2048)
	assert.Equal(t, 17.0, e.TopLeft())
	assert.Equal(t, 3, e.Samples())
}

func TestEngineConverges(t *testing.T) {
	e := NewEngine(uniformTable())
	// fill history with noise first
	for i := 0; i < SmoothingWindow; i++ {
		e.SetRaw(2048+i*50, 6144-i*30, 3000, 5000)
	}
	for i := 0; i < SmoothingWindow; i++ {
		e.SetRaw(4096, 6144, 2048, 4096)
	}
	require.Equal(t, SmoothingWindow, e.Samples())
	assert.Equal(t, 17.0, e.TopLeft())
	assert.Equal(t, 34.0, e.TopRight())
	assert.Equal(t, 0.0, e.BottomLeft())
	assert.Equal(t, 17.0, e.BottomRight())
	assert.Equal(t, 68.0, e.TotalWeight())

	// stays fixed after more identical samples
	e.SetRaw(4096, 6144, 2048, 4096)
	assert.Equal(t, 68.0, e.TotalWeight())
}

func TestEngineWindowWraps(t *testing.T) {
	e := NewEngine(uniformTable())
	for i := 0; i < SmoothingWindow; i++ {
		e.SetRaw(6144, 2048, 2048, 2048)
	}
	for i := 0; i < SmoothingWindow/2; i++ {
		e.SetRaw(2048, 2048, 2048, 2048)
	}
	assert.Equal(t, 17.0, e.TopLeft())
}

func TestEngineTare(t *testing.T) {
	e := NewEngine(uniformTable())
	e.SetCalibrating(true)
	require.True(t, e.Calibrating())
	samples := [][4]int{
		{2560, 2048, 3072, 2048},
		{3072, 2048, 3072, 2048},
		{2560, 2048, 3072, 2048},
		{3072, 2048, 3072, 2048},
	}
	for _, s := range samples {
		e.SetRaw(s[0], s[1], s[2], s[3])
	}
	e.SetCalibrating(false)
	assert.InDelta(t, (4.25+8.5+4.25+8.5)/4, e.Offset(TopLeft), 1e-9)
	assert.Equal(t, 0.0, e.Offset(TopRight))
	assert.InDelta(t, 8.5, e.Offset(BottomLeft), 1e-9)

	for _, s := range samples {
		e.SetRaw(s[0], s[1], s[2], s[3])
	}
	assert.InDelta(t, 0, e.TotalWeight(), 1e-9)
}

func TestEngineSetCalibratingEdgeTriggered(t *testing.T) {
	e := NewEngine(uniformTable())
	for i := 0; i < 3; i++ {
		e.SetRaw(3072, 3072, 3072, 3072)
	}
	e.SetCalibrating(false)
	assert.Equal(t, 0.0, e.Offset(TopLeft), "no-op when already idle")

	e.SetCalibrating(true)
	e.SetCalibrating(false)
	assert.Equal(t, 8.5, e.Offset(TopLeft))

	e.SetRaw(6144, 6144, 6144, 6144)
	e.SetCalibrating(false)
	assert.Equal(t, 8.5, e.Offset(TopLeft), "no-op keeps offsets")

	e.SetCalibrating(true)
	assert.Equal(t, 0.0, e.Offset(TopLeft), "starting clears offsets")
}
