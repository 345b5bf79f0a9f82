// Package calib converts raw load cell counts into kilograms.
package calib

// Sensor identifies one of the four load cells.
type Sensor int

// Sensors, in the order used by Engine.
const (
	TopLeft Sensor = iota
	TopRight
	BottomLeft
	BottomRight
	NumSensors
)

var sensorNames = [NumSensors]string{"top-left", "top-right", "bottom-left", "bottom-right"}

// String returns the sensor name.
func (s Sensor) String() string {
	if s >= 0 && s < NumSensors {
		return sensorNames[s]
	}
	return "unknown"
}

// Calibration point indices.
const (
	PointZero = iota
	PointMid
	PointHigh
	NumPoints
)

// SegmentKg is the load covered by each interpolation segment.
const SegmentKg = 17.0

// SmoothingWindow is the capacity of the per-sensor history.
const SmoothingWindow = 20

// Points are the raw counts recorded at 0, 17 and 34 kg.
type Points [NumPoints]int

// Table holds calibration points for all sensors.
type Table [NumSensors]Points

// Interpolate maps a raw count to kilograms using two linear segments.
// A degenerate segment (equal endpoints) yields the segment base.
func Interpolate(raw int, p Points) float64 {
	if raw < p[PointMid] {
		span := p[PointMid] - p[PointZero]
		if span == 0 {
			return 0
		}
		return SegmentKg * (float64(raw-p[PointZero]) / float64(span))
	}
	span := p[PointHigh] - p[PointMid]
	if span == 0 {
		return SegmentKg
	}
	return SegmentKg + SegmentKg*(float64(raw-p[PointMid])/float64(span))
}

// Engine smooths calibrated readings and applies tare offsets.
// It is not safe for concurrent use.
type Engine struct {
	table Table

	history  [NumSensors][SmoothingWindow]float64
	cursor   int
	count    int
	smoothed [NumSensors]float64

	offsets     [NumSensors]float64
	calibrating bool
}

// NewEngine creates an Engine with the calibration table.
func NewEngine(table Table) *Engine {
	return &Engine{table: table}
}

// Table returns the calibration table.
func (e *Engine) Table() Table {
	return e.table
}

// SetTable replaces the calibration table. History and offsets are kept.
func (e *Engine) SetTable(table Table) {
	e.table = table
}

// SetRaw feeds one sample of raw counts.
func (e *Engine) SetRaw(tl, tr, bl, br int) {
	raw := [NumSensors]int{tl, tr, bl, br}
	last := e.cursor
	for s, v := range raw {
		if v < 0 {
			v = 0
		}
		e.history[s][last] = Interpolate(v, e.table[s])
	}
	e.cursor = (e.cursor + 1) % SmoothingWindow
	if e.count < SmoothingWindow {
		e.count++
	}
	for s := range e.smoothed {
		e.smoothed[s] = mean(&e.history[s], last, e.count)
	}
}

// mean averages count entries walking backward from last.
func mean(values *[SmoothingWindow]float64, last, count int) float64 {
	if count == 0 {
		return 0
	}
	var total float64
	for i := 0; i < count; i++ {
		total += values[(last-i+SmoothingWindow)%SmoothingWindow]
	}
	return total / float64(count)
}

// Samples returns the number of valid history entries.
func (e *Engine) Samples() int {
	return e.count
}

// Smoothed returns the smoothed value of a sensor before the offset.
func (e *Engine) Smoothed(s Sensor) float64 {
	return e.smoothed[s]
}

// Offset returns the tare offset of a sensor.
func (e *Engine) Offset(s Sensor) float64 {
	return e.offsets[s]
}

// Reading returns the smoothed, offset corrected value of a sensor.
func (e *Engine) Reading(s Sensor) float64 {
	return e.smoothed[s] - e.offsets[s]
}

// TopLeft returns the reading of the top-left sensor.
func (e *Engine) TopLeft() float64 { return e.Reading(TopLeft) }

// TopRight returns the reading of the top-right sensor.
func (e *Engine) TopRight() float64 { return e.Reading(TopRight) }

// BottomLeft returns the reading of the bottom-left sensor.
func (e *Engine) BottomLeft() float64 { return e.Reading(BottomLeft) }

// BottomRight returns the reading of the bottom-right sensor.
func (e *Engine) BottomRight() float64 { return e.Reading(BottomRight) }

// TotalWeight sums the readings of all sensors.
func (e *Engine) TotalWeight() float64 {
	var total float64
	for s := Sensor(0); s < NumSensors; s++ {
		total += e.Reading(s)
	}
	return total
}

// Calibrating reports whether a tare is in progress.
func (e *Engine) Calibrating() bool {
	return e.calibrating
}

// SetCalibrating starts or ends a tare. Starting clears the offsets,
// ending captures the current smoothed values as offsets.
func (e *Engine) SetCalibrating(active bool) {
	if e.calibrating == active {
		return
	}
	e.calibrating = active
	if active {
		e.offsets = [NumSensors]float64{}
		return
	}
	e.offsets = e.smoothed
}
