package board

import (
	"time"
)

// StatusCode is the kind of a status change.
type StatusCode int

// Status codes.
const (
	StatusConnecting StatusCode = iota
	StatusReady
	StatusFailed
)

func (c StatusCode) String() string {
	switch c {
	case StatusConnecting:
		return "connecting"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Status is reported to the host when the session changes status.
type Status struct {
	Code   StatusCode
	Reason string
}

func (s Status) String() string {
	if s.Reason != "" {
		return s.Code.String() + ": " + s.Reason
	}
	return s.Code.String()
}

// Measurement is a total weight in kilograms.
type Measurement struct {
	Weight float64
	Time   time.Time
}

// Host receives events from a session. Methods are called from session
// goroutines and must not block for long.
type Host interface {
	StatusChanged(Status)
	MeasurementProduced(Measurement)
}

// HostFuncs adapts funcs to Host. nil funcs are skipped.
type HostFuncs struct {
	OnStatus      func(Status)
	OnMeasurement func(Measurement)
}

// StatusChanged implements Host.
func (h *HostFuncs) StatusChanged(st Status) {
	if h.OnStatus != nil {
		h.OnStatus(st)
	}
}

// MeasurementProduced implements Host.
func (h *HostFuncs) MeasurementProduced(m Measurement) {
	if h.OnMeasurement != nil {
		h.OnMeasurement(m)
	}
}
