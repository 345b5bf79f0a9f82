package wire

import (
	"encoding/binary"

	"github.com/robotalks/balance.go/pkg/board/calib"
)

// Report ids.
const (
	RptStatus     byte = 0x20
	RptRead       byte = 0x21
	RptWrite      byte = 0x22
	RptButtons    byte = 0x30
	RptButtonsExp byte = 0x34
)

const (
	statusFlagsPos  = 4
	statusExpansion = 0x02

	readInfoPos   = 4
	readOffsetPos = 5
	readDataPos   = 7

	sensorsPos    = 4
	sensorsMinLen = 12

	blockIDPos = 220
)

// Report is an inbound frame.
type Report struct {
	ID    byte
	Frame []byte
}

// ParseReport extracts the report id of an inbound frame.
// The frame is referenced, not copied.
func ParseReport(frame []byte) (*Report, error) {
	if len(frame) < 2 {
		return nil, ErrShortFrame
	}
	return &Report{ID: frame[1], Frame: frame}, nil
}

func (r *Report) err(err error) error {
	return &ReportError{Report: r.ID, Len: len(r.Frame), Err: err}
}

// Status is the decoded status report.
type Status struct {
	Expansion bool
}

// Status decodes a status report.
func (r *Report) Status() (st Status, err error) {
	if len(r.Frame) <= statusFlagsPos {
		return st, r.err(ErrShortFrame)
	}
	st.Expansion = r.Frame[statusFlagsPos]&statusExpansion != 0
	return
}

// ReadResult is one chunk of a memory read.
type ReadResult struct {
	// ErrCode is the error nibble, non-zero on failure.
	ErrCode byte
	// Offset is the low 16 bits of the chunk address.
	Offset uint16
	// Data holds the chunk, empty on failure.
	Data []byte
}

// ReadResult decodes a read report.
func (r *Report) ReadResult() (res ReadResult, err error) {
	if len(r.Frame) < readDataPos {
		return res, r.err(ErrShortFrame)
	}
	info := r.Frame[readInfoPos]
	res.ErrCode = info & 0x0f
	res.Offset = binary.BigEndian.Uint16(r.Frame[readOffsetPos:])
	if res.ErrCode != 0 {
		return
	}
	size := int(info>>4) + 1
	if len(r.Frame) < readDataPos+size {
		return res, r.err(ErrShortFrame)
	}
	res.Data = r.Frame[readDataPos : readDataPos+size]
	return
}

// Sensors are raw load cell counts.
type Sensors struct {
	TopRight    int
	BottomRight int
	TopLeft     int
	BottomLeft  int
}

// Sensors decodes the load cells from a button+expansion report.
func (r *Report) Sensors() (s Sensors, err error) {
	if len(r.Frame) < sensorsMinLen {
		return s, r.err(ErrShortFrame)
	}
	s.TopRight = readInt16(r.Frame, sensorsPos)
	s.BottomRight = readInt16(r.Frame, sensorsPos+2)
	s.TopLeft = readInt16(r.Frame, sensorsPos+4)
	s.BottomLeft = readInt16(r.Frame, sensorsPos+6)
	return
}

// ExpansionBlock is the decoded expansion calibration block.
type ExpansionBlock struct {
	ID          uint32
	Calibration calib.Table
}

// ParseExpansionBlock decodes the calibration block read from
// AddrExpansionCalibration.
func ParseExpansionBlock(block []byte) (*ExpansionBlock, error) {
	if len(block) < int(ExpansionCalibrationLen) {
		return nil, ErrShortFrame
	}
	b := &ExpansionBlock{ID: binary.BigEndian.Uint32(block[blockIDPos:])}
	// per point: TR, BR, TL, BL
	order := [calib.NumSensors]calib.Sensor{calib.TopRight, calib.BottomRight, calib.TopLeft, calib.BottomLeft}
	pos := 4
	for p := 0; p < calib.NumPoints; p++ {
		for _, s := range order {
			b.Calibration[s][p] = readInt16(block, pos)
			pos += 2
		}
	}
	return b, nil
}

func readInt16(b []byte, pos int) int {
	return int(int16(binary.BigEndian.Uint16(b[pos:])))
}
