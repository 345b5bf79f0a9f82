package wire

import (
	"errors"
	"fmt"
)

var (
	// ErrShortFrame indicates the frame is too short for its report.
	ErrShortFrame = errors.New("short frame")
	// ErrWriteLength indicates a memory write of zero or more than 16 bytes.
	ErrWriteLength = errors.New("invalid memory write length")
)

// ReportError indicates a report could not be decoded as the expected type.
type ReportError struct {
	Report byte
	Len    int
	Err    error
}

// Error implements error.
func (e *ReportError) Error() string {
	return fmt.Sprintf("report %#02x (%d bytes): %v", e.Report, e.Len, e.Err)
}

// Unwrap returns the underlying error.
func (e *ReportError) Unwrap() error {
	return e.Err
}
