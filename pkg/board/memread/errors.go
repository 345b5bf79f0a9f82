package memread

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the pipeline is closed.
	ErrClosed = errors.New("read pipeline closed")
	// ErrInvalidLength indicates a read of zero bytes.
	ErrInvalidLength = errors.New("invalid read length")
)

// ReadError wraps the error nibble of a read report.
type ReadError struct {
	Address uint32
	Code    byte
}

// Error implements error.
func (e *ReadError) Error() string {
	return fmt.Sprintf("read %#08x: error %d", e.Address, e.Code)
}

// ChunkError indicates a chunk outside the requested range, or more
// data than requested.
type ChunkError struct {
	Address uint32
	Offset  uint16
	Len     int
	Overrun bool
}

// Error implements error.
func (e *ChunkError) Error() string {
	if e.Overrun {
		return fmt.Sprintf("read %#08x: overrun by chunk at %#04x (%d bytes)", e.Address, e.Offset, e.Len)
	}
	return fmt.Sprintf("read %#08x: chunk at %#04x (%d bytes) out of range", e.Address, e.Offset, e.Len)
}
