package board

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates the session is closed.
	ErrClosed = errors.New("session closed")
	// ErrNoOpener indicates Connect without a channel opener.
	ErrNoOpener = errors.New("no channel opener")
	// ErrNoExpansion indicates the expansion was not confirmed in time.
	ErrNoExpansion = errors.New("no expansion detected")
	// ErrWriteQueueFull indicates the outbound queue is full.
	ErrWriteQueueFull = errors.New("write queue full")
	// ErrNotConnected indicates no active session.
	ErrNotConnected = errors.New("not connected")
)

// ChannelError is a transport failure of a channel.
type ChannelError struct {
	PSM PSM
	Op  string
	Err error
}

// Error implements error.
func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s channel %s: %v", e.PSM, e.Op, e.Err)
}

// Unwrap returns the transport error.
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ExpansionIDError indicates the expansion is not a balance board.
type ExpansionIDError struct {
	Expected uint32
	Actual   uint32
}

// Error implements error.
func (e *ExpansionIDError) Error() string {
	return fmt.Sprintf("unexpected expansion id %#08x, expected %#08x", e.Actual, e.Expected)
}
