// Package board drives a balance board over a pair of L2CAP channels.
//
// A Session brings the board up (status, expansion handshake, report
// type), then turns every data report into a calibrated weight which is
// handed to the Host. The platform socket is injected as a
// ChannelOpener so nothing here depends on a concrete transport.
package board

import (
	"context"
	"fmt"
	"io"
)

// PSM identifies an L2CAP channel of the board.
type PSM uint16

// Channels used by the board.
const (
	PSMOutput PSM = 0x11
	PSMInput  PSM = 0x13
)

func (p PSM) String() string {
	switch p {
	case PSMOutput:
		return "output"
	case PSMInput:
		return "input"
	}
	return fmt.Sprintf("psm %#02x", uint16(p))
}

// Channel is an open packet oriented channel. Close must unblock a
// pending ReadPacket.
type Channel interface {
	ReadPacket() ([]byte, error)
	WritePacket([]byte) error
	io.Closer
}

// ChannelOpener opens channels to the connected board.
type ChannelOpener interface {
	OpenChannel(ctx context.Context, psm PSM) (Channel, error)
}

// OpenChannelFunc is func type of ChannelOpener.
type OpenChannelFunc func(ctx context.Context, psm PSM) (Channel, error)

// OpenChannel implements ChannelOpener.
func (f OpenChannelFunc) OpenChannel(ctx context.Context, psm PSM) (Channel, error) {
	return f(ctx, psm)
}
