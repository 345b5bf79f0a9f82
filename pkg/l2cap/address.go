// Package l2cap opens L2CAP channels to a board by its Bluetooth address.
package l2cap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidAddress indicates a malformed Bluetooth address.
	ErrInvalidAddress = errors.New("invalid bluetooth address")
	// ErrNotSupported indicates L2CAP sockets are unavailable on this platform.
	ErrNotSupported = errors.New("l2cap not supported on this platform")
)

// Address is a Bluetooth device address, most significant byte first.
type Address [6]byte

// ParseAddress parses addresses like 00:1F:C5:12:34:56.
func ParseAddress(s string) (addr Address, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != len(addr) {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, part := range parts {
		if len(part) != 2 {
			return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		b, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		addr[i] = byte(b)
	}
	return addr, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Dialer implements board.ChannelOpener for one board.
type Dialer struct {
	Address Address
	// MTU is the receive buffer size of a channel.
	MTU int
}

const defaultMTU = 672

// NewDialer creates a Dialer.
func NewDialer(addr Address) *Dialer {
	return &Dialer{Address: addr, MTU: defaultMTU}
}

func (d *Dialer) mtu() int {
	if d.MTU > 0 {
		return d.MTU
	}
	return defaultMTU
}
