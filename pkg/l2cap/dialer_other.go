//go:build !linux

package l2cap

import (
	"context"

	"github.com/robotalks/balance.go/pkg/board"
)

// OpenChannel implements board.ChannelOpener.
func (d *Dialer) OpenChannel(ctx context.Context, psm board.PSM) (board.Channel, error) {
	return nil, ErrNotSupported
}
