package l2cap

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/robotalks/balance.go/pkg/board"
)

// OpenChannel implements board.ChannelOpener.
func (d *Dialer) OpenChannel(ctx context.Context, psm board.PSM) (board.Channel, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return nil, fmt.Errorf("l2cap: create socket: %w", err)
	}
	sa := &unix.SockaddrL2{PSM: uint16(psm), Addr: d.Address}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("l2cap: connect %s %s: %w", d.Address, psm, err)
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("l2cap:%s/%#x", d.Address, uint16(psm)))
	if err := waitConnected(ctx, f); err != nil {
		f.Close()
		return nil, fmt.Errorf("l2cap: connect %s %s: %w", d.Address, psm, err)
	}
	glog.V(2).Infof("l2cap: %s %s connected", d.Address, psm)
	return &channel{file: f, mtu: d.mtu()}, nil
}

// waitConnected waits for a non-blocking connect to finish. Canceling ctx
// aborts the wait.
func waitConnected(ctx context.Context, f *os.File) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		f.SetWriteDeadline(time.Unix(1, 0))
	})
	defer stop()

	var soErr int
	first := true
	werr := rc.Write(func(fd uintptr) bool {
		if first {
			first = false
			return false
		}
		soErr, err = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
		if err != nil {
			return true
		}
		switch syscall.Errno(soErr) {
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			return false
		}
		return true
	})
	if werr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return werr
	}
	if err != nil {
		return err
	}
	if soErr != 0 {
		return syscall.Errno(soErr)
	}
	return nil
}

type channel struct {
	file *os.File
	mtu  int
}

func (c *channel) ReadPacket() ([]byte, error) {
	buf := make([]byte, c.mtu)
	n, err := c.file.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *channel) WritePacket(pkt []byte) error {
	_, err := c.file.Write(pkt)
	return err
}

func (c *channel) Close() error {
	return c.file.Close()
}
