package board

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// Driver owns at most one active Session.
type Driver struct {
	Config Config
	Host   Host

	lock    sync.Mutex
	session *Session
}

// NewDriver creates a Driver reporting to host.
func NewDriver(host Host, conf *Config) *Driver {
	if conf == nil {
		conf = Default()
	}
	return &Driver{Config: *conf, Host: host}
}

// Connect is called once the board is physically connected. It tears
// down the previous session, if any, and starts a new one which opens its
// channels with opener.
func (d *Driver) Connect(ctx context.Context, opener ChannelOpener) (*Session, error) {
	if opener == nil {
		return nil, ErrNoOpener
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.session != nil {
		glog.Info("closing previous session")
		d.session.Close()
	}
	d.session = newSession(opener, d.Host, d.Config)
	d.session.start(ctx)
	return d.session, nil
}

// Disconnect tears down the current session.
func (d *Driver) Disconnect() error {
	d.lock.Lock()
	s := d.session
	d.session = nil
	d.lock.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	return s.Close()
}

// Session returns the current session, nil if not connected.
func (d *Driver) Session() *Session {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.session
}
