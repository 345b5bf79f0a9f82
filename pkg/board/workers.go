package board

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/balance.go/pkg/board/wire"
	fx "github.com/robotalks/balance.go/pkg/framework"
)

// worker wraps a session worker so an unexpected exit fails the session.
func (s *Session) worker(name string, run func(context.Context) error) fx.Runnable {
	return fx.NamedRun(name, fx.RunFunc(func(ctx context.Context) error {
		err := run(ctx)
		if err != nil && ctx.Err() == nil {
			s.fail(err.Error())
		}
		return err
	}))
}

func (s *Session) openChannel(ctx context.Context, psm PSM) (Channel, error) {
	ch, err := s.opener.OpenChannel(ctx, psm)
	if err != nil {
		return nil, &ChannelError{PSM: psm, Op: "open", Err: err}
	}
	glog.V(2).Infof("%s channel open", psm)
	return ch, nil
}

func (s *Session) runReader(ctx context.Context) error {
	ch, err := s.openChannel(ctx, PSMInput)
	if err != nil {
		return err
	}
	return fx.RunWithContextCloser(ctx, ch, func() error {
		s.channelReady(PSMInput)
		for {
			frame, err := ch.ReadPacket()
			if err != nil {
				return &ChannelError{PSM: PSMInput, Op: "read", Err: err}
			}
			glog.V(4).Infof("recv % x", frame)
			s.handleFrame(frame)
		}
	})
}

func (s *Session) runWriter(ctx context.Context) error {
	ch, err := s.openChannel(ctx, PSMOutput)
	if err != nil {
		return err
	}
	return fx.RunWithContextCloser(ctx, ch, func() error {
		s.channelReady(PSMOutput)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case cmd := <-s.writeCh:
				frame := cmd.Bytes()
				glog.V(4).Infof("send % x", frame)
				if err := ch.WritePacket(frame); err != nil {
					return &ChannelError{PSM: PSMOutput, Op: "write", Err: err}
				}
			}
		}
	})
}

// runPoller bounds the wait for the status report and then for the
// expansion. A missing status is requested once, a missing expansion
// fails the session.
func (s *Session) runPoller(ctx context.Context) error {
	statusReceived := func() bool { return s.statusReceived }
	if !s.await(ctx, s.statusCh, s.Config.StatusPolls, statusReceived) {
		if err := ctx.Err(); err != nil {
			return err
		}
		glog.Info("no status report, requesting one")
		if err := s.send(wire.StatusRequest()); err != nil {
			return err
		}
	}
	hasExpansion := func() bool { return s.hasExpansion }
	if !s.await(ctx, s.expansionCh, s.Config.ExpansionPolls, hasExpansion) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrNoExpansion
	}
	return nil
}

// await waits up to polls*PollInterval for cond, which is evaluated under
// the connection lock whenever ch is notified.
func (s *Session) await(ctx context.Context, ch <-chan struct{}, polls int, cond func() bool) bool {
	check := func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		return cond()
	}
	timer := time.NewTimer(s.Config.PollInterval * time.Duration(polls))
	defer timer.Stop()
	for {
		if check() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ch:
		case <-timer.C:
			return check()
		}
	}
}

func (s *Session) runBlinker(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.BlinkInterval)
	defer ticker.Stop()
	var on byte
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			on ^= 1
			err := s.send(wire.LEDCommand(on << 4))
			if errors.Is(err, ErrWriteQueueFull) {
				glog.Warning("LED command dropped: write queue full")
			} else if err != nil {
				return err
			}
		}
	}
}
