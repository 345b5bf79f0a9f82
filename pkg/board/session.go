package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/balance.go/pkg/board/calib"
	"github.com/robotalks/balance.go/pkg/board/memread"
	"github.com/robotalks/balance.go/pkg/board/wire"
	fx "github.com/robotalks/balance.go/pkg/framework"
)

// Session is the connection to one board.
//
// The state machine is advanced by explicit calls from the workers:
// channelReady from both channel workers, handleFrame from the reader and
// the poller deadlines. All of them serialize on the connection lock.
type Session struct {
	Config Config
	Host   Host

	opener ChannelOpener
	ctx    context.Context
	cancel context.CancelFunc
	runner *fx.Runner

	writeCh chan *wire.Command
	reads   *memread.Pipeline

	lock              sync.Mutex
	state             State
	reason            string
	inputReady        bool
	outputReady       bool
	statusReceived    bool
	expansionReported bool
	hasExpansion      bool

	statusCh    chan struct{}
	expansionCh chan struct{}

	// serializes status events so Ready never follows Failed.
	statusLock sync.Mutex

	engineLock sync.Mutex
	engine     *calib.Engine
	weight     float64

	now func() time.Time
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	State       State
	Reason      string
	Expansion   bool
	Calibrating bool
	Samples     int
	Weight      float64
	TopLeft     float64
	TopRight    float64
	BottomLeft  float64
	BottomRight float64
}

func newSession(opener ChannelOpener, host Host, conf Config) *Session {
	if host == nil {
		host = &HostFuncs{}
	}
	s := &Session{
		Config:      conf,
		Host:        host,
		opener:      opener,
		writeCh:     make(chan *wire.Command, conf.writeQueue()),
		statusCh:    make(chan struct{}, 1),
		expansionCh: make(chan struct{}, 1),
		engine:      calib.NewEngine(calib.Table{}),
		now:         time.Now,
	}
	s.reads = memread.New(memread.SendCommandFunc(s.send))
	return s
}

func (s *Session) start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.runner = fx.NewRunnerWith(s.ctx)
	s.lock.Lock()
	s.state = AwaitingChannels
	s.lock.Unlock()
	s.emitStatus(Status{Code: StatusConnecting})
	s.runner.Go(
		s.worker("reader", s.runReader),
		s.worker("writer", s.runWriter),
	)
}

// State returns the current state.
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Snapshot returns the current state and readings.
func (s *Session) Snapshot() Snapshot {
	s.lock.Lock()
	snapshot := Snapshot{
		State:     s.state,
		Reason:    s.reason,
		Expansion: s.hasExpansion,
	}
	s.lock.Unlock()
	s.engineLock.Lock()
	defer s.engineLock.Unlock()
	snapshot.Calibrating = s.engine.Calibrating()
	snapshot.Samples = s.engine.Samples()
	snapshot.Weight = s.weight
	snapshot.TopLeft = s.engine.TopLeft()
	snapshot.TopRight = s.engine.TopRight()
	snapshot.BottomLeft = s.engine.BottomLeft()
	snapshot.BottomRight = s.engine.BottomRight()
	return snapshot
}

// SetCalibrating starts or stops taring. Leaving calibration keeps the
// current readings as the new zero.
func (s *Session) SetCalibrating(active bool) {
	s.engineLock.Lock()
	s.engine.SetCalibrating(active)
	s.engineLock.Unlock()
	glog.Infof("calibrating: %v", active)
}

// Close stops all workers and waits for them for at most
// Config.JoinTimeout. Workers still running after that are abandoned.
func (s *Session) Close() error {
	s.lock.Lock()
	if s.state == Disconnected {
		s.lock.Unlock()
		return nil
	}
	s.state = Disconnected
	s.lock.Unlock()
	s.stop()
	if err := s.runner.WaitTimeout(s.Config.JoinTimeout); errors.Is(err, fx.ErrJoinTimeout) {
		glog.Warningf("workers not stopped in %v, abandoned", s.Config.JoinTimeout)
		return err
	}
	glog.Info("disconnected")
	return nil
}

func (s *Session) stop() {
	s.cancel()
	s.reads.Close(ErrClosed)
}

// fail moves the session to Failed and stops all workers. Only the first
// failure is reported.
func (s *Session) fail(reason string) {
	s.lock.Lock()
	if !s.state.Active() {
		s.lock.Unlock()
		return
	}
	s.state, s.reason = Failed, reason
	s.lock.Unlock()
	glog.Errorf("session failed: %s", reason)
	s.stop()
	s.emitStatus(Status{Code: StatusFailed, Reason: reason})
}

func (s *Session) emitStatus(st Status) {
	s.statusLock.Lock()
	defer s.statusLock.Unlock()
	if st.Code == StatusReady && s.State() != Streaming {
		return
	}
	glog.V(2).Infof("status: %s", st)
	s.Host.StatusChanged(st)
}

// send queues a command for the writer.
func (s *Session) send(cmd *wire.Command) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case s.writeCh <- cmd:
		return nil
	default:
		return ErrWriteQueueFull
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// channelReady is called by a channel worker once its channel is open.
// Bring-up starts when both channels are ready.
func (s *Session) channelReady(psm PSM) {
	s.lock.Lock()
	switch psm {
	case PSMInput:
		s.inputReady = true
	case PSMOutput:
		s.outputReady = true
	}
	if !s.inputReady || !s.outputReady || s.state != AwaitingChannels {
		s.lock.Unlock()
		return
	}
	s.state = AwaitingStatus
	handshake := s.beginHandshakeLocked()
	s.lock.Unlock()

	glog.Info("channels ready")
	s.runner.Go(s.worker("poller", s.runPoller))
	if s.Config.BlinkInterval > 0 {
		s.runner.Go(s.worker("blinker", s.runBlinker))
	}
	if handshake {
		s.handshake()
	}
}

// handleFrame dispatches an inbound frame by its report id.
func (s *Session) handleFrame(frame []byte) {
	rpt, err := wire.ParseReport(frame)
	if err != nil {
		glog.V(2).Infof("drop frame: %v", err)
		return
	}
	switch rpt.ID {
	case wire.RptStatus:
		st, err := rpt.Status()
		if err != nil {
			glog.Warningf("bad status report: %v", err)
			return
		}
		s.handleStatus(st)
	case wire.RptRead:
		res, err := rpt.ReadResult()
		if err != nil {
			glog.Warningf("bad read report: %v", err)
			return
		}
		s.reads.HandleResult(res)
	case wire.RptWrite:
		glog.V(2).Infof("write acknowledged: % x", rpt.Frame)
	case wire.RptButtons:
		glog.V(4).Infof("buttons: % x", rpt.Frame)
	case wire.RptButtonsExp:
		sensors, err := rpt.Sensors()
		if err != nil {
			glog.Warningf("bad data report: %v", err)
			return
		}
		s.handleSensors(sensors)
	default:
		glog.Warningf("unknown report %#02x", rpt.ID)
	}
}

func (s *Session) handleStatus(st wire.Status) {
	s.lock.Lock()
	s.statusReceived = true
	s.expansionReported = st.Expansion
	var handshake bool
	if st.Expansion {
		handshake = s.beginHandshakeLocked()
	} else if s.hasExpansion {
		s.hasExpansion = false
		if s.state.Active() {
			s.state = AwaitingStatus
		}
		glog.Warning("expansion disabled")
	}
	s.lock.Unlock()
	notify(s.statusCh)
	if handshake {
		s.handshake()
	}
}

// beginHandshakeLocked claims the handshake when an expansion is reported
// and none is recorded yet.
func (s *Session) beginHandshakeLocked() bool {
	if s.state != AwaitingStatus || !s.expansionReported || s.hasExpansion {
		return false
	}
	s.state = AwaitingExpansionHandshake
	return true
}

func (s *Session) handshake() {
	glog.Info("expansion detected, reading calibration")
	cmd, err := wire.WriteMemory(wire.AddrExpansionEnable, []byte{0x00})
	if err == nil {
		err = s.send(cmd)
	}
	if err != nil {
		s.fail(fmt.Sprintf("failed to enable expansion: %v", err))
		return
	}
	s.reads.Read(wire.AddrExpansionCalibration, wire.ExpansionCalibrationLen,
		memread.HandleReadFunc(s.expansionRead))
}

func (s *Session) expansionRead(req *memread.Request, err error) {
	if err != nil {
		s.fail(fmt.Sprintf("failed to read calibration data: %v", err))
		return
	}
	block, err := wire.ParseExpansionBlock(req.Data())
	if err != nil {
		s.fail(fmt.Sprintf("invalid calibration data: %v", err))
		return
	}
	if block.ID != wire.ExpansionIDBalanceBoard {
		s.fail((&ExpansionIDError{Expected: wire.ExpansionIDBalanceBoard, Actual: block.ID}).Error())
		return
	}

	s.lock.Lock()
	if s.state != AwaitingExpansionHandshake {
		s.lock.Unlock()
		return
	}
	s.engineLock.Lock()
	s.engine.SetTable(block.Calibration)
	s.engineLock.Unlock()
	s.hasExpansion = true
	s.state = SettingReportType
	s.lock.Unlock()
	notify(s.expansionCh)
	glog.Infof("calibration: %v", block.Calibration)

	if err := s.send(wire.ReportTypeCommand(false, wire.RptButtonsExp)); err != nil {
		s.fail(fmt.Sprintf("failed to set report type: %v", err))
		return
	}
	s.lock.Lock()
	if s.state == SettingReportType {
		s.state = Streaming
	}
	s.lock.Unlock()
	s.emitStatus(Status{Code: StatusReady})
}

func (s *Session) handleSensors(sensors wire.Sensors) {
	if state := s.State(); state != Streaming {
		glog.V(4).Infof("data report in %s dropped", state)
		return
	}
	s.engineLock.Lock()
	s.engine.SetRaw(sensors.TopLeft, sensors.TopRight, sensors.BottomLeft, sensors.BottomRight)
	total := s.engine.TotalWeight()
	s.weight = total
	s.engineLock.Unlock()
	if total > 0 {
		s.Host.MeasurementProduced(Measurement{Weight: total, Time: s.now()})
	}
}
