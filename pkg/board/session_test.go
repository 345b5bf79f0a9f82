package board

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/balance.go/pkg/board/calib"
	"github.com/robotalks/balance.go/pkg/board/wire"
	fx "github.com/robotalks/balance.go/pkg/framework"
)

const testTimeout = time.Second

type fakeChannel struct {
	psm       PSM
	inCh      chan []byte
	errCh     chan error
	outCh     chan []byte
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newFakeChannel(psm PSM) *fakeChannel {
	return &fakeChannel{
		psm:     psm,
		inCh:    make(chan []byte, 64),
		errCh:   make(chan error, 1),
		outCh:   make(chan []byte, 256),
		closeCh: make(chan struct{}),
	}
}

func (c *fakeChannel) ReadPacket() ([]byte, error) {
	select {
	case frame := <-c.inCh:
		return frame, nil
	case err := <-c.errCh:
		return nil, err
	case <-c.closeCh:
		return nil, io.EOF
	}
}

func (c *fakeChannel) WritePacket(frame []byte) error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case err := <-c.errCh:
		return err
	case c.outCh <- append([]byte(nil), frame...):
		return nil
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closeCh) })
	return nil
}

func (c *fakeChannel) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

type testHost struct {
	statusCh  chan Status
	measureCh chan Measurement
}

func newTestHost() *testHost {
	return &testHost{
		statusCh:  make(chan Status, 16),
		measureCh: make(chan Measurement, 64),
	}
}

func (h *testHost) StatusChanged(st Status)           { h.statusCh <- st }
func (h *testHost) MeasurementProduced(m Measurement) { h.measureCh <- m }

type testEnv struct {
	t       *testing.T
	input   *fakeChannel
	output  *fakeChannel
	host    *testHost
	driver  *Driver
	session *Session
	openErr map[PSM]error
}

func testConfig() Config {
	return Config{
		PollInterval:   10 * time.Millisecond,
		StatusPolls:    100,
		ExpansionPolls: 100,
		JoinTimeout:    100 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T, conf Config) *testEnv {
	e := &testEnv{
		t:       t,
		input:   newFakeChannel(PSMInput),
		output:  newFakeChannel(PSMOutput),
		host:    newTestHost(),
		openErr: make(map[PSM]error),
	}
	e.driver = NewDriver(e.host, &conf)
	t.Cleanup(func() { e.driver.Disconnect() })
	return e
}

func (e *testEnv) OpenChannel(ctx context.Context, psm PSM) (Channel, error) {
	if err := e.openErr[psm]; err != nil {
		return nil, err
	}
	if psm == PSMInput {
		return e.input, nil
	}
	return e.output, nil
}

func (e *testEnv) connect() *testEnv {
	s, err := e.driver.Connect(context.Background(), e)
	require.NoError(e.t, err)
	e.session = s
	e.expectStatus(StatusConnecting)
	return e
}

func (e *testEnv) expectStatus(code StatusCode) Status {
	select {
	case st := <-e.host.statusCh:
		require.Equal(e.t, code, st.Code, "status %s", st)
		return st
	case <-time.After(testTimeout):
		e.t.Fatalf("expect status %s", code)
	}
	return Status{}
}

func (e *testEnv) expectNoStatus(d time.Duration) {
	select {
	case st := <-e.host.statusCh:
		e.t.Fatalf("unexpected status %s", st)
	case <-time.After(d):
	}
}

// nextCommand returns the next outbound frame, skipping LED commands.
func (e *testEnv) nextCommand() []byte {
	for {
		select {
		case frame := <-e.output.outCh:
			if frame[1] == wire.CmdLED {
				continue
			}
			return frame
		case <-time.After(testTimeout):
			e.t.Fatal("expect outbound command")
			return nil
		}
	}
}

func (e *testEnv) expectCommand(id byte, payload ...byte) {
	frame := e.nextCommand()
	require.Equal(e.t, wire.ReportPrefix, frame[0])
	require.Equal(e.t, id, frame[1], "frame % x", frame)
	if payload != nil {
		require.Equal(e.t, payload, frame[2:])
	}
}

func (e *testEnv) expectNoCommand(d time.Duration) {
	timer := time.After(d)
	for {
		select {
		case frame := <-e.output.outCh:
			if frame[1] != wire.CmdLED {
				e.t.Fatalf("unexpected command % x", frame)
			}
		case <-timer:
			return
		}
	}
}

func (e *testEnv) deliver(frames ...[]byte) {
	for _, frame := range frames {
		e.input.inCh <- frame
	}
}

func (e *testEnv) expectState(state State) {
	require.Eventually(e.t, func() bool {
		return e.session.State() == state
	}, testTimeout, time.Millisecond, "expect state %s", state)
}

// handshake runs the expansion handshake to streaming with block.
func (e *testEnv) handshake(block []byte) {
	e.deliver(statusFrame(true))
	e.expectCommand(wire.CmdWriteData, writePayload(wire.AddrExpansionEnable, 0x00)...)
	e.expectCommand(wire.CmdReadData, 0x04, 0xa4, 0x00, 0x20, 0x00, 0xe0)
	e.deliver(readFrames(0x0020, block)...)
}

func (e *testEnv) streaming() *testEnv {
	e.handshake(calibBlock(wire.ExpansionIDBalanceBoard, testTable()))
	e.expectCommand(wire.CmdReportType, 0x00, 0x34)
	e.expectStatus(StatusReady)
	e.expectState(Streaming)
	return e
}

func (e *testEnv) expectMeasurement() Measurement {
	select {
	case m := <-e.host.measureCh:
		return m
	case <-time.After(testTimeout):
		e.t.Fatal("expect measurement")
	}
	return Measurement{}
}

func (e *testEnv) expectNoMeasurement(d time.Duration) {
	select {
	case m := <-e.host.measureCh:
		e.t.Fatalf("unexpected measurement %v", m.Weight)
	case <-time.After(d):
	}
}

func statusFrame(expansion bool) []byte {
	frame := []byte{0xa1, wire.RptStatus, 0x00, 0x00, 0x00, 0x00, 0x00, 0x64}
	if expansion {
		frame[4] = 0x02
	}
	return frame
}

func writePayload(addr uint32, data ...byte) []byte {
	payload := make([]byte, 21)
	binary.BigEndian.PutUint32(payload, addr)
	payload[4] = byte(len(data))
	copy(payload[5:], data)
	return payload
}

func readFrames(offset uint16, block []byte) (frames [][]byte) {
	for pos := 0; pos < len(block); pos += 16 {
		chunk := block[pos:]
		if len(chunk) > 16 {
			chunk = chunk[:16]
		}
		frame := []byte{0xa1, wire.RptRead, 0x00, 0x00, byte(len(chunk)-1) << 4, 0, 0}
		binary.BigEndian.PutUint16(frame[5:], offset+uint16(pos))
		frames = append(frames, append(frame, chunk...))
	}
	return
}

func dataFrame(tr, br, tl, bl int) []byte {
	frame := []byte{0xa1, wire.RptButtonsExp, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0, 0}
	for n, v := range []int{tr, br, tl, bl} {
		binary.BigEndian.PutUint16(frame[4+n*2:], uint16(v))
	}
	return frame
}

func testTable() calib.Table {
	var table calib.Table
	for s := range table {
		table[s] = calib.Points{2048, 4096, 6144}
	}
	return table
}

func calibBlock(id uint32, table calib.Table) []byte {
	block := make([]byte, wire.ExpansionCalibrationLen)
	order := []calib.Sensor{calib.TopRight, calib.BottomRight, calib.TopLeft, calib.BottomLeft}
	pos := 4
	for p := 0; p < calib.NumPoints; p++ {
		for _, s := range order {
			binary.BigEndian.PutUint16(block[pos:], uint16(table[s][p]))
			pos += 2
		}
	}
	binary.BigEndian.PutUint32(block[220:], id)
	return block
}

func TestStatusRequestedAfterTimeout(t *testing.T) {
	conf := testConfig()
	conf.StatusPolls = 5
	e := newTestEnv(t, conf).connect()
	e.expectState(AwaitingStatus)
	e.expectCommand(wire.CmdStatus, 0x00)
	e.deliver(statusFrame(true))
	e.expectCommand(wire.CmdWriteData)
	e.expectCommand(wire.CmdReadData)
}

func TestHandshakeSentOnce(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect()
	e.deliver(statusFrame(true), statusFrame(true))
	e.expectCommand(wire.CmdWriteData, writePayload(wire.AddrExpansionEnable, 0x00)...)
	e.expectCommand(wire.CmdReadData, 0x04, 0xa4, 0x00, 0x20, 0x00, 0xe0)
	e.expectNoCommand(50 * time.Millisecond)
	e.expectState(AwaitingExpansionHandshake)
}

func TestHandshakeStreaming(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	snapshot := e.session.Snapshot()
	assert.True(t, snapshot.Expansion)
	assert.Equal(t, Streaming, snapshot.State)

	e.deliver(dataFrame(4096, 4096, 4096, 4096))
	m := e.expectMeasurement()
	assert.InDelta(t, 68.0, m.Weight, 1e-9)
	assert.False(t, m.Time.IsZero())

	snapshot = e.session.Snapshot()
	assert.InDelta(t, 17.0, snapshot.TopLeft, 1e-9)
	assert.InDelta(t, 68.0, snapshot.Weight, 1e-9)
	assert.Equal(t, 1, snapshot.Samples)
}

func TestEmptyBoardNotEmitted(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	e.deliver(dataFrame(2048, 2048, 2048, 2048), dataFrame(0, 0, 0, 0))
	e.expectNoMeasurement(50 * time.Millisecond)
	require.Equal(t, 2, e.session.Snapshot().Samples)
}

func TestShortDataReportIgnored(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	e.deliver(dataFrame(4096, 4096, 4096, 4096)[:11], []byte{0xa1}, []byte{0xa1, 0x3f, 0x00})
	e.expectNoMeasurement(50 * time.Millisecond)
	require.Equal(t, Streaming, e.session.State())
}

func TestExpansionIDMismatch(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect()
	e.handshake(calibBlock(0x12345678, testTable()))
	st := e.expectStatus(StatusFailed)
	assert.Contains(t, st.Reason, "0x12345678")
	assert.Contains(t, st.Reason, "0xa4200402")
	e.expectNoCommand(50 * time.Millisecond)
	e.expectNoStatus(20 * time.Millisecond)
	require.Equal(t, Failed, e.session.State())
}

func TestCalibrationReadError(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect()
	e.deliver(statusFrame(true))
	e.expectCommand(wire.CmdWriteData)
	e.expectCommand(wire.CmdReadData)
	e.deliver([]byte{0xa1, wire.RptRead, 0x00, 0x00, 0x08, 0x00, 0x20})
	st := e.expectStatus(StatusFailed)
	assert.Contains(t, st.Reason, "failed to read calibration data")
}

func TestNoExpansion(t *testing.T) {
	conf := testConfig()
	conf.ExpansionPolls = 5
	e := newTestEnv(t, conf).connect()
	e.deliver(statusFrame(false))
	st := e.expectStatus(StatusFailed)
	assert.Equal(t, ErrNoExpansion.Error(), st.Reason)
	e.expectNoCommand(20 * time.Millisecond)
}

func TestExpansionDisabled(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	e.deliver(statusFrame(false))
	e.expectState(AwaitingStatus)
	require.False(t, e.session.Snapshot().Expansion)

	e.deliver(dataFrame(4096, 4096, 4096, 4096))
	e.expectNoMeasurement(30 * time.Millisecond)

	// re-plugged
	e.streaming()
}

func TestTransportFailure(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	e.input.errCh <- errors.New("connection reset")
	st := e.expectStatus(StatusFailed)
	assert.Equal(t, "input channel read: connection reset", st.Reason)
	e.expectNoStatus(50 * time.Millisecond)
	require.Equal(t, Failed, e.session.State())
	require.Eventually(t, e.output.closed, testTimeout, time.Millisecond)
	require.Eventually(t, e.input.closed, testTimeout, time.Millisecond)
}

func TestOpenFailure(t *testing.T) {
	e := newTestEnv(t, testConfig())
	e.openErr[PSMOutput] = errors.New("host is down")
	e.connect()
	st := e.expectStatus(StatusFailed)
	assert.Equal(t, "output channel open: host is down", st.Reason)
	require.Eventually(t, e.input.closed, testTimeout, time.Millisecond)
}

func TestClose(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	require.NoError(t, e.session.Close())
	require.Equal(t, Disconnected, e.session.State())
	require.True(t, e.input.closed())
	require.True(t, e.output.closed())
	e.expectNoStatus(20 * time.Millisecond)
	require.NoError(t, e.session.Close())
	require.Equal(t, ErrClosed, e.session.send(wire.StatusRequest()))
}

func TestBlinker(t *testing.T) {
	conf := testConfig()
	conf.BlinkInterval = 5 * time.Millisecond
	e := newTestEnv(t, conf).connect()
	var leds []byte
	for len(leds) < 3 {
		select {
		case frame := <-e.output.outCh:
			if frame[1] == wire.CmdLED {
				leds = append(leds, frame[2])
			}
		case <-time.After(testTimeout):
			t.Fatal("expect LED command")
		}
	}
	require.Equal(t, []byte{0x10, 0x00, 0x10}, leds)
}

func TestTare(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	e.session.SetCalibrating(true)
	e.deliver(dataFrame(4096, 4096, 4096, 4096))
	e.expectMeasurement()
	require.True(t, e.session.Snapshot().Calibrating)
	e.session.SetCalibrating(false)

	e.deliver(dataFrame(4096, 4096, 4096, 4096))
	e.expectNoMeasurement(30 * time.Millisecond)
	e.deliver(dataFrame(6144, 6144, 6144, 6144))
	m := e.expectMeasurement()
	assert.Greater(t, m.Weight, 0.0)
}

func TestStatusBeforeChannelsReady(t *testing.T) {
	host := newTestHost()
	s := newSession(OpenChannelFunc(func(context.Context, PSM) (Channel, error) {
		return nil, errors.New("unused")
	}), host, testConfig())
	s.ctx, s.cancel = context.WithCancel(context.Background())
	defer s.cancel()
	s.state = AwaitingChannels

	s.handleStatus(wire.Status{Expansion: true})
	require.Equal(t, AwaitingChannels, s.State())
	require.Empty(t, s.writeCh)

	s.runner = fx.NewRunnerWith(s.ctx)
	s.channelReady(PSMInput)
	require.Equal(t, AwaitingChannels, s.State())
	s.channelReady(PSMOutput)
	require.Equal(t, AwaitingExpansionHandshake, s.State())
	require.Len(t, s.writeCh, 2)
	assert.Equal(t, wire.CmdWriteData, (<-s.writeCh).ID)
	assert.Equal(t, wire.CmdReadData, (<-s.writeCh).ID)
	require.NoError(t, s.Close())
}

func TestDriverSingleSession(t *testing.T) {
	e := newTestEnv(t, testConfig()).connect().streaming()
	first := e.session
	second := &testEnv{
		t:      t,
		input:  newFakeChannel(PSMInput),
		output: newFakeChannel(PSMOutput),
		host:   e.host,
		driver: e.driver,
	}
	second.connect()
	require.Equal(t, Disconnected, first.State())
	require.True(t, e.input.closed())
	require.Same(t, second.session, e.driver.Session())

	require.NoError(t, e.driver.Disconnect())
	require.Nil(t, e.driver.Session())
	require.Equal(t, ErrNotConnected, e.driver.Disconnect())
}

func TestConnectWithoutOpener(t *testing.T) {
	_, err := NewDriver(nil, nil).Connect(context.Background(), nil)
	require.Equal(t, ErrNoOpener, err)
}
