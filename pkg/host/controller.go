package host

import (
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/robotalks/balance.go/pkg/board"
	fx "github.com/robotalks/balance.go/pkg/framework"
	"github.com/robotalks/balance.go/pkg/msgs"
)

// Controller implements board.Host. Events are posted to the loop and
// published from the loop goroutine, so board workers never block on
// publishers.
type Controller struct {
	Address   string
	Publisher Publisher
	// Limiter throttles measurements, nil for no limit.
	Limiter *rate.Limiter

	loopCtl fx.LoopControl

	lock        sync.Mutex
	entropy     *ulid.MonotonicEntropy
	status      *msgs.BoardStatus
	measurement *msgs.Measurement
	dropped     int

	now func() time.Time
}

// NewController creates a Controller.
func NewController(pub Publisher) *Controller {
	t := time.Now()
	return &Controller{
		Publisher: pub,
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
		now:       time.Now,
	}
}

// AddToLoop implements LoopAdder.
func (c *Controller) AddToLoop(loop *fx.Loop) {
	c.loopCtl = loop
	if adder, ok := c.Publisher.(fx.LoopAdder); ok {
		loop.Add(adder)
	}
	loop.AddController(fx.PrLvPostProc, c)
}

// SetAddress changes the board address attached to events.
func (c *Controller) SetAddress(addr string) {
	c.lock.Lock()
	c.Address = addr
	c.lock.Unlock()
}

// BoardAddress returns the board address attached to events.
func (c *Controller) BoardAddress() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.Address
}

// StatusChanged implements board.Host.
func (c *Controller) StatusChanged(st board.Status) {
	c.lock.Lock()
	msg := &msgs.BoardStatus{
		State:     st.Code.String(),
		Reason:    st.Reason,
		Address:   c.Address,
		Timestamp: c.now().UnixNano(),
	}
	c.status = msg
	c.lock.Unlock()
	glog.Infof("board %s", st)
	c.post(msg)
}

// MeasurementProduced implements board.Host.
func (c *Controller) MeasurementProduced(m board.Measurement) {
	if c.Limiter != nil && !c.Limiter.AllowN(m.Time, 1) {
		c.lock.Lock()
		c.dropped++
		c.lock.Unlock()
		return
	}
	c.lock.Lock()
	msg := &msgs.Measurement{
		Id:        ulid.MustNew(ulid.Timestamp(m.Time), c.entropy).String(),
		WeightKg:  m.Weight,
		Timestamp: m.Time.UnixNano(),
		Address:   c.Address,
	}
	c.measurement = msg
	c.lock.Unlock()
	c.post(msg)
}

func (c *Controller) post(msg fx.Message) {
	if c.loopCtl == nil {
		return
	}
	c.loopCtl.PostMessage(msg)
	c.loopCtl.TriggerNext()
}

// Status returns the last status event.
func (c *Controller) Status() *msgs.BoardStatus {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.status
}

// Measurement returns the last published measurement.
func (c *Controller) Measurement() *msgs.Measurement {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.measurement
}

// Dropped returns the number of measurements dropped by the limiter.
func (c *Controller) Dropped() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.dropped
}

// Control implements Controller.
func (c *Controller) Control(cc fx.ControlContext) error {
	var errs fx.AggregatedError
	cc.Messages().ProcessMessages(fx.ProcessMessageFunc(func(mctx fx.MessageProcessingContext) {
		switch msg := mctx.CurrentMessage().(type) {
		case *msgs.BoardStatus, *msgs.Measurement:
			mctx.MessageTaken()
			if c.Publisher != nil {
				errs.Add(c.Publisher.SendEvent(cc.Context(), msg))
			}
		}
	}))
	return errs.Aggregate()
}
