// Package memread serializes memory reads and reassembles chunked results.
//
// The board answers a read with a sequence of read reports carrying at
// most 16 bytes each and no request identifier, so only one read may be
// outstanding. Reads are queued and sent one at a time in FIFO order.
package memread

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/balance.go/pkg/board/wire"
)

// Sender sends a command to the board.
type Sender interface {
	SendCommand(*wire.Command) error
}

// SendCommandFunc is func type of Sender.
type SendCommandFunc func(*wire.Command) error

// SendCommand implements Sender.
func (f SendCommandFunc) SendCommand(cmd *wire.Command) error {
	return f(cmd)
}

// Handler is called once when a read completes or fails.
type Handler interface {
	HandleRead(*Request, error)
}

// HandleReadFunc is func type of Handler.
type HandleReadFunc func(*Request, error)

// HandleRead implements Handler.
func (f HandleReadFunc) HandleRead(req *Request, err error) {
	f(req, err)
}

// Request is a queued memory read.
type Request struct {
	addr      uint32
	length    uint16
	remaining int
	data      []byte
	handler   Handler
	next      *Request
}

// Address returns the start address.
func (r *Request) Address() uint32 {
	return r.addr
}

// Len returns the requested length.
func (r *Request) Len() int {
	return int(r.length)
}

// Remaining returns the number of bytes not received yet.
func (r *Request) Remaining() int {
	return r.remaining
}

// Data returns the destination buffer.
func (r *Request) Data() []byte {
	return r.data
}

// Pipeline queues reads and routes read reports to the head request.
type Pipeline struct {
	Sender Sender

	head *Request
	tail *Request
	size int
	err  error
	lock sync.Mutex
}

// New creates a Pipeline sending commands with s.
func New(s Sender) *Pipeline {
	return &Pipeline{Sender: s}
}

// Read queues a read of length bytes at addr. The request is sent
// immediately when nothing else is outstanding. h is called from the
// goroutine delivering the last read report, or from Read itself when
// the request can not be queued.
func (p *Pipeline) Read(addr uint32, length uint16, h Handler) *Request {
	req := &Request{
		addr:      addr,
		length:    length,
		remaining: int(length),
		data:      make([]byte, length),
		handler:   h,
	}
	if length == 0 {
		req.done(ErrInvalidLength)
		return req
	}

	p.lock.Lock()
	if err := p.err; err != nil {
		p.lock.Unlock()
		req.done(err)
		return req
	}
	if p.head == nil {
		p.head = req
	} else {
		p.tail.next = req
	}
	p.tail = req
	p.size++
	var failed []failedRequest
	if p.head == req {
		failed = p.sendHead()
	}
	p.lock.Unlock()
	completeAll(failed)
	return req
}

// Pending returns the number of queued requests, including the one in flight.
func (p *Pipeline) Pending() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.size
}

// HandleResult feeds one read report to the request in flight.
func (p *Pipeline) HandleResult(res wire.ReadResult) {
	p.lock.Lock()
	req := p.head
	p.lock.Unlock()
	if req == nil {
		glog.Warningf("unexpected read report at offset %#04x", res.Offset)
		return
	}

	var err error
	if res.ErrCode != 0 {
		err = &ReadError{Address: req.addr, Code: res.ErrCode}
	} else if err = req.apply(res); err == nil && req.remaining > 0 {
		glog.V(4).Infof("read %#08x: %d bytes remaining", req.addr, req.remaining)
		return
	}

	p.lock.Lock()
	if p.head != req {
		// closed meanwhile, the handler has already been called.
		p.lock.Unlock()
		return
	}
	p.popHead()
	var failed []failedRequest
	if p.head != nil {
		failed = p.sendHead()
	}
	p.lock.Unlock()

	req.done(err)
	completeAll(failed)
}

// Close fails all queued requests with err and rejects future reads.
func (p *Pipeline) Close(err error) {
	if err == nil {
		err = ErrClosed
	}
	p.lock.Lock()
	if p.err != nil {
		p.lock.Unlock()
		return
	}
	p.err = err
	var failed []failedRequest
	for p.head != nil {
		failed = append(failed, failedRequest{req: p.head, err: err})
		p.popHead()
	}
	p.lock.Unlock()
	completeAll(failed)
}

func (p *Pipeline) popHead() {
	req := p.head
	if p.head = req.next; p.head == nil {
		p.tail = nil
	}
	req.next = nil
	p.size--
}

type failedRequest struct {
	req *Request
	err error
}

// sendHead sends the head request. Requests which fail to send are
// removed and returned so handlers can be called outside the lock.
func (p *Pipeline) sendHead() (failed []failedRequest) {
	for p.head != nil {
		req := p.head
		err := p.Sender.SendCommand(wire.ReadMemory(req.addr, req.length))
		if err == nil {
			glog.V(2).Infof("read %#08x len %d sent", req.addr, req.length)
			return
		}
		failed = append(failed, failedRequest{req: req, err: err})
		p.popHead()
	}
	return
}

func completeAll(failed []failedRequest) {
	for _, f := range failed {
		f.req.done(f.err)
	}
}

func (r *Request) apply(res wire.ReadResult) error {
	pos := int(res.Offset) - int(r.addr&0xffff)
	if pos < 0 || pos+len(res.Data) > len(r.data) {
		return &ChunkError{Address: r.addr, Offset: res.Offset, Len: len(res.Data)}
	}
	copy(r.data[pos:], res.Data)
	r.remaining -= len(res.Data)
	if r.remaining < 0 {
		return &ChunkError{Address: r.addr, Offset: res.Offset, Len: len(res.Data), Overrun: true}
	}
	return nil
}

func (r *Request) done(err error) {
	if h := r.handler; h != nil {
		h.HandleRead(r, err)
	}
}
