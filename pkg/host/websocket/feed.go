// Package websocket serves board events as JSON to websocket clients.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/balance.go/pkg/framework"
	"github.com/robotalks/balance.go/pkg/msgs"
)

const clientQueueSize = 16

// Event is the JSON frame sent to clients.
type Event struct {
	Type        string            `json:"type"`
	Status      *msgs.BoardStatus `json:"status,omitempty"`
	Measurement *msgs.Measurement `json:"measurement,omitempty"`
}

// Feed implements host.Publisher and broadcasts events to all connected
// clients. Slow clients miss events rather than block the publisher. The
// last status is replayed to new clients.
type Feed struct {
	Addr string
	Path string

	lock    sync.Mutex
	clients map[*client]struct{}
	status  []byte
}

type client struct {
	conn   *websocket.Conn
	sendCh chan []byte
}

// NewFeed creates a Feed listening on addr.
func NewFeed(addr string) *Feed {
	return &Feed{Addr: addr, Path: "/events"}
}

// Handler returns the websocket handler.
func (f *Feed) Handler() http.Handler {
	return websocket.Handler(f.serve)
}

// Clients returns the number of connected clients.
func (f *Feed) Clients() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.clients)
}

// SendEvent implements host.Publisher.
func (f *Feed) SendEvent(ctx context.Context, msg fx.Message) error {
	var ev Event
	switch m := msg.(type) {
	case *msgs.BoardStatus:
		ev.Type, ev.Status = "status", m
	case *msgs.Measurement:
		ev.Type, ev.Measurement = "measurement", m
	default:
		return fmt.Errorf("unsupported event %T", msg)
	}
	data, err := json.Marshal(&ev)
	if err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if ev.Status != nil {
		f.status = data
	}
	for c := range f.clients {
		select {
		case c.sendCh <- data:
		default:
			glog.V(2).Infof("websocket client %s lagging, %s dropped", c.conn.Request().RemoteAddr, ev.Type)
		}
	}
	return nil
}

// AddToLoop implements LoopAdder.
func (f *Feed) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(fx.NamedRun("websocket", f))
}

// Run implements Runnable.
func (f *Feed) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(f.Path, f.Handler())
	server := &http.Server{Addr: f.Addr, Handler: mux}
	glog.Infof("websocket feed on %s%s", f.Addr, f.Path)
	return fx.RunWithContextCancel(ctx, func() {
		server.Close()
		f.closeClients()
	}, server.ListenAndServe)
}

func (f *Feed) serve(conn *websocket.Conn) {
	c := &client{conn: conn, sendCh: make(chan []byte, clientQueueSize)}
	f.lock.Lock()
	if f.clients == nil {
		f.clients = make(map[*client]struct{})
	}
	f.clients[c] = struct{}{}
	if f.status != nil {
		c.sendCh <- f.status
	}
	f.lock.Unlock()
	defer func() {
		f.lock.Lock()
		delete(f.clients, c)
		f.lock.Unlock()
		conn.Close()
	}()

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		var ignored []byte
		for websocket.Message.Receive(conn, &ignored) == nil {
		}
	}()
	for {
		select {
		case <-doneCh:
			return
		case data := <-c.sendCh:
			if err := websocket.Message.Send(conn, string(data)); err != nil {
				glog.V(2).Infof("websocket send error: %v", err)
				return
			}
		}
	}
}

func (f *Feed) closeClients() {
	f.lock.Lock()
	defer f.lock.Unlock()
	for c := range f.clients {
		c.conn.Close()
	}
}
