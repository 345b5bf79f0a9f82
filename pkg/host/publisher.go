// Package host connects board sessions to the surrounding application.
package host

import (
	"context"

	fx "github.com/robotalks/balance.go/pkg/framework"
)

// Publisher publishes board events.
type Publisher interface {
	SendEvent(ctx context.Context, msg fx.Message) error
}

// PublishFunc is func form of Publisher.
type PublishFunc func(ctx context.Context, msg fx.Message) error

// SendEvent implements Publisher.
func (f PublishFunc) SendEvent(ctx context.Context, msg fx.Message) error {
	return f(ctx, msg)
}

// PublisherMux publishes events with multiple Publishers.
type PublisherMux struct {
	Publishers []Publisher
}

// SendEvent implements Publisher.
func (m *PublisherMux) SendEvent(ctx context.Context, msg fx.Message) error {
	var errs fx.AggregatedError
	for _, pub := range m.Publishers {
		errs.Add(pub.SendEvent(ctx, msg))
	}
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (m *PublisherMux) AddToLoop(l *fx.Loop) {
	for _, pub := range m.Publishers {
		if adder, ok := pub.(fx.LoopAdder); ok {
			l.Add(adder)
		}
	}
}

// Add adds more publishers.
func (m *PublisherMux) Add(pubs ...Publisher) {
	m.Publishers = append(m.Publishers, pubs...)
}
