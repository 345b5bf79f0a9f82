package mqtt

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	fx "github.com/robotalks/balance.go/pkg/framework"
	"github.com/robotalks/balance.go/pkg/msgs"
)

// Topics under <prefix><node>/.
const (
	TopicStatus      = "status"
	TopicMeasurement = "measurement"
)

// Publisher implements host.Publisher using MQTT. The status topic is
// retained and cleared by the will when the daemon goes away.
type Publisher struct {
	Queue *Queue
	Node  string
}

// NewPublisher creates a Publisher for node.
func NewPublisher(brokerURL, node string) (*Publisher, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+node+"/"+TopicStatus, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("balance:" + node)
	}
	return &Publisher{Queue: NewQueue(opts, topicPrefix), Node: node}, nil
}

// Topic returns the full topic (without prefix) of an event topic.
func (p *Publisher) Topic(name string) string {
	return p.Node + "/" + name
}

// SendEvent implements host.Publisher.
func (p *Publisher) SendEvent(ctx context.Context, msg fx.Message) error {
	var topic string
	var retain bool
	switch msg.(type) {
	case *msgs.BoardStatus:
		topic, retain = TopicStatus, true
	case *msgs.Measurement:
		topic = TopicMeasurement
	default:
		return fmt.Errorf("unsupported event %T", msg)
	}
	data, err := msgs.Encode(msg)
	if err != nil {
		return err
	}
	token := p.Queue.PubWith(p.Topic(topic), data, 1, retain)
	go func() {
		if token.Wait(); token.Error() != nil {
			glog.Errorf("publish %s error: %v", topic, token.Error())
		}
	}()
	return nil
}

// AddToLoop implements LoopAdder.
func (p *Publisher) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(fx.NamedRun("mqtt", p))
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	p.Queue.Connect()
	<-ctx.Done()
	p.Queue.PubWith(p.Topic(TopicStatus), nil, 1, true).Wait()
	p.Queue.Close()
	return nil
}
