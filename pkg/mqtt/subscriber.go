package mqtt

import (
	"context"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Handler processes one inbound message. Errors are logged by the
// subscriber, never propagated back to the broker (delivery is one-way).
type Handler func(topic string, payload []byte) error

// ISubscriber is the inbound half of the bus adapter.
type ISubscriber interface {
	Run(ctx context.Context)
	SetHandler(h Handler)
}

// Subscriber subscribes to a single topic filter and dispatches messages to
// its handler. Paho invokes the callback on its own goroutines, so handlers
// for distinct messages may run concurrently.
type Subscriber struct {
	client  paho.Client
	pattern string
	qos     byte
	handler Handler
}

func NewSubscriber(client paho.Client, pattern string, qos byte, handler Handler) *Subscriber {
	return &Subscriber{
		client:  client,
		pattern: pattern,
		qos:     qos,
		handler: handler,
	}
}

func (s *Subscriber) SetHandler(h Handler) {
	s.handler = h
}

// Run subscribes and blocks until ctx is cancelled, then unsubscribes.
func (s *Subscriber) Run(ctx context.Context) {
	token := s.client.Subscribe(
		s.pattern,
		s.qos,
		func(_ paho.Client, m paho.Message) {
			if s.handler == nil {
				logrus.WithField("pattern", s.pattern).Warn("mqtt: no handler set")
				return
			}
			if err := s.handler(m.Topic(), m.Payload()); err != nil {
				logrus.WithFields(logrus.Fields{"topic": m.Topic()}).WithError(err).Warn("mqtt: handler error")
			}
		},
	)

	if token.Wait() && token.Error() != nil {
		logrus.WithField("pattern", s.pattern).WithError(token.Error()).Error("mqtt: subscribe failed")
		return
	}

	logrus.WithField("pattern", s.pattern).Info("mqtt: subscribed")

	<-ctx.Done()

	unsub := s.client.Unsubscribe(s.pattern)
	unsub.Wait()
}
