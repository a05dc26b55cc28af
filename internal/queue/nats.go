// NATS JetStream adapters for the queue interfaces. JetStream supplies the
// durable, at-least-once broker; dead-lettered messages are re-published to a
// DLQ subject on the same stream and terminated from normal delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/benedektothten/localchat-backend/internal/config"
	"github.com/benedektothten/localchat-backend/internal/domain"
)

// queuePublished counts publish attempts by result ("ok" or "error").
var queuePublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chat_queue_published_total",
		Help: "Envelopes offered to the broker by result.",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(queuePublished)
}

// Connect dials NATS with reconnect behavior suited to a long-lived service.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// EnsureStream creates the stream holding both the work subject and the DLQ
// subject if it does not exist yet.
func EnsureStream(js nats.JetStreamContext, cfg config.QueueConfig) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.Subject, cfg.DeadLetter},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	return err
}

// JetStreamProducer publishes wire envelopes to the work subject.
type JetStreamProducer struct {
	js      nats.JetStreamContext
	subject string
}

// NewJetStreamProducer builds a producer bound to the configured subject.
func NewJetStreamProducer(js nats.JetStreamContext, subject string) *JetStreamProducer {
	return &JetStreamProducer{js: js, subject: subject}
}

// Publish implements Producer. The envelope's MessageID doubles as the
// JetStream dedup ID, so a client retry of the same submission cannot
// enqueue the envelope twice within the dedup window.
func (p *JetStreamProducer) Publish(ctx context.Context, env domain.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	_, err = p.js.Publish(p.subject, data,
		nats.Context(ctx),
		nats.MsgId(env.MessageID),
	)
	if err != nil {
		queuePublished.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	queuePublished.WithLabelValues("ok").Inc()
	return nil
}

// JetStreamSource feeds the consumer from a durable pull subscription.
type JetStreamSource struct {
	sub        *nats.Subscription
	js         nats.JetStreamContext
	deadLetter string
	fetchWait  time.Duration
}

// NewJetStreamSource creates (or binds to) the durable consumer and returns
// a Source for the loop. MaxDeliver caps broker redeliveries; a message that
// keeps failing transiently is eventually dead-lettered by the broker side
// rather than cycling forever.
func NewJetStreamSource(js nats.JetStreamContext, cfg config.QueueConfig, maxDeliver int, fetchWait time.Duration) (*JetStreamSource, error) {
	sub, err := js.PullSubscribe(cfg.Subject, cfg.Durable,
		nats.AckExplicit(),
		nats.MaxDeliver(maxDeliver),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &JetStreamSource{
		sub:        sub,
		js:         js,
		deadLetter: cfg.DeadLetter,
		fetchWait:  fetchWait,
	}, nil
}

// Next implements Source.
func (s *JetStreamSource) Next(ctx context.Context) (Delivery, error) {
	msgs, err := s.sub.Fetch(1, nats.MaxWait(s.fetchWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, ErrNoMessages
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &jetStreamDelivery{msg: msgs[0], js: s.js, deadLetter: s.deadLetter}, nil
}

// Drain unsubscribes, letting already-fetched messages be redelivered.
func (s *JetStreamSource) Drain() error {
	return s.sub.Drain()
}

type jetStreamDelivery struct {
	msg        *nats.Msg
	js         nats.JetStreamContext
	deadLetter string
}

func (d *jetStreamDelivery) Data() []byte { return d.msg.Data }

func (d *jetStreamDelivery) Ack() error { return d.msg.Ack() }

func (d *jetStreamDelivery) Retry(delay time.Duration) error {
	return d.msg.NakWithDelay(delay)
}

// DeadLetter copies the payload to the DLQ subject, then terminates the
// original so the broker stops redelivering it. The copy happens first: if
// the DLQ publish fails the message stays on the work queue and is retried.
func (d *jetStreamDelivery) DeadLetter() error {
	if _, err := d.js.Publish(d.deadLetter, d.msg.Data); err != nil {
		return err
	}
	return d.msg.Term()
}
