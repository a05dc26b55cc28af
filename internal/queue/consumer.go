package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/benedektothten/localchat-backend/internal/domain"
)

var (
	consumerOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_consumer_messages_total",
		Help: "Consumed queue messages by outcome.",
	}, []string{"outcome"})
	consumerDeadLettered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_consumer_dead_lettered_total",
		Help: "Messages routed to the dead-letter queue.",
	})
)

func init() {
	prometheus.MustRegister(consumerOutcomes, consumerDeadLettered)
}

// Consumer is the background loop that drains the durable queue into the
// persistent store. One logical consumer is bound to one queue.
type Consumer struct {
	source        Source
	handler       Handler
	retryDelay    time.Duration
	gracePeriod   time.Duration
	fetchInterval time.Duration
	log           zerolog.Logger
}

// NewConsumer wires a consumer loop.
//
//   - retryDelay: redelivery delay applied to transient failures.
//   - gracePeriod: how long an in-flight message may keep processing after a
//     stop signal.
//   - fetchInterval: idle sleep between polls when the queue is empty.
func NewConsumer(source Source, handler Handler, retryDelay, gracePeriod, fetchInterval time.Duration, log zerolog.Logger) *Consumer {
	return &Consumer{
		source:        source,
		handler:       handler,
		retryDelay:    retryDelay,
		gracePeriod:   gracePeriod,
		fetchInterval: fetchInterval,
		log:           log.With().Str("component", "consumer").Logger(),
	}
}

// Run processes deliveries until ctx is canceled. Cancellation is a graceful
// stop: no new deliveries are fetched, but the in-flight message gets up to
// the grace period to finish before Run returns ctx.Err().
//
// A failure to decode, persist, or settle a single message never stops the
// loop; every outcome is logged and counted.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Msg("consumer started")
	for {
		if ctx.Err() != nil {
			c.log.Info().Msg("consumer stopped")
			return ctx.Err()
		}

		d, err := c.source.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				c.log.Info().Msg("consumer stopped")
				return ctx.Err()
			case err == ErrNoMessages:
				// Poll again after the idle interval.
				select {
				case <-time.After(c.fetchInterval):
				case <-ctx.Done():
				}
			default:
				c.log.Error().Err(err).Msg("fetch failed")
				select {
				case <-time.After(c.fetchInterval):
				case <-ctx.Done():
				}
			}
			continue
		}

		// The in-flight message is detached from the stop signal so shutdown
		// cannot abandon a half-done persist; the grace period bounds it.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.gracePeriod)
		c.process(pctx, d)
		cancel()
	}
}

func (c *Consumer) process(ctx context.Context, d Delivery) {
	tr := otel.Tracer("queue/Consumer")
	ctx, span := tr.Start(ctx, "Process")
	defer span.End()

	var env domain.Envelope
	if err := json.Unmarshal(d.Data(), &env); err != nil {
		span.SetAttributes(attribute.String("queue.outcome", "dead_lettered"))
		c.deadLetter(d, "malformed payload", err)
		return
	}
	if err := env.Validate(); err != nil {
		span.SetAttributes(attribute.String("queue.outcome", "dead_lettered"))
		c.deadLetter(d, "invalid envelope", err)
		return
	}
	span.SetAttributes(
		attribute.String("message.id", env.MessageID),
		attribute.Int64("room.id", env.RoomID),
	)

	result := c.handler(ctx, env)
	consumerOutcomes.WithLabelValues(result.String()).Inc()
	span.SetAttributes(attribute.String("queue.outcome", result.String()))

	switch result {
	case Processed:
		if err := d.Ack(); err != nil {
			c.log.Error().Err(err).Str("message_id", env.MessageID).Msg("ack failed; broker will redeliver")
		}
	case Duplicate:
		c.log.Debug().Str("message_id", env.MessageID).Msg("already persisted, acknowledging redelivery")
		if err := d.Ack(); err != nil {
			c.log.Error().Err(err).Str("message_id", env.MessageID).Msg("ack failed; broker will redeliver")
		}
	case Transient:
		c.log.Warn().Str("message_id", env.MessageID).Dur("retry_delay", c.retryDelay).Msg("transient failure, returning for redelivery")
		if err := d.Retry(c.retryDelay); err != nil {
			c.log.Error().Err(err).Str("message_id", env.MessageID).Msg("retry signal failed; relying on ack-wait redelivery")
		}
	case Permanent:
		c.deadLetter(d, "permanent handler failure", nil)
	}
}

func (c *Consumer) deadLetter(d Delivery, reason string, cause error) {
	consumerOutcomes.WithLabelValues("dead_lettered").Inc()
	consumerDeadLettered.Inc()
	ev := c.log.Error().Str("reason", reason)
	if cause != nil {
		ev = ev.Err(cause)
	}
	ev.Msg("dead-lettering message")
	if err := d.DeadLetter(); err != nil {
		c.log.Error().Err(err).Msg("dead-letter failed; message stays queued for redelivery")
	}
}
