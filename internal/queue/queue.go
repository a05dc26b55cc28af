// Package queue implements the durable half of the dispatch pipeline: a
// producer that publishes message envelopes to a named durable queue, and a
// background consumer that turns queued envelopes into canonical records.
//
// The broker contract is at-least-once: the consumer must be idempotent on
// messageId, and every dequeued message ends in exactly one of three ways —
// acknowledged, returned for delayed redelivery, or dead-lettered. There is
// no silent drop path.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/benedektothten/localchat-backend/internal/domain"
)

// ErrPublish wraps broker publish failures so callers can tell a delivery
// error apart from a downstream persistence failure.
var ErrPublish = errors.New("queue: publish failed")

// ErrNoMessages indicates an empty fetch; the consumer polls again after its
// fetch interval.
var ErrNoMessages = errors.New("queue: no messages")

// Producer publishes envelopes to the durable queue. Publish returns once the
// broker acknowledges receipt — not once the envelope is persisted.
type Producer interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

// Delivery is one dequeued message. Exactly one of Ack, Retry, or DeadLetter
// must be called per delivery.
type Delivery interface {
	// Data returns the raw payload.
	Data() []byte
	// Ack marks the message processed; the broker will not redeliver it.
	Ack() error
	// Retry returns the message to the queue for redelivery after delay.
	Retry(delay time.Duration) error
	// DeadLetter routes the message to the dead-letter queue and removes it
	// from normal delivery.
	DeadLetter() error
}

// Source hands deliveries to the consumer loop. Next blocks up to an
// implementation-defined interval and returns ErrNoMessages when the queue
// is empty.
type Source interface {
	Next(ctx context.Context) (Delivery, error)
}

// ProcessResult classifies one handler invocation. The explicit taxonomy is
// what drives ack-vs-retry-vs-dead-letter; a handler has no way to fail
// silently.
type ProcessResult int

const (
	// Processed: the envelope was persisted; acknowledge.
	Processed ProcessResult = iota
	// Duplicate: a record with this messageId already exists; acknowledge
	// without re-inserting.
	Duplicate
	// Transient: infrastructure failure (store unavailable, timeout); return
	// the message for redelivery with backoff.
	Transient
	// Permanent: the envelope can never be persisted (constraint violation,
	// invalid content); dead-letter it.
	Permanent
)

// String returns the result name used in logs and metric labels.
func (r ProcessResult) String() string {
	switch r {
	case Processed:
		return "processed"
	case Duplicate:
		return "duplicate"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Handler persists one decoded envelope and classifies the outcome. Malformed
// payloads never reach the handler; the consumer dead-letters them directly.
type Handler func(ctx context.Context, env domain.Envelope) ProcessResult
