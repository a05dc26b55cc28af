package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/domain"
	"github.com/benedektothten/localchat-backend/internal/queue"
	"github.com/benedektothten/localchat-backend/internal/repo"
)

// Persister is the consumer-side handler: it writes an envelope to the
// database exactly once per messageId, no matter how many times the broker
// redelivers it.
type Persister struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// Handle classifies the insert outcome for the consumer loop.
//
//   - inserted               -> Processed
//   - already present        -> Duplicate (redelivery; ack and move on)
//   - integrity violation    -> Permanent (bad data will never succeed)
//   - anything else          -> Transient (locked file, timeout; retry)
func (p *Persister) Handle(ctx context.Context, env domain.Envelope) queue.ProcessResult {
	_, inserted, err := repo.InsertMessageIdempotent(ctx, p.DB, env)
	if err != nil {
		if isIntegrityErr(err) {
			p.Log.Error().Err(err).Str("message_id", env.MessageID).Msg("envelope violates schema constraints")
			return queue.Permanent
		}
		p.Log.Warn().Err(err).Str("message_id", env.MessageID).Msg("message insert failed, will retry")
		return queue.Transient
	}
	if !inserted {
		p.Log.Debug().Str("message_id", env.MessageID).Msg("duplicate delivery skipped")
		return queue.Duplicate
	}
	p.Log.Info().
		Str("message_id", env.MessageID).
		Int64("room_id", env.RoomID).
		Msg("message persisted")
	return queue.Processed
}

// isIntegrityErr reports whether err is a constraint violation rather than a
// transient database condition. SQLite reports these as textual errors, so
// match on the class keywords.
func isIntegrityErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "constraint") || strings.Contains(msg, "foreign key")
}
