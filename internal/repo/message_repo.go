// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the idempotent insert the queue consumer relies on.
package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/benedektothten/localchat-backend/internal/domain"
)

// InsertMessageIdempotent persists an envelope keyed by its messageId.
//
// The insert uses ON CONFLICT DO NOTHING against the unique index on
// unique_id, so redelivery of an already-persisted envelope is a no-op.
// The second return value reports whether a row was actually inserted;
// false means a record with the same messageId already existed.
func InsertMessageIdempotent(ctx context.Context, db *gorm.DB, env domain.Envelope) (*domain.Message, bool, error) {
	m := &domain.Message{
		UniqueID:   env.MessageID,
		ChatRoomID: env.RoomID,
		SenderID:   env.SenderID,
		Content:    env.Content,
		IsMedia:    env.IsMedia,
		SentAt:     env.SentAt.UTC(),
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_id"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	return m, res.RowsAffected > 0, nil
}

// GetMessageByUniqueID fetches a message by its envelope messageId.
func GetMessageByUniqueID(ctx context.Context, db *gorm.DB, uniqueID string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("unique_id = ?", uniqueID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessage fetches a message by primary key.
func GetMessage(ctx context.Context, db *gorm.DB, id int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("message_id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListRoomMessages returns messages for a room ordered deterministically
// (SentAt ASC, ID ASC). A limit <= 0 returns all rows.
func ListRoomMessages(ctx context.Context, db *gorm.DB, roomID int64, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("sent_at ASC, message_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountRoomMessages returns the number of persisted messages in a room.
func CountRoomMessages(ctx context.Context, db *gorm.DB, roomID int64) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("chat_room_id = ?", roomID).
		Count(&total).Error
	return total, err
}
