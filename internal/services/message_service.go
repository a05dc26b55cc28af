package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/cache"
	"github.com/benedektothten/localchat-backend/internal/domain"
	"github.com/benedektothten/localchat-backend/internal/repo"
)

// MessageView is a stored message enriched with the sender's name for the
// read API. SentAt is UTC.
type MessageView struct {
	MessageID  string    `json:"messageId"`
	RoomID     int64     `json:"roomId"`
	SenderID   int64     `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Content    string    `json:"content"`
	IsMedia    bool      `json:"isMedia"`
	SentAt     time.Time `json:"sentAt"`
}

// Messages serves the read side: room history and single-message lookups,
// gated by the same membership rules as submission.
type Messages struct {
	DB       *gorm.DB
	Members  MembershipChecker
	Profiles UsernameSource
	Log      zerolog.Logger
}

// ListRoom returns up to limit messages for the room in send order. Unknown
// rooms get ErrRoomNotFound; callers that are not members of an existing
// room get ErrUnauthorizedSender.
func (s *Messages) ListRoom(ctx context.Context, userID, roomID int64, limit int) ([]MessageView, error) {
	if roomID <= 0 {
		return nil, ErrInvalidRoom
	}
	if _, err := repo.GetRoom(ctx, s.DB, roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	isMember, err := s.Members.CheckMembership(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrUnauthorizedSender
	}

	msgs, err := repo.ListRoomMessages(ctx, s.DB, roomID, limit)
	if err != nil {
		return nil, err
	}
	return s.enrich(ctx, msgs), nil
}

// GetByID fetches one message by its wire messageId. The caller must be a
// member of the room the message belongs to.
func (s *Messages) GetByID(ctx context.Context, userID int64, messageID string) (MessageView, error) {
	m, err := repo.GetMessageByUniqueID(ctx, s.DB, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return MessageView{}, ErrMessageNotFound
		}
		return MessageView{}, err
	}
	isMember, err := s.Members.CheckMembership(ctx, m.ChatRoomID, userID)
	if err != nil {
		return MessageView{}, err
	}
	if !isMember {
		return MessageView{}, ErrUnauthorizedSender
	}
	views := s.enrich(ctx, []domain.Message{*m})
	return views[0], nil
}

// enrich resolves sender names through the profile cache. A failed lookup
// leaves the name empty rather than failing the whole read.
func (s *Messages) enrich(ctx context.Context, msgs []domain.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	names := make(map[int64]string, 4)
	for _, m := range msgs {
		name, seen := names[m.SenderID]
		if !seen {
			var err error
			name, err = s.Profiles.GetUsername(ctx, m.SenderID)
			if err != nil {
				if !errors.Is(err, cache.ErrUserNotFound) {
					s.Log.Warn().Err(err).Int64("sender_id", m.SenderID).Msg("username lookup failed")
				}
				name = ""
			}
			names[m.SenderID] = name
		}
		views = append(views, MessageView{
			MessageID:  m.UniqueID,
			RoomID:     m.ChatRoomID,
			SenderID:   m.SenderID,
			SenderName: name,
			Content:    m.Content,
			IsMedia:    m.IsMedia,
			SentAt:     m.SentAt.UTC(),
		})
	}
	return views
}
