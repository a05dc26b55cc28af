// Room and membership repository functions. Room management itself is an
// external collaborator; the dispatch pipeline only reads membership here to
// back the membership cache, and inserts rows in tests and fixtures.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/domain"
)

// IsMember reports whether userID currently belongs to roomID in the
// persistent store. This is the authoritative read behind the membership
// cache; callers outside the cache should prefer cache.Membership.
func IsMember(ctx context.Context, db *gorm.DB, roomID, userID int64) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.UserChatRoom{}).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetRoom fetches a room by ID.
func GetRoom(ctx context.Context, db *gorm.DB, roomID int64) (*domain.ChatRoom, error) {
	var r domain.ChatRoom
	if err := db.WithContext(ctx).Where("chat_room_id = ?", roomID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoom inserts a room row.
func CreateRoom(ctx context.Context, db *gorm.DB, name string, isPrivate bool) (*domain.ChatRoom, error) {
	r := &domain.ChatRoom{Name: name, IsPrivate: isPrivate}
	return r, db.WithContext(ctx).Create(r).Error
}

// AddMember inserts a membership row.
func AddMember(ctx context.Context, db *gorm.DB, roomID, userID int64) error {
	return db.WithContext(ctx).Create(&domain.UserChatRoom{
		ChatRoomID: roomID,
		UserID:     userID,
	}).Error
}

// RemoveMember deletes a membership row. The membership cache is not touched;
// stale positives persist for up to the cache TTL by design.
func RemoveMember(ctx context.Context, db *gorm.DB, roomID, userID int64) error {
	return db.WithContext(ctx).
		Where("chat_room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.UserChatRoom{}).Error
}
