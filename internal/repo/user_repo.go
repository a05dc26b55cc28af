// User repository functions. Account creation and login are external
// collaborators; the pipeline reads usernames to enrich broadcasts and
// updates them through the write-through profile cache.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/domain"
)

// GetUser fetches a user by ID.
func GetUser(ctx context.Context, db *gorm.DB, userID int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user row.
func CreateUser(ctx context.Context, db *gorm.DB, username, displayName string) (*domain.User, error) {
	u := &domain.User{Username: username, DisplayName: displayName}
	return u, db.WithContext(ctx).Create(u).Error
}

// UpdateUsername changes a user's username. Callers must also push the new
// value through cache.Profiles.SetUsername or readers will see the stale
// cached name until its TTL expires.
func UpdateUsername(ctx context.Context, db *gorm.DB, userID int64, username string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("user_id = ?", userID).
		Update("username", username)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
