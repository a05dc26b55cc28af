package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/repo"
)

// ProfileWriter is the write-through half of the profile cache.
type ProfileWriter interface {
	SetUsername(ctx context.Context, userID int64, name string) error
}

// Profiles owns username updates for the user-management collaborator. The
// store write and the cache write happen together so broadcasts pick up the
// new name immediately instead of after the cache TTL.
type Profiles struct {
	DB    *gorm.DB
	Cache ProfileWriter
	Log   zerolog.Logger
}

// UpdateUsername renames the user and refreshes the cached name.
func (s *Profiles) UpdateUsername(ctx context.Context, userID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyUsername
	}

	if err := repo.UpdateUsername(ctx, s.DB, userID, name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.Cache.SetUsername(ctx, userID, name); err != nil {
		// The store is already updated; a failed cache write only delays the
		// new name until the TTL expires.
		s.Log.Warn().Err(err).Int64("user_id", userID).Msg("cache write-through failed")
	}
	return nil
}
