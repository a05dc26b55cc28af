package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/repo"
)

// ErrUserNotFound is returned when neither the cache nor the store knows the
// user.
var ErrUserNotFound = errors.New("user not found")

// ProfileStore is the authoritative username read behind the cache.
type ProfileStore interface {
	GetUsername(ctx context.Context, userID int64) (string, error)
}

// GormProfileStore adapts the repo layer to ProfileStore.
type GormProfileStore struct {
	DB *gorm.DB
}

// GetUsername proxies repo.GetUser, mapping a missing row to ErrUserNotFound.
func (s GormProfileStore) GetUsername(ctx context.Context, userID int64) (string, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return u.Username, nil
}

// Profiles is the cache-aside username lookup used to enrich broadcasts.
//
// The write path is write-through: a profile update must call SetUsername
// explicitly, because relying on store consistency alone leaves the cached
// name stale until the TTL expires.
type Profiles struct {
	kv    KV
	store ProfileStore
	ttl   time.Duration
	log   zerolog.Logger
	group singleflight.Group
}

// NewProfiles builds a profile cache with the given staleness window.
func NewProfiles(kv KV, store ProfileStore, ttl time.Duration, log zerolog.Logger) *Profiles {
	return &Profiles{
		kv:    kv,
		store: store,
		ttl:   ttl,
		log:   log.With().Str("component", "profile_cache").Logger(),
	}
}

func usernameKey(userID int64) string {
	return fmt.Sprintf("user:%d:username", userID)
}

// GetUsername returns the user's name, populating the cache on a miss.
// Concurrent misses for the same user are coalesced into one store read.
func (p *Profiles) GetUsername(ctx context.Context, userID int64) (string, error) {
	key := usernameKey(userID)

	cached, hit, err := p.kv.Get(ctx, key)
	if err != nil {
		p.log.Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to store")
	} else if hit {
		cacheLookups.WithLabelValues("profile", "hit").Inc()
		return cached, nil
	}
	cacheLookups.WithLabelValues("profile", "miss").Inc()

	v, err, _ := p.group.Do(key, func() (any, error) {
		name, err := p.store.GetUsername(ctx, userID)
		if err != nil {
			return "", err
		}
		if serr := p.kv.Set(ctx, key, name, p.ttl); serr != nil {
			p.log.Warn().Err(serr).Str("key", key).Msg("cache write failed")
		}
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// SetUsername overwrites the cached name directly (write-through). Called by
// the profile-update path alongside the store write.
func (p *Profiles) SetUsername(ctx context.Context, userID int64, name string) error {
	return p.kv.Set(ctx, usernameKey(userID), name, p.ttl)
}

// Invalidate drops the cached name so the next read refetches from the store.
func (p *Profiles) Invalidate(ctx context.Context, userID int64) error {
	return p.kv.Del(ctx, usernameKey(userID))
}
