package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/benedektothten/localchat-backend/internal/repo"
)

// MembershipStore is the authoritative membership read behind the cache.
type MembershipStore interface {
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
}

// GormMembershipStore adapts the repo layer to MembershipStore.
type GormMembershipStore struct {
	DB *gorm.DB
}

// IsMember proxies repo.IsMember.
func (s GormMembershipStore) IsMember(ctx context.Context, roomID, userID int64) (bool, error) {
	return repo.IsMember(ctx, s.DB, roomID, userID)
}

// Membership answers "is this user currently a member of this room" from
// cache, falling back to the persistent store on a miss. Both positive and
// negative answers are cached for the TTL; membership removal is not
// proactively invalidated, so a removed member may pass the gate for up to
// TTL after removal. CheckMembership must return true before a submission is
// broadcast or enqueued.
type Membership struct {
	kv    KV
	store MembershipStore
	ttl   time.Duration
	log   zerolog.Logger

	// group coalesces concurrent misses for the same key into one store
	// query, so a hot key expiring does not stampede the store.
	group singleflight.Group
}

// NewMembership builds a membership cache with the given staleness window.
func NewMembership(kv KV, store MembershipStore, ttl time.Duration, log zerolog.Logger) *Membership {
	return &Membership{
		kv:    kv,
		store: store,
		ttl:   ttl,
		log:   log.With().Str("component", "membership_cache").Logger(),
	}
}

func membershipKey(roomID, userID int64) string {
	return fmt.Sprintf("room:%d:member:%d", roomID, userID)
}

// CheckMembership implements the cache-aside read. A cache backend failure is
// not fatal: the lookup falls through to the store so an unavailable cache
// degrades latency, not correctness.
func (m *Membership) CheckMembership(ctx context.Context, roomID, userID int64) (bool, error) {
	key := membershipKey(roomID, userID)

	cached, hit, err := m.kv.Get(ctx, key)
	if err != nil {
		m.log.Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to store")
	} else if hit {
		v, perr := strconv.ParseBool(cached)
		if perr == nil {
			cacheLookups.WithLabelValues("membership", "hit").Inc()
			return v, nil
		}
		m.log.Warn().Str("key", key).Str("value", cached).Msg("unparseable cache entry, refetching")
	}
	cacheLookups.WithLabelValues("membership", "miss").Inc()

	v, err, _ := m.group.Do(key, func() (any, error) {
		isMember, err := m.store.IsMember(ctx, roomID, userID)
		if err != nil {
			return false, err
		}
		if serr := m.kv.Set(ctx, key, strconv.FormatBool(isMember), m.ttl); serr != nil {
			m.log.Warn().Err(serr).Str("key", key).Msg("cache write failed")
		}
		return isMember, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}
