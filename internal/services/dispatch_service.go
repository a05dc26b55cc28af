// Package services – Dispatcher
//
// This file implements the submission pipeline: validate, gate on room
// membership, then fan the envelope out along its two independent paths —
// the live broadcast to subscribed connections and the durable queue publish.
// The two paths share only the envelope's messageId; no transaction ties
// them together, so "delivered live" and "stored" converge eventually.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/benedektothten/localchat-backend/internal/cache"
	"github.com/benedektothten/localchat-backend/internal/domain"
	"github.com/benedektothten/localchat-backend/internal/queue"
)

// MembershipChecker gates submissions; it is cache.Membership in production.
type MembershipChecker interface {
	CheckMembership(ctx context.Context, roomID, userID int64) (bool, error)
}

// UsernameSource enriches broadcasts with the sender's display name; it is
// cache.Profiles in production, so the name may lag an update by the TTL.
type UsernameSource interface {
	GetUsername(ctx context.Context, userID int64) (string, error)
}

// Broadcaster is the live fan-out half of the pipeline.
type Broadcaster interface {
	Broadcast(roomID int64, env domain.Envelope, senderName string)
}

// SubmitRequest is a validated-enough submission from the endpoint layer.
// The sender id comes from the authenticated identity, never the body.
type SubmitRequest struct {
	RoomID  int64
	Content string
	IsMedia bool
}

// Dispatcher coordinates one submission through authorization, broadcast,
// and enqueue.
type Dispatcher struct {
	Members  MembershipChecker
	Profiles UsernameSource
	Hub      Broadcaster
	Producer queue.Producer

	// MaxContentRunes caps submission content; <= 0 disables the cap.
	MaxContentRunes int

	Log zerolog.Logger
}

// Submit validates the request, rejects non-members, then broadcasts and
// enqueues concurrently. It returns the envelope on acceptance; acceptance
// means the broker took the envelope, not that it has been persisted.
//
// Broadcast failures are invisible to the sender by design. A publish
// failure returns ErrEnqueueFailed: the message may have been seen live but
// will never be stored, and the caller must surface that.
func (d *Dispatcher) Submit(ctx context.Context, senderID int64, req SubmitRequest) (domain.Envelope, error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.Int64("room.id", req.RoomID),
			attribute.Int64("sender.id", senderID),
		),
	)
	defer span.End()

	content := strings.TrimSpace(req.Content)
	switch {
	case req.RoomID <= 0:
		return domain.Envelope{}, ErrInvalidRoom
	case content == "":
		return domain.Envelope{}, ErrEmptyContent
	case d.MaxContentRunes > 0 && utf8.RuneCountInString(content) > d.MaxContentRunes:
		return domain.Envelope{}, ErrTooLong
	}

	// Authorization gate. Must pass before anything is broadcast or queued.
	isMember, err := d.Members.CheckMembership(ctx, req.RoomID, senderID)
	if err != nil {
		return domain.Envelope{}, err
	}
	if !isMember {
		return domain.Envelope{}, ErrUnauthorizedSender
	}

	senderName, err := d.Profiles.GetUsername(ctx, senderID)
	if err != nil {
		if !errors.Is(err, cache.ErrUserNotFound) {
			// Name is decoration; an infra failure here must not block dispatch.
			d.Log.Warn().Err(err).Int64("sender_id", senderID).Msg("username lookup failed")
		}
		senderName = ""
	}

	env := domain.Envelope{
		RoomID:    req.RoomID,
		MessageID: uuid.NewString(),
		SenderID:  senderID,
		Content:   content,
		IsMedia:   req.IsMedia,
		SentAt:    time.Now().UTC(),
	}

	// The two paths run concurrently; neither blocks the other.
	var wg sync.WaitGroup
	var publishErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		d.Hub.Broadcast(env.RoomID, env, senderName)
	}()
	go func() {
		defer wg.Done()
		publishErr = d.Producer.Publish(ctx, env)
	}()
	wg.Wait()

	if publishErr != nil {
		d.Log.Error().Err(publishErr).Str("message_id", env.MessageID).Msg("broker rejected envelope")
		return domain.Envelope{}, errors.Join(ErrEnqueueFailed, publishErr)
	}

	d.Log.Info().
		Str("message_id", env.MessageID).
		Int64("room_id", env.RoomID).
		Int64("sender_id", senderID).
		Msg("message dispatched")
	return env, nil
}
