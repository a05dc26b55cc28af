// Package domain defines the core data types shared across the dispatch
// pipeline. This file holds the transport-neutral queue envelope and the live
// broadcast event.
package domain

import (
	"errors"
	"strings"
	"time"
)

// Envelope is the wire record a submission turns into. It travels two
// independent paths that share nothing but MessageID: the fire-and-forget
// broadcast to live subscribers and the durable queue feeding the consumer.
//
// MessageID is globally unique and acts as the idempotency key; the consumer
// treats redelivery of the same MessageID as already processed.
type Envelope struct {
	RoomID    int64     `json:"roomId"`
	MessageID string    `json:"messageId"`
	SenderID  int64     `json:"senderId"`
	Content   string    `json:"content"`
	IsMedia   bool      `json:"isMedia"`
	SentAt    time.Time `json:"sentAt"`
}

// Validate reports whether the envelope is complete enough to process.
// A failing envelope is a permanent error on the consumer side.
func (e Envelope) Validate() error {
	switch {
	case e.RoomID <= 0:
		return errors.New("envelope: roomId must be positive")
	case strings.TrimSpace(e.MessageID) == "":
		return errors.New("envelope: messageId is required")
	case e.SenderID <= 0:
		return errors.New("envelope: senderId must be positive")
	case strings.TrimSpace(e.Content) == "":
		return errors.New("envelope: content is required")
	case e.SentAt.IsZero():
		return errors.New("envelope: sentAt is required")
	}
	return nil
}

// BroadcastEvent is the payload pushed to every connection subscribed to the
// room at broadcast time. SenderName is the cached display name; it may lag a
// profile update by up to the profile cache TTL.
//
// Receiving a BroadcastEvent implies nothing about storage: durability is the
// queue consumer's job and may complete later or, after exhausted retries,
// not at all.
type BroadcastEvent struct {
	Type       string `json:"type"`
	MessageID  string `json:"messageId"`
	RoomID     int64  `json:"roomId"`
	SenderID   int64  `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	IsMedia    bool   `json:"isMedia"`
}

// EventTypeMessage is the BroadcastEvent type for room messages; system join
// and leave notices use EventTypeSystem.
const (
	EventTypeMessage = "message"
	EventTypeSystem  = "system"
)
