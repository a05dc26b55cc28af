package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/benedektothten/localchat-backend/internal/cache"
	"github.com/benedektothten/localchat-backend/internal/domain"
)

type fakeMembers struct {
	mu      sync.Mutex
	allowed map[int64]bool
	err     error
	calls   int
}

func (f *fakeMembers) CheckMembership(ctx context.Context, roomID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[roomID], nil
}

type fakeProfiles struct {
	name string
	err  error
}

func (f *fakeProfiles) GetUsername(ctx context.Context, userID int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.name, nil
}

type fakeHub struct {
	mu     sync.Mutex
	events []domain.Envelope
	names  []string
}

func (f *fakeHub) Broadcast(roomID int64, env domain.Envelope, senderName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, env)
	f.names = append(f.names, senderName)
}

func (f *fakeHub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeProducer struct {
	mu        sync.Mutex
	published []domain.Envelope
	err       error
}

func (f *fakeProducer) Publish(ctx context.Context, env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, env)
	return nil
}

func newDispatcher(members *fakeMembers, profiles *fakeProfiles, hub *fakeHub, prod *fakeProducer) *Dispatcher {
	return &Dispatcher{
		Members:         members,
		Profiles:        profiles,
		Hub:             hub,
		Producer:        prod,
		MaxContentRunes: 2000,
		Log:             zerolog.Nop(),
	}
}

func TestSubmitDispatchesToBothPaths(t *testing.T) {
	members := &fakeMembers{allowed: map[int64]bool{7: true}}
	hub := &fakeHub{}
	prod := &fakeProducer{}
	d := newDispatcher(members, &fakeProfiles{name: "alice"}, hub, prod)

	before := time.Now().UTC()
	env, err := d.Submit(context.Background(), 42, SubmitRequest{RoomID: 7, Content: "  hello  "})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if env.MessageID == "" {
		t.Fatal("expected a generated message id")
	}
	if env.Content != "hello" {
		t.Fatalf("content not trimmed: %q", env.Content)
	}
	if env.SenderID != 42 || env.RoomID != 7 {
		t.Fatalf("unexpected ids: %+v", env)
	}
	if env.SentAt.Before(before) || env.SentAt.After(time.Now().UTC()) {
		t.Fatalf("sentAt out of range: %v", env.SentAt)
	}

	if hub.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1", hub.count())
	}
	if hub.names[0] != "alice" {
		t.Fatalf("sender name = %q, want alice", hub.names[0])
	}
	if len(prod.published) != 1 {
		t.Fatalf("published = %d, want 1", len(prod.published))
	}
	if prod.published[0].MessageID != hub.events[0].MessageID {
		t.Fatal("broadcast and queue envelopes must share the same message id")
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"empty content", SubmitRequest{RoomID: 7, Content: ""}, ErrEmptyContent},
		{"whitespace only", SubmitRequest{RoomID: 7, Content: "   \n\t "}, ErrEmptyContent},
		{"zero room", SubmitRequest{RoomID: 0, Content: "hi"}, ErrInvalidRoom},
		{"negative room", SubmitRequest{RoomID: -3, Content: "hi"}, ErrInvalidRoom},
		{"over limit", SubmitRequest{RoomID: 7, Content: strings.Repeat("x", 2001)}, ErrTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			members := &fakeMembers{allowed: map[int64]bool{7: true}}
			hub := &fakeHub{}
			prod := &fakeProducer{}
			d := newDispatcher(members, &fakeProfiles{name: "alice"}, hub, prod)

			_, err := d.Submit(context.Background(), 42, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if members.calls != 0 {
				t.Fatal("validation failures must not reach the membership check")
			}
			if hub.count() != 0 || len(prod.published) != 0 {
				t.Fatal("rejected submission must not be dispatched")
			}
		})
	}
}

func TestSubmitRejectsNonMember(t *testing.T) {
	members := &fakeMembers{allowed: map[int64]bool{}}
	hub := &fakeHub{}
	prod := &fakeProducer{}
	d := newDispatcher(members, &fakeProfiles{name: "alice"}, hub, prod)

	_, err := d.Submit(context.Background(), 42, SubmitRequest{RoomID: 7, Content: "hi"})
	if !errors.Is(err, ErrUnauthorizedSender) {
		t.Fatalf("err = %v, want ErrUnauthorizedSender", err)
	}
	if hub.count() != 0 || len(prod.published) != 0 {
		t.Fatal("non-member submission must not be broadcast or queued")
	}
}

func TestSubmitMembershipErrorPropagates(t *testing.T) {
	boom := errors.New("store down")
	d := newDispatcher(&fakeMembers{err: boom}, &fakeProfiles{}, &fakeHub{}, &fakeProducer{})

	_, err := d.Submit(context.Background(), 42, SubmitRequest{RoomID: 7, Content: "hi"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestSubmitPublishFailureSurfaces(t *testing.T) {
	members := &fakeMembers{allowed: map[int64]bool{7: true}}
	hub := &fakeHub{}
	prod := &fakeProducer{err: errors.New("broker unavailable")}
	d := newDispatcher(members, &fakeProfiles{name: "alice"}, hub, prod)

	_, err := d.Submit(context.Background(), 42, SubmitRequest{RoomID: 7, Content: "hi"})
	if !errors.Is(err, ErrEnqueueFailed) {
		t.Fatalf("err = %v, want ErrEnqueueFailed", err)
	}
	// The broadcast path is independent; it still ran.
	if hub.count() != 1 {
		t.Fatalf("broadcasts = %d, want 1 even when publish fails", hub.count())
	}
}

func TestSubmitUnknownSenderNameIsEmpty(t *testing.T) {
	members := &fakeMembers{allowed: map[int64]bool{7: true}}
	hub := &fakeHub{}
	prod := &fakeProducer{}
	d := newDispatcher(members, &fakeProfiles{err: cache.ErrUserNotFound}, hub, prod)

	if _, err := d.Submit(context.Background(), 42, SubmitRequest{RoomID: 7, Content: "hi"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if hub.names[0] != "" {
		t.Fatalf("sender name = %q, want empty for unknown user", hub.names[0])
	}
}

func TestSubmitGeneratesUniqueMessageIDs(t *testing.T) {
	members := &fakeMembers{allowed: map[int64]bool{7: true}}
	hub := &fakeHub{}
	prod := &fakeProducer{}
	d := newDispatcher(members, &fakeProfiles{name: "alice"}, hub, prod)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		env, err := d.Submit(context.Background(), 42, SubmitRequest{RoomID: 7, Content: "hi"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if seen[env.MessageID] {
			t.Fatalf("duplicate message id %s", env.MessageID)
		}
		seen[env.MessageID] = true
	}
}
