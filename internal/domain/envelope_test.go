package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func validEnvelope() Envelope {
	return Envelope{
		RoomID:    7,
		MessageID: "3f1d2a44-9c1e-4b7a-8a31-5a0d7c9e1f20",
		SenderID:  1,
		Content:   "hi",
		SentAt:    time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEnvelopeValidate(t *testing.T) {
	if err := validEnvelope().Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Envelope)
	}{
		{"zero room", func(e *Envelope) { e.RoomID = 0 }},
		{"negative room", func(e *Envelope) { e.RoomID = -1 }},
		{"blank message id", func(e *Envelope) { e.MessageID = "  " }},
		{"zero sender", func(e *Envelope) { e.SenderID = 0 }},
		{"blank content", func(e *Envelope) { e.Content = "" }},
		{"zero sentAt", func(e *Envelope) { e.SentAt = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := validEnvelope()
			tc.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnvelopeWireFormat(t *testing.T) {
	data, err := json.Marshal(validEnvelope())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	// Wire keys are part of the contract with the worker process.
	for _, key := range []string{`"roomId":7`, `"senderId":1`, `"messageId"`, `"content":"hi"`, `"isMedia":false`} {
		if !strings.Contains(s, key) {
			t.Fatalf("wire envelope missing %s in %s", key, s)
		}
	}
	// sentAt must serialize as ISO-8601 / RFC 3339.
	if !strings.Contains(s, `"sentAt":"2025-07-01T10:00:00Z"`) {
		t.Fatalf("sentAt not RFC3339: %s", s)
	}
}
