package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/benedektothten/localchat-backend/internal/domain"
	"github.com/benedektothten/localchat-backend/internal/http/middleware"
	"github.com/benedektothten/localchat-backend/internal/services"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeDispatch struct {
	gotSender int64
	gotReq    services.SubmitRequest
	env       domain.Envelope
	err       error
}

func (f *fakeDispatch) Submit(ctx context.Context, senderID int64, req services.SubmitRequest) (domain.Envelope, error) {
	f.gotSender = senderID
	f.gotReq = req
	if f.err != nil {
		return domain.Envelope{}, f.err
	}
	return f.env, nil
}

type fakeReader struct {
	views []services.MessageView
	view  services.MessageView
	err   error

	gotRoom  int64
	gotLimit int
	gotMsgID string
}

func (f *fakeReader) ListRoom(ctx context.Context, userID, roomID int64, limit int) ([]services.MessageView, error) {
	f.gotRoom, f.gotLimit = roomID, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.views, nil
}

func (f *fakeReader) GetByID(ctx context.Context, userID int64, messageID string) (services.MessageView, error) {
	f.gotMsgID = messageID
	if f.err != nil {
		return services.MessageView{}, f.err
	}
	return f.view, nil
}

func testRouter(d Dispatcher, m MessageReader) *gin.Engine {
	r := gin.New()
	h := New(d, m)
	api := r.Group("/api/v1")
	api.Use(middleware.RequireUser())
	api.POST("/messages", h.PostMessage)
	api.GET("/messages", h.ListMessages)
	api.GET("/messages/:id", h.GetMessage)
	return r
}

func postJSON(r *gin.Engine, path, userID string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getPath(r *gin.Engine, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostMessageAccepted(t *testing.T) {
	env := domain.Envelope{
		RoomID:    7,
		MessageID: "0b8e6c1e-9a3f-4a1d-8a21-1f2d3c4b5a60",
		SenderID:  42,
		Content:   "hello",
		SentAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	d := &fakeDispatch{env: env}
	r := testRouter(d, &fakeReader{})

	w := postJSON(r, "/api/v1/messages", "42", gin.H{"roomId": 7, "content": "hello\r\nworld"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", w.Code, w.Body.String())
	}
	if d.gotSender != 42 {
		t.Fatalf("sender = %d, want 42 (from header)", d.gotSender)
	}
	if d.gotReq.Content != "hello\nworld" {
		t.Fatalf("content not sanitized: %q", d.gotReq.Content)
	}

	var resp PostMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MessageID != env.MessageID || resp.RoomID != 7 {
		t.Fatalf("unexpected ack: %+v", resp)
	}
}

func TestPostMessageErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"empty content", services.ErrEmptyContent, http.StatusBadRequest, ErrCodeBadRequest},
		{"too long", services.ErrTooLong, http.StatusBadRequest, ErrCodeBadRequest},
		{"invalid room", services.ErrInvalidRoom, http.StatusBadRequest, ErrCodeBadRequest},
		{"not a member", services.ErrUnauthorizedSender, http.StatusForbidden, ErrCodeForbidden},
		{"queue down", services.ErrEnqueueFailed, http.StatusServiceUnavailable, ErrCodeDispatchFailed},
		{"unknown", errors.New("surprise"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := testRouter(&fakeDispatch{err: tc.err}, &fakeReader{})
			w := postJSON(r, "/api/v1/messages", "42", gin.H{"roomId": 7, "content": "hi"})
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.code {
				t.Fatalf("code = %q, want %q", resp.Code, tc.code)
			}
		})
	}
}

func TestPostMessageRequiresAuth(t *testing.T) {
	r := testRouter(&fakeDispatch{}, &fakeReader{})
	w := postJSON(r, "/api/v1/messages", "", gin.H{"roomId": 7, "content": "hi"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestPostMessageRejectsBadBody(t *testing.T) {
	r := testRouter(&fakeDispatch{}, &fakeReader{})
	w := postJSON(r, "/api/v1/messages", "42", gin.H{"content": "hi"}) // no roomId
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListMessages(t *testing.T) {
	reader := &fakeReader{views: []services.MessageView{
		{MessageID: "a", RoomID: 7, SenderID: 42, Content: "one"},
		{MessageID: "b", RoomID: 7, SenderID: 42, Content: "two"},
	}}
	r := testRouter(&fakeDispatch{}, reader)

	w := getPath(r, "/api/v1/messages?roomId=7", "42")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
	}
	if reader.gotRoom != 7 || reader.gotLimit != 50 {
		t.Fatalf("room=%d limit=%d, want 7/50", reader.gotRoom, reader.gotLimit)
	}

	var resp ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("len = %d, want 2", len(resp.Messages))
	}
}

func TestListMessagesLimitClamped(t *testing.T) {
	reader := &fakeReader{}
	r := testRouter(&fakeDispatch{}, reader)
	if w := getPath(r, "/api/v1/messages?roomId=7&limit=9999", "42"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if reader.gotLimit != 200 {
		t.Fatalf("limit = %d, want clamped to 200", reader.gotLimit)
	}
}

func TestListMessagesValidation(t *testing.T) {
	r := testRouter(&fakeDispatch{}, &fakeReader{})
	for _, path := range []string{
		"/api/v1/messages",
		"/api/v1/messages?roomId=abc",
		"/api/v1/messages?roomId=-1",
		"/api/v1/messages?roomId=7&limit=0",
		"/api/v1/messages?roomId=7&limit=x",
	} {
		if w := getPath(r, path, "42"); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

func TestListMessagesForbidden(t *testing.T) {
	r := testRouter(&fakeDispatch{}, &fakeReader{err: services.ErrUnauthorizedSender})
	if w := getPath(r, "/api/v1/messages?roomId=7", "42"); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestListMessagesRoomNotFound(t *testing.T) {
	r := testRouter(&fakeDispatch{}, &fakeReader{err: services.ErrRoomNotFound})
	if w := getPath(r, "/api/v1/messages?roomId=404", "42"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestGetMessage(t *testing.T) {
	reader := &fakeReader{view: services.MessageView{MessageID: "0b8e6c1e-9a3f-4a1d-8a21-1f2d3c4b5a60", RoomID: 7}}
	r := testRouter(&fakeDispatch{}, reader)

	w := getPath(r, "/api/v1/messages/0b8e6c1e-9a3f-4a1d-8a21-1f2d3c4b5a60", "42")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
	}
	if reader.gotMsgID != "0b8e6c1e-9a3f-4a1d-8a21-1f2d3c4b5a60" {
		t.Fatalf("wrong id passed: %q", reader.gotMsgID)
	}
}

func TestGetMessageRejectsNonUUID(t *testing.T) {
	r := testRouter(&fakeDispatch{}, &fakeReader{})
	if w := getPath(r, "/api/v1/messages/not-a-uuid", "42"); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	r := testRouter(&fakeDispatch{}, &fakeReader{err: services.ErrMessageNotFound})
	w := getPath(r, "/api/v1/messages/0b8e6c1e-9a3f-4a1d-8a21-1f2d3c4b5a60", "42")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSanitizeContent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello\r\nworld", "hello\nworld"},
		{"a\rb", "a\nb"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"  padded  ", "padded"},
	}
	for _, tc := range tests {
		if got := sanitizeContent(tc.in); got != tc.want {
			t.Errorf("sanitizeContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
