// Message HTTP handlers.
//
// This file exposes the REST endpoints for chat messages:
//   - POST /messages        (submit a message for dispatch)
//   - GET  /messages        (list a room's stored history)
//   - GET  /messages/:id    (fetch one stored message)
//
// Handlers are transport-thin: they validate and normalize inputs, resolve
// the caller from the auth middleware, and delegate to the services layer.
//
// Submission returns 202 Accepted: the broker has the message, the live
// broadcast has happened, but durable storage completes asynchronously.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/benedektothten/localchat-backend/internal/domain"
	"github.com/benedektothten/localchat-backend/internal/http/middleware"
	"github.com/benedektothten/localchat-backend/internal/services"
)

// Dispatcher is the submission half of the services layer.
type Dispatcher interface {
	Submit(ctx context.Context, senderID int64, req services.SubmitRequest) (domain.Envelope, error)
}

// MessageReader is the read half.
type MessageReader interface {
	ListRoom(ctx context.Context, userID, roomID int64, limit int) ([]services.MessageView, error)
	GetByID(ctx context.Context, userID int64, messageID string) (services.MessageView, error)
}

// Handlers bundles the service dependencies for all message endpoints.
type Handlers struct {
	dispatch Dispatcher
	messages MessageReader
}

// New constructs the handler set.
func New(dispatch Dispatcher, messages MessageReader) *Handlers {
	return &Handlers{dispatch: dispatch, messages: messages}
}

//
// DTOs
//

// PostMessageRequest is the JSON payload for submitting a message. The sender
// identity comes from the X-User-ID header, never from the body.
type PostMessageRequest struct {
	RoomID  int64  `json:"roomId" binding:"required"`
	Content string `json:"content" binding:"required,min=1"`
	IsMedia bool   `json:"isMedia"`
}

// PostMessageResponse acknowledges an accepted submission.
type PostMessageResponse struct {
	MessageID string    `json:"messageId"`
	RoomID    int64     `json:"roomId"`
	SentAt    time.Time `json:"sentAt"`
}

// ListMessagesResponse carries a room's history in send order.
type ListMessagesResponse struct {
	Messages []services.MessageView `json:"messages"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text: CRLF/CR to LF, runs of blank lines
// collapsed, surrounding whitespace trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// PostMessage accepts a message for dispatch. On success it answers
// 202 Accepted with the generated message id; persistence is asynchronous.
func (h *Handlers) PostMessage(c *gin.Context) {
	userID, okUser := middleware.UserID(c)
	if !okUser {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "roomId and content required")
		return
	}

	env, err := h.dispatch.Submit(c.Request.Context(), userID, services.SubmitRequest{
		RoomID:  req.RoomID,
		Content: sanitizeContent(req.Content),
		IsMedia: req.IsMedia,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyContent):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content too long")
		case errors.Is(err, services.ErrInvalidRoom):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid room id")
		case errors.Is(err, services.ErrUnauthorizedSender):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this room")
		case errors.Is(err, services.ErrEnqueueFailed):
			fail(c, http.StatusServiceUnavailable, ErrCodeDispatchFailed, "message queue unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusAccepted, PostMessageResponse{
		MessageID: env.MessageID,
		RoomID:    env.RoomID,
		SentAt:    env.SentAt,
	})
}

// ListMessages returns a room's stored history in send order. The room comes
// from the roomId query parameter; limit caps the result (default 50, max 200).
func (h *Handlers) ListMessages(c *gin.Context) {
	userID, okUser := middleware.UserID(c)
	if !okUser {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	roomID, err := strconv.ParseInt(c.Query("roomId"), 10, 64)
	if err != nil || roomID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "roomId query parameter required")
		return
	}

	const (
		defaultLimit = 50
		maxLimit     = 200
	)
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}

	views, err := h.messages.ListRoom(c.Request.Context(), userID, roomID, limit)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRoom):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid room id")
		case errors.Is(err, services.ErrRoomNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
		case errors.Is(err, services.ErrUnauthorizedSender):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this room")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, ListMessagesResponse{Messages: views})
}

// GetMessage fetches one stored message by its wire id.
func (h *Handlers) GetMessage(c *gin.Context) {
	userID, okUser := middleware.UserID(c)
	if !okUser {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	messageID := c.Param("id")
	if _, err := uuid.Parse(messageID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	view, err := h.messages.GetByID(c.Request.Context(), userID, messageID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case errors.Is(err, services.ErrUnauthorizedSender):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "not a member of this room")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, view)
}
