// WebSocket endpoint.
//
// GET /ws upgrades the connection and hands it to the hub's client pumps.
// Identity comes from the same X-User-ID header as the REST endpoints; room
// subscriptions happen over the socket via join/leave frames, each gated by
// the membership cache.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/benedektothten/localchat-backend/internal/http/middleware"
	"github.com/benedektothten/localchat-backend/internal/hub"
)

// WSHandler upgrades HTTP connections into hub sessions.
type WSHandler struct {
	Hub      *hub.Hub
	Gate     hub.JoinGate
	upgrader websocket.Upgrader
}

// NewWSHandler builds the upgrade handler. checkOrigin of nil allows all
// origins; browser CORS does not apply to websockets, so deployments that
// need origin pinning pass their own check.
func NewWSHandler(h *hub.Hub, gate hub.JoinGate, checkOrigin func(*http.Request) bool) *WSHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		Hub:  h,
		Gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   4 << 10,
			WriteBufferSize:  4 << 10,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      checkOrigin,
		},
	}
}

// Serve handles GET /ws.
func (w *WSHandler) Serve(c *gin.Context) {
	userID, okUser := middleware.UserID(c)
	if !okUser {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return
	}

	conn, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		middleware.LoggerFrom(c).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(w.Hub, conn, uuid.NewString(), userID, w.Gate, *middleware.LoggerFrom(c))
	// Run blocks for the lifetime of the socket; the request context keeps
	// join-gate lookups cancellable when the server shuts down.
	client.Run(c.Request.Context())
}
