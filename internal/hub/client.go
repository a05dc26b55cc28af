// WebSocket client pumps. Each accepted socket gets a hub session, a read
// loop handling join/leave frames, and a write loop draining the session's
// event feed onto the wire.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxFrame   = 4 << 10
)

// JoinGate authorizes a join frame. It is the membership cache's
// CheckMembership in production and a stub in tests.
type JoinGate func(ctx context.Context, roomID, userID int64) (bool, error)

// ClientFrame is an inbound control frame from the browser.
type ClientFrame struct {
	Type   string `json:"type"` // "join" or "leave"
	RoomID int64  `json:"roomId"`
}

// Client couples one websocket connection to its hub session.
type Client struct {
	hub     *Hub
	session *Session
	conn    *websocket.Conn
	gate    JoinGate
	log     zerolog.Logger
}

// NewClient registers a session for the connection and returns the client.
// Run must be called to start the pumps; it returns when the socket closes.
func NewClient(h *Hub, conn *websocket.Conn, connectionID string, userID int64, gate JoinGate, log zerolog.Logger) *Client {
	return &Client{
		hub:     h,
		session: h.RegisterConnection(connectionID, userID),
		conn:    conn,
		gate:    gate,
		log: log.With().
			Str("component", "ws_client").
			Str("connection_id", connectionID).
			Int64("user_id", userID).
			Logger(),
	}
}

// Run drives both pumps and unregisters the session when either stops.
func (c *Client) Run(ctx context.Context) {
	done := make(chan struct{})
	go c.writeLoop(done)
	c.readLoop(ctx)
	c.hub.Unregister(c.session.ID)
	<-done
	_ = c.conn.Close()
}

func (c *Client) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("unreadable client frame")
			continue
		}
		c.handleFrame(ctx, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame ClientFrame) {
	switch frame.Type {
	case "join":
		ok, err := c.gate(ctx, frame.RoomID, c.session.UserID)
		if err != nil {
			c.log.Error().Err(err).Int64("room_id", frame.RoomID).Msg("join gate failed")
			return
		}
		if !ok {
			c.log.Warn().Int64("room_id", frame.RoomID).Msg("join rejected: not a member")
			return
		}
		if c.hub.Subscribe(c.session.ID, frame.RoomID) {
			c.hub.SystemNotice(frame.RoomID, fmt.Sprintf("user %d joined the room", c.session.UserID))
		}
	case "leave":
		c.hub.Unsubscribe(c.session.ID, frame.RoomID)
		c.hub.SystemNotice(frame.RoomID, fmt.Sprintf("user %d left the room", c.session.UserID))
	default:
		c.log.Warn().Str("type", frame.Type).Msg("unknown client frame type")
	}
}

func (c *Client) writeLoop(done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-c.session.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
