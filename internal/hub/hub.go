// Package hub implements the process-local broadcast fan-out: a registry of
// live connections and their room subscriptions, and a best-effort push of
// events to every connection subscribed to a room at broadcast time.
//
// The hub is one half of the dispatch pipeline. Delivery here implies nothing
// about storage; the durable path runs through the queue independently.
// Subscription state lives only in this process — scaling to multiple hub
// instances requires an external backplane, which this package does not
// provide.
package hub

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/benedektothten/localchat-backend/internal/domain"
)

var (
	hubConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_hub_connections",
		Help: "Currently registered live connections.",
	})
	hubBroadcasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_hub_broadcasts_total",
		Help: "Broadcast events fanned out, by event type.",
	}, []string{"type"})
	hubDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_hub_events_dropped_total",
		Help: "Events dropped because a connection's send buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(hubConnections, hubBroadcasts, hubDropped)
}

// Session is one live connection's view of the hub: an identifier, the
// authenticated user, and a buffered event feed. When the feed is full the
// hub drops events for that session rather than block the fan-out.
type Session struct {
	ID     string
	UserID int64

	events chan domain.BroadcastEvent
	once   sync.Once
}

// Events returns the session's event feed. The channel is closed when the
// session is unregistered.
func (s *Session) Events() <-chan domain.BroadcastEvent { return s.events }

func (s *Session) close() {
	s.once.Do(func() { close(s.events) })
}

// Hub maintains the connection registry and room subscription groups. All
// methods are safe for concurrent use; connect and disconnect arrive from
// independent connection lifecycles.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// rooms maps roomID -> set of subscribed connection IDs.
	rooms  map[int64]map[string]*Session
	buffer int
	log    zerolog.Logger
}

// New builds a hub whose sessions buffer up to sendBuffer undelivered events.
func New(sendBuffer int, log zerolog.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[int64]map[string]*Session),
		buffer:   sendBuffer,
		log:      log.With().Str("component", "hub").Logger(),
	}
}

// RegisterConnection adds a connection to the registry and returns its
// session. Registering an ID that is already present replaces the old
// session, which is closed.
func (h *Hub) RegisterConnection(connectionID string, userID int64) *Session {
	s := &Session{
		ID:     connectionID,
		UserID: userID,
		events: make(chan domain.BroadcastEvent, h.buffer),
	}

	h.mu.Lock()
	if old, ok := h.sessions[connectionID]; ok {
		h.removeLocked(old)
	}
	h.sessions[connectionID] = s
	h.mu.Unlock()

	hubConnections.Inc()
	h.log.Debug().Str("connection_id", connectionID).Int64("user_id", userID).Msg("connection registered")
	return s
}

// Unregister removes a connection and all its subscriptions and closes its
// event feed. Unknown IDs are ignored.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	s, ok := h.sessions[connectionID]
	if ok {
		h.removeLocked(s)
	}
	h.mu.Unlock()

	if ok {
		hubConnections.Dec()
		h.log.Debug().Str("connection_id", connectionID).Int64("user_id", s.UserID).Msg("connection unregistered")
	}
}

// removeLocked drops s from the registry and every room group. Caller holds mu.
func (h *Hub) removeLocked(s *Session) {
	delete(h.sessions, s.ID)
	for roomID, subs := range h.rooms {
		if _, ok := subs[s.ID]; ok {
			delete(subs, s.ID)
			if len(subs) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	s.close()
}

// Subscribe adds the connection to a room group. Subscribing an unregistered
// connection is a no-op and returns false.
func (h *Hub) Subscribe(connectionID string, roomID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[connectionID]
	if !ok {
		return false
	}
	subs := h.rooms[roomID]
	if subs == nil {
		subs = make(map[string]*Session)
		h.rooms[roomID] = subs
	}
	subs[connectionID] = s
	return true
}

// Unsubscribe removes the connection from a room group.
func (h *Hub) Unsubscribe(connectionID string, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Broadcast delivers a message event to every connection subscribed to the
// room right now. Best effort: no acknowledgment, no retry, no cross-call
// ordering guarantee. Authorization is the caller's job — the membership gate
// must have passed before this is invoked.
func (h *Hub) Broadcast(roomID int64, env domain.Envelope, senderName string) {
	h.publish(roomID, domain.BroadcastEvent{
		Type:       domain.EventTypeMessage,
		MessageID:  env.MessageID,
		RoomID:     roomID,
		SenderID:   env.SenderID,
		SenderName: senderName,
		Content:    env.Content,
		IsMedia:    env.IsMedia,
	})
}

// SystemNotice pushes a system event (member joined/left) to a room group.
func (h *Hub) SystemNotice(roomID int64, content string) {
	h.publish(roomID, domain.BroadcastEvent{
		Type:    domain.EventTypeSystem,
		RoomID:  roomID,
		Content: content,
	})
}

func (h *Hub) publish(roomID int64, ev domain.BroadcastEvent) {
	hubBroadcasts.WithLabelValues(ev.Type).Inc()

	// Deliver while holding the read lock: Session.close only runs under the
	// write lock, so a send here can never hit a closed channel. The sends
	// are non-blocking, so a slow consumer cannot stall registry mutations.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.rooms[roomID] {
		select {
		case s.events <- ev:
		default:
			hubDropped.Inc()
			h.log.Warn().Str("connection_id", s.ID).Int64("room_id", roomID).Msg("send buffer full, event dropped")
		}
	}
}

// SubscriberCount returns how many connections are subscribed to roomID.
func (h *Hub) SubscriberCount(roomID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
