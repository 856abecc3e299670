package livehub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"graho-live/internal/database"
	"graho-live/internal/models"
	"graho-live/pkg/logger"
)

// Hub coordinates one live session: it tracks participants, assigns the
// host/audience role, relays chat traffic and ends the session when the
// host leaves.
type Hub struct {
	sessionID string
	hostID    int

	clients    map[*Client]bool
	host       *Client
	Broadcast  chan []byte
	Register   chan *Client
	Unregister chan *Client
	shutdown   chan string

	lastActivity time.Time
	ended        bool
	db           database.Database
	manager      *Manager
}

func NewHub(session *models.LiveSession, db database.Database, manager *Manager) *Hub {
	return &Hub{
		sessionID:    session.ID,
		hostID:       session.HostID,
		clients:      make(map[*Client]bool),
		Broadcast:    make(chan []byte, 64),
		Register:     make(chan *Client),
		Unregister:   make(chan *Client),
		shutdown:     make(chan string, 1),
		lastActivity: time.Now(),
		db:           db,
		manager:      manager,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case reason := <-h.shutdown:
			h.endSession(reason)
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			h.removeClient(client)
			if client == h.host {
				// Host gone, the session is over for everyone.
				h.endSession("host_left")
				return
			}
			h.broadcastCountEvent(models.EventLiveParticipantLeft)

		case message := <-h.Broadcast:
			h.lastActivity = time.Now()
			h.broadcastToAll(message)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true
	h.lastActivity = time.Now()

	role := models.LiveRoleAudience
	if client.userID == h.hostID && h.host == nil {
		role = models.LiveRoleHost
		h.host = client
	}
	client.setSession(h, role)

	// The joining connection gets the authoritative snapshot first, then
	// everyone learns the new count.
	joined := models.NewEnvelope(models.EventLiveJoined, "", models.LiveJoinedData{
		SessionID:        h.sessionID,
		ParticipantCount: len(h.clients),
		Role:             role,
	})
	client.enqueue(mustMarshal(joined))

	h.broadcastCountEvent(models.EventLiveParticipantJoin)
	logger.Info("User %d joined live session %s as %s", client.userID, h.sessionID, role)
}

// removeClient detaches a client from the hub. The send channel stays open:
// the connection outlives session membership and may join another session.
func (h *Hub) removeClient(client *Client) {
	delete(h.clients, client)
	client.clearSession(h)
	h.lastActivity = time.Now()
	logger.Info("User %d left live session %s", client.userID, h.sessionID)
}

func (h *Hub) broadcastCountEvent(event string) {
	count := len(h.clients)

	envelope := models.NewEnvelope(event, "", models.ParticipantCountData{
		SessionID:        h.sessionID,
		ParticipantCount: count,
	})
	h.broadcastToAll(mustMarshal(envelope))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.db.SetParticipantCount(ctx, h.sessionID, count); err != nil {
		logger.Error("Error persisting participant count for %s: %v", h.sessionID, err)
	}
}

func (h *Hub) endSession(reason string) {
	if h.ended {
		return
	}
	h.ended = true

	ended := models.NewEnvelope(models.EventLiveSessionEnded, "", models.LiveSessionEndedData{
		SessionID: h.sessionID,
		Reason:    reason,
	})
	h.broadcastToAll(mustMarshal(ended))

	final := models.NewEnvelope(models.EventLiveEnded, "", models.LiveSessionEndedData{
		SessionID: h.sessionID,
	})
	h.broadcastToAll(mustMarshal(final))

	for client := range h.clients {
		delete(h.clients, client)
		client.clearSession(h)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.db.EndLiveSession(ctx, h.sessionID); err != nil {
		logger.Error("Error ending live session %s: %v", h.sessionID, err)
	}

	h.manager.remove(h.sessionID)
	logger.Info("Live session %s ended (%s)", h.sessionID, reason)
}

func (h *Hub) broadcastToAll(message []byte) {
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer: drop it and kill the connection so its
			// read pump unwinds.
			delete(h.clients, client)
			client.clearSession(h)
			client.conn.Close()
		}
	}
}

// End requests an orderly shutdown of the session from outside the hub loop.
func (h *Hub) End(reason string) {
	select {
	case h.shutdown <- reason:
	default:
	}
}

func (h *Hub) ParticipantCount() int {
	return len(h.clients)
}

func mustMarshal(e models.Envelope) []byte {
	data, err := json.Marshal(e)
	if err != nil {
		logger.Error("Error marshaling envelope %s: %v", e.Event, err)
		return []byte("{}")
	}
	return data
}

// Manager owns the set of running hubs, one per live session.
type Manager struct {
	hubs  map[string]*Hub
	mutex sync.Mutex
	db    database.Database
}

func NewManager(db database.Database, cleanupInterval time.Duration) *Manager {
	manager := &Manager{
		hubs: make(map[string]*Hub),
		db:   db,
	}

	go manager.cleanupIdleHubs(cleanupInterval)
	return manager
}

// GetHub returns the running hub for a session, starting one if needed.
func (m *Manager) GetHub(session *models.LiveSession) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hub, exists := m.hubs[session.ID]
	if !exists {
		hub = NewHub(session, m.db, m)
		m.hubs[session.ID] = hub
		go hub.Run()
	}
	return hub
}

func (m *Manager) remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.hubs, sessionID)
}

func (m *Manager) cleanupIdleHubs(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		m.mutex.Lock()
		for sessionID, hub := range m.hubs {
			if hub.ParticipantCount() == 0 && time.Since(hub.lastActivity) > interval {
				hub.End("idle")
				logger.Debug("Cleaned up idle hub for session %s", sessionID)
			}
		}
		m.mutex.Unlock()
	}
}
