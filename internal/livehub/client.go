package livehub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"graho-live/internal/database"
	"graho-live/internal/models"
	"graho-live/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one websocket connection on the /live endpoint. It starts
// unattached; a join_live_session event binds it to a hub.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	userID    int
	userName  string
	userPhoto string

	mu   sync.Mutex
	hub  *Hub
	role string

	manager *Manager
	db      database.Database
}

func NewClient(conn *websocket.Conn, user *models.User, manager *Manager, db database.Database) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    user.ID,
		userName:  user.Name,
		userPhoto: user.Photo,
		manager:   manager,
		db:        db,
	}
}

func (c *Client) setSession(hub *Hub, role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub = hub
	c.role = role
}

// clearSession resets the binding only if the client still belongs to hub.
// A client rejoining another session may already point elsewhere by the
// time the old hub detaches it.
func (c *Client) clearSession(hub *Hub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hub == hub {
		c.hub = nil
		c.role = ""
	}
}

func (c *Client) currentHub() *Hub {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub
}

func (c *Client) enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
	}
}

func (c *Client) ReadPump() {
	defer func() {
		if hub := c.currentHub(); hub != nil {
			hub.Unregister <- c
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for user %d: %v", c.userID, err)
			}
			break
		}

		var envelope models.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			logger.Error("Error parsing envelope from user %d: %v", c.userID, err)
			continue
		}

		c.handleEvent(&envelope)
	}
}

func (c *Client) handleEvent(envelope *models.Envelope) {
	switch envelope.Event {
	case models.EventJoinLiveSession:
		c.handleJoin(envelope)
	case models.EventLeaveLiveSession:
		if hub := c.currentHub(); hub != nil {
			hub.Unregister <- c
		}
	case models.EventLiveChatMessage:
		c.handleChatMessage(envelope)
	case models.EventLiveChatEmoji:
		c.handleChatEmoji(envelope)
	default:
		logger.Debug("Ignoring unknown event %q from user %d", envelope.Event, c.userID)
	}
}

func (c *Client) handleJoin(envelope *models.Envelope) {
	var data models.JoinLiveSessionData
	if err := json.Unmarshal(envelope.Data, &data); err != nil || data.SessionID == "" {
		logger.Error("Invalid join payload from user %d", c.userID)
		return
	}

	// A connection can only be in one session at a time.
	if hub := c.currentHub(); hub != nil {
		hub.Unregister <- c
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := c.db.GetLiveSession(ctx, data.SessionID)
	if err != nil {
		logger.Error("Join failed, session %s not found: %v", data.SessionID, err)
		return
	}
	if session.Status != models.LiveStatusLive {
		logger.Warn("Join rejected, session %s already ended", data.SessionID)
		return
	}

	c.manager.GetHub(session).Register <- c
}

func (c *Client) handleChatMessage(envelope *models.Envelope) {
	var data models.LiveChatMessageData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		c.ack(envelope.RequestID, false, "invalid payload")
		return
	}

	hub := c.currentHub()
	if hub == nil || hub.sessionID != data.SessionID {
		c.ack(envelope.RequestID, false, "not in session")
		return
	}

	messageType := data.MessageType
	if messageType == "" {
		messageType = models.ChatTypeText
	}

	c.relay(hub, models.EventLiveChatMessageRelay, data.Message, messageType)
	c.ack(envelope.RequestID, true, "")
}

func (c *Client) handleChatEmoji(envelope *models.Envelope) {
	var data models.LiveChatEmojiData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		c.ack(envelope.RequestID, false, "invalid payload")
		return
	}

	hub := c.currentHub()
	if hub == nil || hub.sessionID != data.SessionID {
		c.ack(envelope.RequestID, false, "not in session")
		return
	}

	c.relay(hub, models.EventLiveChatEmojiRelay, data.Emoji, models.ChatTypeEmoji)
	c.ack(envelope.RequestID, true, "")
}

func (c *Client) relay(hub *Hub, event, text, messageType string) {
	message := models.ChatMessage{
		ID:            uuid.NewString(),
		LiveSessionID: hub.sessionID,
		UserID:        c.userID,
		UserName:      c.userName,
		UserPhoto:     c.userPhoto,
		Message:       text,
		MessageType:   messageType,
		Timestamp:     time.Now().UTC(),
	}

	hub.Broadcast <- mustMarshal(models.NewEnvelope(event, "", message))
}

func (c *Client) ack(requestID string, success bool, errMsg string) {
	if requestID == "" {
		return
	}
	c.enqueue(mustMarshal(models.NewEnvelope(models.EventAck, requestID, models.AckData{
		Success: success,
		Error:   errMsg,
	})))
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error for user %d: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
