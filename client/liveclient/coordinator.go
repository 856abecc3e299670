package liveclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"graho-live/internal/models"
	"graho-live/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errNotConnected = errors.New("not connected")

// ConnState is the coordinator's connection lifecycle state.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Options configures a Coordinator. The zero value of every field has a
// usable default except Credentials, without which Connect refuses to dial.
type Options struct {
	Endpoint    EndpointConfig
	Credentials CredentialProvider

	// AckTimeout bounds how long SendMessage/SendEmoji wait for the
	// server acknowledgment.
	AckTimeout time.Duration
	// JoinRetryDelay is the fixed wait before the single join retry when
	// JoinLiveSession is called while disconnected.
	JoinRetryDelay time.Duration
	// DialAttempts/DialBackoff bound transport-level connect retries.
	// After they are exhausted the caller must call Connect again.
	DialAttempts int
	DialBackoff  time.Duration

	Dialer *websocket.Dialer
}

func (o *Options) withDefaults() {
	if o.AckTimeout <= 0 {
		o.AckTimeout = 5 * time.Second
	}
	if o.JoinRetryDelay <= 0 {
		o.JoinRetryDelay = time.Second
	}
	if o.DialAttempts <= 0 {
		o.DialAttempts = 3
	}
	if o.DialBackoff <= 0 {
		o.DialBackoff = 500 * time.Millisecond
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Snapshot is a consistent read of the coordinator's session state.
type Snapshot struct {
	State            ConnState
	SessionID        string
	Role             string
	ParticipantCount int
	Messages         []models.ChatMessage
}

// Coordinator owns one live-session connection. Construct it once near the
// application root and hand it to whoever needs it; it keeps no package
// state.
type Coordinator struct {
	opts Options

	mu               sync.Mutex
	state            ConnState
	conn             *websocket.Conn
	sessionID        string
	role             string
	participantCount int
	messages         []models.ChatMessage
	pending          map[string]chan models.AckData
	subscribers      map[chan models.LiveSessionEndedData]bool

	writeMu sync.Mutex
}

func New(opts Options) *Coordinator {
	opts.withDefaults()
	return &Coordinator{
		opts:        opts,
		pending:     make(map[string]chan models.AckData),
		subscribers: make(map[chan models.LiveSessionEndedData]bool),
	}
}

// State returns the current connection state.
func (c *Coordinator) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current session state for UI consumers.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]models.ChatMessage, len(c.messages))
	copy(messages, c.messages)
	return Snapshot{
		State:            c.state,
		SessionID:        c.sessionID,
		Role:             c.role,
		ParticipantCount: c.participantCount,
		Messages:         messages,
	}
}

// Subscribe returns a channel that receives session-ended notifications.
// This is how views outside the coordinator learn a session is over
// without a dependency edge back into it.
func (c *Coordinator) Subscribe() <-chan models.LiveSessionEndedData {
	ch := make(chan models.LiveSessionEndedData, 4)
	c.mu.Lock()
	c.subscribers[ch] = true
	c.mu.Unlock()
	return ch
}

func (c *Coordinator) Unsubscribe(ch <-chan models.LiveSessionEndedData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subscribers {
		if sub == ch {
			delete(c.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Connect establishes the live connection. It is idempotent: a no-op when
// already connected or connecting. All failures are logged, never returned;
// the state simply stays disconnected.
func (c *Coordinator) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return
	}
	c.state = Connecting
	c.mu.Unlock()

	token, ok := ResolveToken(c.opts.Credentials)
	if !ok {
		logger.Warn("Live connect skipped: no credential under any known key")
		c.setDisconnected()
		return
	}

	endpoint := ResolveEndpoint(c.opts.Endpoint)

	var conn *websocket.Conn
	var err error
	for attempt := 1; attempt <= c.opts.DialAttempts; attempt++ {
		conn, _, err = c.opts.Dialer.DialContext(ctx, endpoint+"?token="+token, nil)
		if err == nil {
			break
		}
		logger.Warn("Live dial attempt %d/%d to %s failed: %v", attempt, c.opts.DialAttempts, endpoint, err)
		select {
		case <-ctx.Done():
			c.setDisconnected()
			return
		case <-time.After(c.opts.DialBackoff):
		}
	}
	if err != nil {
		c.setDisconnected()
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.state = Connected
	c.mu.Unlock()

	logger.Info("Live connection established to %s", endpoint)
	go c.readLoop(conn)
}

// Disconnect tears down the connection and clears all session-scoped state.
// Safe to call whenever, including when never connected.
func (c *Coordinator) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.clearSessionLocked()
	c.failPendingLocked("disconnected")
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// JoinLiveSession joins a session. If disconnected it triggers Connect and
// retries the join exactly once after the configured delay; a failure after
// that is logged and the call gives up.
func (c *Coordinator) JoinLiveSession(ctx context.Context, sessionID string) {
	if c.State() != Connected {
		c.Connect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.JoinRetryDelay):
		}

		if c.State() != Connected {
			logger.Error("Cannot join live session %s: still not connected", sessionID)
			return
		}
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.messages = nil
	c.mu.Unlock()

	if err := c.writeEnvelope(models.NewEnvelope(models.EventJoinLiveSession, "", models.JoinLiveSessionData{
		SessionID: sessionID,
	})); err != nil {
		logger.Error("Failed to send join for session %s: %v", sessionID, err)
	}
}

// LeaveLiveSession leaves the current session and resets session state.
// No-op without an active session or connection.
func (c *Coordinator) LeaveLiveSession() {
	c.mu.Lock()
	sessionID := c.sessionID
	connected := c.state == Connected
	c.mu.Unlock()

	if sessionID == "" || !connected {
		return
	}

	if err := c.writeEnvelope(models.NewEnvelope(models.EventLeaveLiveSession, "", models.LeaveLiveSessionData{
		SessionID: sessionID,
	})); err != nil {
		logger.Error("Failed to send leave for session %s: %v", sessionID, err)
	}

	c.mu.Lock()
	c.clearSessionLocked()
	c.mu.Unlock()
}

// SendMessage relays a chat message to the session and waits for the server
// acknowledgment. Returns false on any failure; it never returns an error.
func (c *Coordinator) SendMessage(ctx context.Context, text string) bool {
	c.mu.Lock()
	sessionID := c.sessionID
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || sessionID == "" {
		logger.Warn("SendMessage dropped: connected=%v session=%q", connected, sessionID)
		return false
	}

	return c.request(ctx, models.EventLiveChatMessage, models.LiveChatMessageData{
		SessionID:   sessionID,
		Message:     text,
		MessageType: models.ChatTypeText,
	})
}

// SendEmoji relays an emoji reaction, with the same semantics as SendMessage.
func (c *Coordinator) SendEmoji(ctx context.Context, emoji string) bool {
	c.mu.Lock()
	sessionID := c.sessionID
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || sessionID == "" {
		logger.Warn("SendEmoji dropped: connected=%v session=%q", connected, sessionID)
		return false
	}

	return c.request(ctx, models.EventLiveChatEmoji, models.LiveChatEmojiData{
		SessionID: sessionID,
		Emoji:     emoji,
	})
}

// request performs one correlated request/acknowledge exchange.
func (c *Coordinator) request(ctx context.Context, event string, data interface{}) bool {
	requestID := uuid.NewString()
	ackCh := make(chan models.AckData, 1)

	c.mu.Lock()
	c.pending[requestID] = ackCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
	}()

	if err := c.writeEnvelope(models.NewEnvelope(event, requestID, data)); err != nil {
		logger.Error("Failed to send %s: %v", event, err)
		return false
	}

	select {
	case ack := <-ackCh:
		if !ack.Success {
			logger.Warn("%s rejected: %s", event, ack.Error)
		}
		return ack.Success
	case <-time.After(c.opts.AckTimeout):
		logger.Warn("%s timed out waiting for ack", event)
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) writeEnvelope(envelope models.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(envelope)
}

func (c *Coordinator) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
			c.state = Disconnected
			c.clearSessionLocked()
		}
		c.failPendingLocked("connection lost")
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		var envelope models.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("Live connection read error: %v", err)
			}
			return
		}
		c.handleEvent(&envelope)
	}
}

func (c *Coordinator) handleEvent(envelope *models.Envelope) {
	switch envelope.Event {
	case models.EventAck:
		var ack models.AckData
		if err := json.Unmarshal(envelope.Data, &ack); err != nil {
			return
		}
		c.mu.Lock()
		if ch, ok := c.pending[envelope.RequestID]; ok {
			ch <- ack
		}
		c.mu.Unlock()

	case models.EventLiveJoined:
		var data models.LiveJoinedData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return
		}
		c.mu.Lock()
		c.sessionID = data.SessionID
		c.role = data.Role
		c.participantCount = data.ParticipantCount
		c.messages = nil
		c.mu.Unlock()

	case models.EventLiveParticipantJoin, models.EventLiveParticipantLeft, models.EventLiveParticipantCount:
		var data models.ParticipantCountData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return
		}
		c.mu.Lock()
		if c.sessionID == data.SessionID {
			c.participantCount = data.ParticipantCount
		}
		c.mu.Unlock()

	case models.EventLiveChatMessageRelay, models.EventLiveChatEmojiRelay:
		var message models.ChatMessage
		if err := json.Unmarshal(envelope.Data, &message); err != nil {
			return
		}
		c.mu.Lock()
		if c.sessionID == message.LiveSessionID {
			c.messages = append(c.messages, message)
		}
		c.mu.Unlock()

	case models.EventLiveSessionEnded, models.EventLiveEnded:
		var data models.LiveSessionEndedData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return
		}
		c.mu.Lock()
		if c.sessionID != "" && c.sessionID == data.SessionID {
			c.clearSessionLocked()
		}
		// Only the first of the two end events carries a reason; fan out
		// just that one so subscribers see a single notification.
		if envelope.Event == models.EventLiveSessionEnded {
			for sub := range c.subscribers {
				select {
				case sub <- data:
				default:
				}
			}
		}
		c.mu.Unlock()

	default:
		logger.Debug("Ignoring unknown live event %q", envelope.Event)
	}
}

func (c *Coordinator) setDisconnected() {
	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()
}

func (c *Coordinator) clearSessionLocked() {
	c.sessionID = ""
	c.role = ""
	c.participantCount = 0
	c.messages = nil
}

func (c *Coordinator) failPendingLocked(reason string) {
	for id, ch := range c.pending {
		select {
		case ch <- models.AckData{Success: false, Error: reason}:
		default:
		}
		delete(c.pending, id)
	}
}
