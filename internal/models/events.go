package models

import "encoding/json"

// Events emitted by clients over the /live websocket.
const (
	EventJoinLiveSession  = "join_live_session"
	EventLeaveLiveSession = "leave_live_session"
	EventLiveChatMessage  = "live_chat_message"
	EventLiveChatEmoji    = "live_chat_emoji"
)

// Events emitted by the server.
const (
	EventLiveJoined           = "live:joined"
	EventLiveParticipantJoin  = "live:participant_joined"
	EventLiveParticipantLeft  = "live:participant_left"
	EventLiveParticipantCount = "live:participant_count"
	EventLiveChatMessageRelay = "live:chat_message"
	EventLiveChatEmojiRelay   = "live:chat_emoji"
	EventLiveSessionEnded     = "live_session_ended"
	EventLiveEnded            = "live:ended"
	EventAck                  = "ack"
)

// Envelope frames every message on the /live websocket. RequestID is set by
// clients on ack-based events and echoed back on the matching Ack.
type Envelope struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type JoinLiveSessionData struct {
	SessionID string `json:"sessionId"`
}

type LeaveLiveSessionData struct {
	SessionID string `json:"sessionId"`
}

type LiveChatMessageData struct {
	SessionID   string `json:"sessionId"`
	Message     string `json:"message"`
	MessageType string `json:"messageType"`
}

type LiveChatEmojiData struct {
	SessionID string `json:"sessionId"`
	Emoji     string `json:"emoji"`
}

// LiveJoinedData carries the server-authoritative view handed to a
// connection right after it joins.
type LiveJoinedData struct {
	SessionID        string `json:"sessionId"`
	ParticipantCount int    `json:"participantCount"`
	Role             string `json:"role"`
}

type ParticipantCountData struct {
	SessionID        string `json:"sessionId"`
	ParticipantCount int    `json:"participantCount"`
}

type LiveSessionEndedData struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type AckData struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewEnvelope marshals data into an Envelope. Marshal failures are a
// programming error on our own types, so they surface as an empty payload.
func NewEnvelope(event, requestID string, data interface{}) Envelope {
	raw, _ := json.Marshal(data)
	return Envelope{Event: event, RequestID: requestID, Data: raw}
}
