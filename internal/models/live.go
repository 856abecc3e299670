package models

import "time"

// Live session roles held by a single connection.
const (
	LiveRoleHost     = "host"
	LiveRoleAudience = "audience"
)

// Live session lifecycle states.
const (
	LiveStatusLive  = "live"
	LiveStatusEnded = "ended"
)

type LiveSession struct {
	ID               string     `json:"id"`
	HostID           int        `json:"host_id"`
	HostName         string     `json:"host_name,omitempty"`
	Title            string     `json:"title,omitempty"`
	Status           string     `json:"status"`
	ParticipantCount int        `json:"participant_count"`
	CreatedAt        time.Time  `json:"created_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// Chat message kinds relayed inside a live session.
const (
	ChatTypeText   = "text"
	ChatTypeEmoji  = "emoji"
	ChatTypeSystem = "system"
)

// ChatMessage is an immutable relay value. Messages are ephemeral: they live
// only in the memory of connected participants and are lost on disconnect.
type ChatMessage struct {
	ID            string    `json:"id"`
	LiveSessionID string    `json:"liveSessionId"`
	UserID        int       `json:"userId"`
	UserName      string    `json:"userName"`
	UserPhoto     string    `json:"userPhoto,omitempty"`
	Message       string    `json:"message"`
	MessageType   string    `json:"messageType"`
	Timestamp     time.Time `json:"timestamp"`
}

type CreateLiveSessionRequest struct {
	Title string `json:"title,omitempty"`
}
