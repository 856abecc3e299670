package handlers

import (
	"encoding/json"
	"net/http"

	"graho-live/internal/auth"
	"graho-live/internal/database"
	"graho-live/internal/livehub"
	"graho-live/internal/models"
	"graho-live/pkg/logger"

	"github.com/gorilla/websocket"
)

type LiveHandlers struct {
	authService *auth.Service
	hubManager  *livehub.Manager
	db          database.Database
	upgrader    websocket.Upgrader
}

func NewLiveHandlers(authService *auth.Service, hubManager *livehub.Manager, db database.Database) *LiveHandlers {
	return &LiveHandlers{
		authService: authService,
		hubManager:  hubManager,
		db:          db,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleLive upgrades /live connections. Joining a particular session
// happens afterwards via a join_live_session event on the socket.
func (h *LiveHandlers) HandleLive(w http.ResponseWriter, r *http.Request) {
	token, err := tokenFromRequest(r)
	if err != nil {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserFromToken(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := livehub.NewClient(conn, user, h.hubManager, h.db)

	go client.WritePump()
	go client.ReadPump()
}

func (h *LiveHandlers) CreateLiveSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if user.Role != models.RoleAstrologer {
		http.Error(w, "only astrologers can host live sessions", http.StatusForbidden)
		return
	}

	var req models.CreateLiveSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	session, err := h.db.CreateLiveSession(r.Context(), user.ID, req.Title)
	if err != nil {
		logger.Error("Create live session error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

func (h *LiveHandlers) ListLiveSessions(w http.ResponseWriter, r *http.Request) {
	if _, err := h.currentUser(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessions, err := h.db.ListLiveSessions(r.Context())
	if err != nil {
		logger.Error("List live sessions error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *LiveHandlers) currentUser(r *http.Request) (*models.User, error) {
	token, err := tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	return h.authService.GetUserFromToken(r.Context(), token)
}
