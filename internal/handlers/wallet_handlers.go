package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"graho-live/internal/auth"
	"graho-live/internal/database"
	"graho-live/internal/models"
	"graho-live/pkg/logger"
)

type WalletHandlers struct {
	authService *auth.Service
	db          database.Database
}

func NewWalletHandlers(authService *auth.Service, db database.Database) *WalletHandlers {
	return &WalletHandlers{
		authService: authService,
		db:          db,
	}
}

func (h *WalletHandlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	balance, err := h.db.GetBalance(r.Context(), user.ID)
	if err != nil {
		logger.Error("Get balance error for user %d: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, models.BalanceResponse{Balance: balance})
}

func (h *WalletHandlers) Deduct(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req models.DeductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if req.Type != models.DeductTypeChat && req.Type != models.DeductTypeVoice {
		writeError(w, http.StatusBadRequest, "invalid deduction type")
		return
	}

	newBalance, err := h.db.Deduct(r.Context(), user.ID, &req)
	if err != nil {
		if errors.Is(err, database.ErrInsufficientBalance) {
			writeError(w, http.StatusPaymentRequired, "insufficient balance")
			return
		}
		logger.Error("Deduct error for user %d: %v", user.ID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, models.DeductResponse{NewBalance: newBalance})
}

func (h *WalletHandlers) Recharge(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req models.RechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	newBalance, err := h.db.Recharge(r.Context(), user.ID, req.Amount)
	if err != nil {
		logger.Error("Recharge error for user %d: %v", user.ID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, models.DeductResponse{NewBalance: newBalance})
}

func (h *WalletHandlers) currentUser(r *http.Request) (*models.User, error) {
	token, err := tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	return h.authService.GetUserFromToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Message: message})
}
