package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet deduction kinds accepted by the deduct endpoint.
const (
	DeductTypeChat  = "chat"
	DeductTypeVoice = "voice"
)

type Wallet struct {
	UserID    int             `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type BalanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// DeductRequest debits one or more metered minutes from a wallet. The
// idempotency key is generated client-side per minute boundary so a retried
// request can never double-charge.
type DeductRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Type           string          `json:"type"`
	Minutes        int             `json:"minutes"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

type DeductResponse struct {
	NewBalance decimal.Decimal `json:"newBalance"`
}

type RechargeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type WalletTransaction struct {
	ID             int             `json:"id"`
	UserID         int             `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	TxType         string          `json:"tx_type"`
	Minutes        int             `json:"minutes"`
	IdempotencyKey string          `json:"idempotency_key"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ErrorResponse is the JSON body for non-2xx wallet responses.
type ErrorResponse struct {
	Message string `json:"message"`
}
