package database

import (
	"context"
	"errors"

	"graho-live/internal/models"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned by Deduct when the wallet cannot cover
// the requested amount.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

type UserRepository interface {
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

type WalletRepository interface {
	GetBalance(ctx context.Context, userID int) (decimal.Decimal, error)
	// Deduct debits the request amount inside one transaction. A previously
	// seen idempotency key returns the recorded resulting balance without
	// deducting again.
	Deduct(ctx context.Context, userID int, req *models.DeductRequest) (decimal.Decimal, error)
	Recharge(ctx context.Context, userID int, amount decimal.Decimal) (decimal.Decimal, error)
}

type LiveSessionRepository interface {
	CreateLiveSession(ctx context.Context, hostID int, title string) (*models.LiveSession, error)
	GetLiveSession(ctx context.Context, id string) (*models.LiveSession, error)
	ListLiveSessions(ctx context.Context) ([]*models.LiveSession, error)
	SetParticipantCount(ctx context.Context, id string, count int) error
	EndLiveSession(ctx context.Context, id string) error
}

type Database interface {
	UserRepository
	WalletRepository
	LiveSessionRepository
	Close() error
}
