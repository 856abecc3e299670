package metering

import (
	"context"

	"graho-live/internal/models"

	"github.com/shopspring/decimal"
)

// Callbacks bundles the UI notification hooks shared by both meter variants.
type Callbacks struct {
	OnInsufficientBalance func()
	OnDebitFailed         func(error)
}

// AIMeter meters AI consultations: a chat clock and a voice clock at fixed
// rates, billing independently against one shared balance cache. The shared
// cache is an accepted simplification: two running clocks can each judge
// affordability from a value the other just made stale.
type AIMeter struct {
	Chat  *Meter
	Voice *Meter
	cache *BalanceCache
}

func NewAIMeter(wallet WalletClient, chatPrice, voicePrice decimal.Decimal, cb Callbacks) *AIMeter {
	cache := NewBalanceCache(wallet)

	return &AIMeter{
		cache: cache,
		Chat: NewMeter(Config{
			Activity:              models.DeductTypeChat,
			PricePerMinute:        chatPrice,
			Policy:                NoMinimum,
			Wallet:                wallet,
			Cache:                 cache,
			OnInsufficientBalance: cb.OnInsufficientBalance,
			OnDebitFailed:         cb.OnDebitFailed,
		}),
		Voice: NewMeter(Config{
			Activity:              models.DeductTypeVoice,
			PricePerMinute:        voicePrice,
			Policy:                NoMinimum,
			Wallet:                wallet,
			Cache:                 cache,
			OnInsufficientBalance: cb.OnInsufficientBalance,
			OnDebitFailed:         cb.OnDebitFailed,
		}),
	}
}

// FetchBalance refreshes the shared cached balance. Call it once a user is
// known and again whenever the UI needs a trustworthy figure.
func (m *AIMeter) FetchBalance(ctx context.Context) error {
	return m.cache.Refresh(ctx)
}

func (m *AIMeter) Balance() decimal.Decimal {
	return m.cache.Balance()
}

// Close stops both clocks, settling their final charges.
func (m *AIMeter) Close() {
	m.Chat.Close()
	m.Voice.Close()
}

// AstrologerMeter meters a consultation with one astrologer at that
// astrologer's per-minute rate. Unlike the AI variant it always bills at
// least one full minute once started.
type AstrologerMeter struct {
	Chat  *Meter
	cache *BalanceCache
}

func NewAstrologerMeter(wallet WalletClient, pricePerMinute decimal.Decimal, cb Callbacks) *AstrologerMeter {
	cache := NewBalanceCache(wallet)

	return &AstrologerMeter{
		cache: cache,
		Chat: NewMeter(Config{
			Activity:              models.DeductTypeChat,
			PricePerMinute:        pricePerMinute,
			Policy:                MinimumOneMinute,
			Wallet:                wallet,
			Cache:                 cache,
			OnInsufficientBalance: cb.OnInsufficientBalance,
			OnDebitFailed:         cb.OnDebitFailed,
		}),
	}
}

func (m *AstrologerMeter) FetchBalance(ctx context.Context) error {
	return m.cache.Refresh(ctx)
}

func (m *AstrologerMeter) Balance() decimal.Decimal {
	return m.cache.Balance()
}

func (m *AstrologerMeter) Close() {
	m.Chat.Close()
}
