package metering

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"graho-live/internal/models"

	"github.com/shopspring/decimal"
)

// WalletClient is the remote wallet contract the meter bills against.
type WalletClient interface {
	FetchBalance(ctx context.Context) (decimal.Decimal, error)
	Deduct(ctx context.Context, req *models.DeductRequest) (decimal.Decimal, error)
}

// HTTPWalletClient talks to the wallet REST endpoints.
type HTTPWalletClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPWalletClient(baseURL, token string) *HTTPWalletClient {
	return &HTTPWalletClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  http.DefaultClient,
	}
}

func (w *HTTPWalletClient) FetchBalance(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.BaseURL+"/wallet/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Authorization", "Bearer "+w.Token)

	resp, err := w.Client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, walletError(resp)
	}

	var body models.BalanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode balance response: %w", err)
	}
	return body.Balance, nil
}

func (w *HTTPWalletClient) Deduct(ctx context.Context, deduct *models.DeductRequest) (decimal.Decimal, error) {
	payload, err := json.Marshal(deduct)
	if err != nil {
		return decimal.Zero, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.BaseURL+"/wallet/deduct", bytes.NewReader(payload))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Authorization", "Bearer "+w.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, walletError(resp)
	}

	var body models.DeductResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode deduct response: %w", err)
	}
	return body.NewBalance, nil
}

func walletError(resp *http.Response) error {
	var body models.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return fmt.Errorf("wallet: %s (status %d)", body.Message, resp.StatusCode)
	}
	return fmt.Errorf("wallet: unexpected status %d", resp.StatusCode)
}

// BalanceCache is the client-held copy of the server wallet balance. Two
// meters billing concurrently (chat + voice) share one cache; each refresh
// or debit response overwrites it wholesale, server value wins.
type BalanceCache struct {
	mu      sync.Mutex
	balance decimal.Decimal
	wallet  WalletClient
}

func NewBalanceCache(wallet WalletClient) *BalanceCache {
	return &BalanceCache{wallet: wallet}
}

// Refresh replaces the cached balance with the server's.
func (b *BalanceCache) Refresh(ctx context.Context) error {
	balance, err := b.wallet.FetchBalance(ctx)
	if err != nil {
		return err
	}
	b.Set(balance)
	return nil
}

func (b *BalanceCache) Balance() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance
}

func (b *BalanceCache) Set(balance decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balance = balance
}

// CanAfford reports whether the cached balance covers amount.
func (b *BalanceCache) CanAfford(amount decimal.Decimal) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balance.GreaterThanOrEqual(amount)
}
