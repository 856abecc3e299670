package metering

import (
	"context"
	"sync"
	"time"

	"graho-live/internal/models"
	"graho-live/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingPolicy decides the minimum charge applied when a meter stops.
//
// The two policies are deliberately distinct: astrologer chat has always
// billed a full first minute even for a few seconds of use, while AI chat
// and voice bill nothing when stopped before the first minute boundary.
type BillingPolicy int

const (
	// NoMinimum bills only whole minutes actually reached (AI chat/voice).
	NoMinimum BillingPolicy = iota
	// MinimumOneMinute bills at least one minute once started (astrologer chat).
	MinimumOneMinute
)

// Config describes one metered activity.
type Config struct {
	// Activity is the deduction type sent to the wallet, chat or voice.
	Activity string
	// PricePerMinute must be positive. Fixed for AI activities, dynamic
	// per astrologer for astrologer chat.
	PricePerMinute decimal.Decimal
	Policy         BillingPolicy

	Wallet WalletClient
	// Cache may be shared between meters (AI chat + voice bill against
	// one cached balance). Created internally when nil.
	Cache *BalanceCache

	Clock        Clock
	TickInterval time.Duration

	// Debit retry bounds. A boundary debit that still fails after the
	// retries is rolled back so the next tick re-attempts it.
	DebitRetries int
	DebitBackoff time.Duration

	// OnInsufficientBalance fires when the meter refuses to start or
	// stops itself because the cached balance cannot cover one more
	// minute. Runs on the meter goroutine; keep it cheap.
	OnInsufficientBalance func()
	// OnDebitFailed fires after a debit exhausts its retries.
	OnDebitFailed func(error)
}

func (c *Config) withDefaults() {
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.DebitRetries <= 0 {
		c.DebitRetries = 3
	}
	if c.DebitBackoff <= 0 {
		c.DebitBackoff = 500 * time.Millisecond
	}
	if c.Cache == nil {
		c.Cache = NewBalanceCache(c.Wallet)
	}
	if c.OnInsufficientBalance == nil {
		c.OnInsufficientBalance = func() {}
	}
	if c.OnDebitFailed == nil {
		c.OnDebitFailed = func(error) {}
	}
}

// Meter converts elapsed wall-clock time into whole-minute wallet debits
// for one activity. All billing state lives behind one mutex; ticks, stop
// and teardown may interleave freely.
type Meter struct {
	cfg Config

	mu               sync.Mutex
	running          bool
	elapsedSeconds   int
	lastBilledMinute int
	startedAt        time.Time
	stop             chan struct{}
}

func NewMeter(cfg Config) *Meter {
	cfg.withDefaults()
	return &Meter{cfg: cfg}
}

// Cache exposes the balance cache this meter bills against.
func (m *Meter) Cache() *BalanceCache {
	return m.cfg.Cache
}

// Running reports whether the billing clock is ticking.
func (m *Meter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// ElapsedMinutes returns the metered time of the current run as a real
// number of minutes.
func (m *Meter) ElapsedMinutes() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return float64(m.elapsedSeconds) / 60.0
}

// Start begins ticking. Idempotent: a running meter ignores it. The cached
// balance must cover one minute up front, otherwise the insufficient
// callback fires and the meter never starts.
func (m *Meter) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	if !m.cfg.Cache.CanAfford(m.cfg.PricePerMinute) {
		m.mu.Unlock()
		logger.Warn("Meter %s not started: balance below %s/minute", m.cfg.Activity, m.cfg.PricePerMinute)
		m.cfg.OnInsufficientBalance()
		return
	}
	m.running = true
	m.startedAt = m.cfg.Clock.Now()
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	go m.run(stop)
}

func (m *Meter) run(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick advances the billing clock by one second and settles any newly
// crossed minute boundary.
func (m *Meter) tick() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.elapsedSeconds++

	if m.elapsedSeconds/60 <= m.lastBilledMinute {
		m.mu.Unlock()
		return
	}

	// Boundary crossed: the next minute must be affordable before we
	// commit to it.
	if !m.cfg.Cache.CanAfford(m.cfg.PricePerMinute) {
		m.stopTickingLocked()
		m.mu.Unlock()
		logger.Warn("Meter %s stopped: balance cannot cover another minute", m.cfg.Activity)
		m.cfg.OnInsufficientBalance()
		return
	}

	m.lastBilledMinute++
	m.mu.Unlock()

	if err := m.debit(1); err != nil {
		// Roll back so the next tick re-attempts the same boundary.
		m.mu.Lock()
		if m.lastBilledMinute > 0 {
			m.lastBilledMinute--
		}
		m.mu.Unlock()
		logger.Error("Meter %s boundary debit failed: %v", m.cfg.Activity, err)
		m.cfg.OnDebitFailed(err)
	}
}

// Stop halts the clock and settles the final reconciliation charge: the
// policy-adjusted ceiling of elapsed minutes, minus whatever was already
// billed at boundaries. Idempotent and safe when never started.
func (m *Meter) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.stopTickingLocked()

	total := (m.elapsedSeconds + 59) / 60
	if m.cfg.Policy == MinimumOneMinute && total < 1 {
		total = 1
	}
	remaining := total - m.lastBilledMinute

	m.elapsedSeconds = 0
	m.lastBilledMinute = 0
	m.mu.Unlock()

	if remaining <= 0 {
		return
	}

	amount := m.cfg.PricePerMinute.Mul(decimal.NewFromInt(int64(remaining)))
	if !m.cfg.Cache.CanAfford(amount) {
		logger.Warn("Meter %s final charge of %s skipped: insufficient balance", m.cfg.Activity, amount)
		return
	}

	if err := m.debit(remaining); err != nil {
		logger.Error("Meter %s final debit failed: %v", m.cfg.Activity, err)
		m.cfg.OnDebitFailed(err)
	}
}

// Close is the teardown hook for the owning component. A leaked ticker
// would keep billing after the UI navigated away, so owners must call this
// (or Stop) when done.
func (m *Meter) Close() {
	m.Stop()
}

func (m *Meter) stopTickingLocked() {
	m.running = false
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// debit charges minutes at the configured rate, retrying with a fixed
// backoff under one idempotency key so a retried request can never
// double-charge.
func (m *Meter) debit(minutes int) error {
	req := &models.DeductRequest{
		Amount:         m.cfg.PricePerMinute.Mul(decimal.NewFromInt(int64(minutes))),
		Type:           m.cfg.Activity,
		Minutes:        minutes,
		IdempotencyKey: uuid.NewString(),
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.DebitRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newBalance, err := m.cfg.Wallet.Deduct(ctx, req)
		cancel()
		if err == nil {
			m.cfg.Cache.Set(newBalance)
			return nil
		}
		lastErr = err
		if attempt < m.cfg.DebitRetries {
			time.Sleep(m.cfg.DebitBackoff)
		}
	}
	return lastErr
}
