package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"graho-live/internal/auth"
	"graho-live/internal/config"
	"graho-live/internal/database"
	"graho-live/internal/livehub"
	"graho-live/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeDB is an in-memory database.Database for handler tests.
type fakeDB struct {
	mu          sync.Mutex
	users       map[int]*models.User
	usersByMail map[string]*models.User
	balances    map[int]decimal.Decimal
	seenKeys    map[string]decimal.Decimal
	sessions    map[string]*models.LiveSession
	nextUserID  int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:       make(map[int]*models.User),
		usersByMail: make(map[string]*models.User),
		balances:    make(map[int]decimal.Decimal),
		seenKeys:    make(map[string]decimal.Decimal),
		sessions:    make(map[string]*models.LiveSession),
		nextUserID:  1,
	}
}

func (f *fakeDB) addUser(name, role string, balance decimal.Decimal) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := &models.User{
		ID:        f.nextUserID,
		Name:      name,
		Email:     fmt.Sprintf("%s@example.com", name),
		Role:      role,
		CreatedAt: time.Now(),
	}
	f.nextUserID++
	f.users[user.ID] = user
	f.usersByMail[user.Email] = user
	f.balances[user.ID] = balance
	return user
}

func (f *fakeDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	return f.addUser(req.Name, role, decimal.Zero), nil
}

func (f *fakeDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.usersByMail[email]
	if !ok {
		return nil, fmt.Errorf("user %s not found", email)
	}
	return user, nil
}

func (f *fakeDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d not found", id)
	}
	return user, nil
}

func (f *fakeDB) GetBalance(ctx context.Context, userID int) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance, ok := f.balances[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("wallet for user %d not found", userID)
	}
	return balance, nil
}

func (f *fakeDB) Deduct(ctx context.Context, userID int, req *models.DeductRequest) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if req.IdempotencyKey != "" {
		if after, seen := f.seenKeys[req.IdempotencyKey]; seen {
			return after, nil
		}
	}

	balance := f.balances[userID]
	if balance.LessThan(req.Amount) {
		return decimal.Zero, database.ErrInsufficientBalance
	}

	balance = balance.Sub(req.Amount)
	f.balances[userID] = balance
	if req.IdempotencyKey != "" {
		f.seenKeys[req.IdempotencyKey] = balance
	}
	return balance, nil
}

func (f *fakeDB) Recharge(ctx context.Context, userID int, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	balance := f.balances[userID].Add(amount)
	f.balances[userID] = balance
	return balance, nil
}

func (f *fakeDB) CreateLiveSession(ctx context.Context, hostID int, title string) (*models.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session := &models.LiveSession{
		ID:        uuid.NewString(),
		HostID:    hostID,
		Title:     title,
		Status:    models.LiveStatusLive,
		CreatedAt: time.Now(),
	}
	if host, ok := f.users[hostID]; ok {
		session.HostName = host.Name
	}
	f.sessions[session.ID] = session
	return session, nil
}

func (f *fakeDB) GetLiveSession(ctx context.Context, id string) (*models.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("live session %s not found", id)
	}
	copied := *session
	return &copied, nil
}

func (f *fakeDB) ListLiveSessions(ctx context.Context) ([]*models.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sessions []*models.LiveSession
	for _, session := range f.sessions {
		if session.Status == models.LiveStatusLive {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}
	return sessions, nil
}

func (f *fakeDB) SetParticipantCount(ctx context.Context, id string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok {
		session.ParticipantCount = count
	}
	return nil
}

func (f *fakeDB) EndLiveSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return fmt.Errorf("live session %s not found", id)
	}
	session.Status = models.LiveStatusEnded
	now := time.Now()
	session.EndedAt = &now
	return nil
}

func (f *fakeDB) sessionStatus(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok {
		return session.Status
	}
	return ""
}

func (f *fakeDB) Close() error { return nil }

var testJWTSecret = []byte("test-secret")

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:    testJWTSecret,
			ExpiresIn: time.Hour,
		},
	}
}

// tokenFor mints a token the way the auth service does, so handler tests do
// not have to go through the register/login flow first.
func tokenFor(user *models.User) string {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"role":    user.Role,
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	if err != nil {
		panic(err)
	}
	return token
}

type testEnv struct {
	db         *fakeDB
	auth       *auth.Service
	manager    *livehub.Manager
	server     *httptest.Server
	astrologer *models.User
	viewer     *models.User
}

func newTestEnv(t interface {
	Cleanup(func())
}) *testEnv {
	db := newFakeDB()
	cfg := testConfig()
	authService := auth.NewService(db, cfg)
	manager := livehub.NewManager(db, time.Hour)

	liveHandlers := NewLiveHandlers(authService, manager, db)
	walletHandlers := NewWalletHandlers(authService, db)

	mux := http.NewServeMux()
	mux.HandleFunc("/live", liveHandlers.HandleLive)
	mux.HandleFunc("GET /wallet/balance", walletHandlers.GetBalance)
	mux.HandleFunc("POST /wallet/deduct", walletHandlers.Deduct)
	mux.HandleFunc("POST /wallet/recharge", walletHandlers.Recharge)
	mux.HandleFunc("POST /live/sessions", liveHandlers.CreateLiveSession)
	mux.HandleFunc("GET /live/sessions", liveHandlers.ListLiveSessions)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{
		db:         db,
		auth:       authService,
		manager:    manager,
		server:     server,
		astrologer: db.addUser("jyoti", models.RoleAstrologer, decimal.NewFromInt(500)),
		viewer:     db.addUser("ravi", models.RoleUser, decimal.NewFromInt(100)),
	}
}
