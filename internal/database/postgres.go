package database

import (
	"context"
	"errors"
	"fmt"

	"graho-live/internal/models"
	"graho-live/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = models.RoleUser
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (name, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, name, email, role, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = tx.QueryRow(ctx, query, req.Name, req.Email, role, string(hash)).Scan(
		&user.ID, &user.Name, &user.Email, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Every user gets a wallet row up front so deducts never race a lazy insert.
	if _, err := tx.Exec(ctx,
		`INSERT INTO wallets (user_id, balance, updated_at) VALUES ($1, 0, NOW())`,
		user.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, name, email, role, photo, password_hash, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Email, &user.Role, &user.Photo, &user.PasswordHash, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, name, email, role, photo, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &user.Role, &user.Photo, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Wallet Repository Implementation

func (db *PostgresDB) GetBalance(ctx context.Context, userID int) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := db.pool.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

func (db *PostgresDB) Deduct(ctx context.Context, userID int, req *models.DeductRequest) (decimal.Decimal, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("deduct amount must be positive")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	// Replay detection first: a retried request with a seen key gets the
	// originally recorded balance back, no second charge.
	if req.IdempotencyKey != "" {
		var recorded decimal.Decimal
		err := tx.QueryRow(ctx,
			`SELECT balance_after FROM wallet_transactions WHERE idempotency_key = $1`,
			req.IdempotencyKey,
		).Scan(&recorded)
		if err == nil {
			return recorded, tx.Commit(ctx)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	var balance decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID,
	).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock wallet: %w", err)
	}

	newBalance := balance.Sub(req.Amount)
	if newBalance.IsNegative() {
		return decimal.Zero, ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $1, updated_at = NOW() WHERE user_id = $2`,
		newBalance, userID,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO wallet_transactions (user_id, amount, tx_type, minutes, idempotency_key, balance_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		userID, req.Amount.Neg(), req.Type, req.Minutes, key, newBalance,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

func (db *PostgresDB) Recharge(ctx context.Context, userID int, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("recharge amount must be positive")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	var newBalance decimal.Decimal
	err = tx.QueryRow(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE user_id = $2 RETURNING balance`,
		amount, userID,
	).Scan(&newBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to recharge wallet: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO wallet_transactions (user_id, amount, tx_type, minutes, idempotency_key, balance_after, created_at)
		 VALUES ($1, $2, 'recharge', 0, $3, $4, NOW())`,
		userID, amount, uuid.NewString(), newBalance,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to record recharge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}

	return newBalance, nil
}

// Live Session Repository Implementation

func (db *PostgresDB) CreateLiveSession(ctx context.Context, hostID int, title string) (*models.LiveSession, error) {
	query := `
		INSERT INTO live_sessions (id, host_id, title, status, participant_count, created_at)
		VALUES ($1, $2, $3, $4, 0, NOW())
		RETURNING id, host_id, title, status, participant_count, created_at`

	session := &models.LiveSession{}
	err := db.pool.QueryRow(ctx, query, uuid.NewString(), hostID, title, models.LiveStatusLive).Scan(
		&session.ID, &session.HostID, &session.Title, &session.Status,
		&session.ParticipantCount, &session.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create live session: %w", err)
	}

	return session, nil
}

func (db *PostgresDB) GetLiveSession(ctx context.Context, id string) (*models.LiveSession, error) {
	query := `
		SELECT s.id, s.host_id, u.name, s.title, s.status, s.participant_count, s.created_at, s.ended_at
		FROM live_sessions s
		JOIN users u ON s.host_id = u.id
		WHERE s.id = $1`

	session := &models.LiveSession{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&session.ID, &session.HostID, &session.HostName, &session.Title,
		&session.Status, &session.ParticipantCount, &session.CreatedAt, &session.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (db *PostgresDB) ListLiveSessions(ctx context.Context) ([]*models.LiveSession, error) {
	query := `
		SELECT s.id, s.host_id, u.name, s.title, s.status, s.participant_count, s.created_at, s.ended_at
		FROM live_sessions s
		JOIN users u ON s.host_id = u.id
		WHERE s.status = $1
		ORDER BY s.created_at DESC`

	rows, err := db.pool.Query(ctx, query, models.LiveStatusLive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.LiveSession
	for rows.Next() {
		session := &models.LiveSession{}
		if err := rows.Scan(
			&session.ID, &session.HostID, &session.HostName, &session.Title,
			&session.Status, &session.ParticipantCount, &session.CreatedAt, &session.EndedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (db *PostgresDB) SetParticipantCount(ctx context.Context, id string, count int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE live_sessions SET participant_count = $1 WHERE id = $2`, count, id,
	)
	return err
}

func (db *PostgresDB) EndLiveSession(ctx context.Context, id string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE live_sessions SET status = $1, participant_count = 0, ended_at = NOW() WHERE id = $2`,
		models.LiveStatusEnded, id,
	)
	return err
}
