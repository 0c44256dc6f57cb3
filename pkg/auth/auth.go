// Package auth stores portal accounts and their chat history in
// Postgres. Passwords are kept as bcrypt hashes only.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-genai/campusrag/internal/logger"
	"github.com/campus-genai/campusrag/internal/models"
	"github.com/campus-genai/campusrag/pkg/rbac"
)

var (
	// ErrUserExists reports a username or email already registered.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so login failures do not reveal which one it was.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const uniqueViolation = "23505"

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// Store persists users and chat history.
type Store struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

// NewStore connects to Postgres and creates the account tables if they
// do not exist yet.
func NewStore(ctx context.Context, url string, log *logger.Logger) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s := &Store{pool: pool, log: log}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_login TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chat_history (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create chat_history table: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS chat_history_user_idx ON chat_history (user_id, created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create chat_history index: %w", err)
	}
	return nil
}

// Register creates an account with a bcrypt password hash. The role
// must be one of the known portal roles.
func (s *Store) Register(ctx context.Context, username, email, password string, role rbac.Role) (models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if err := validateRegistration(username, email, password, role); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
		Role:     role,
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, username, email, password_hash, role) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.Email, string(hash), string(user.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.User{}, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user registered", "username", username, "role", role)
	return user, nil
}

// Authenticate verifies a username/password pair and stamps the login
// time. Unknown users and wrong passwords return the same error.
func (s *Store) Authenticate(ctx context.Context, username, password string) (models.User, error) {
	username = strings.TrimSpace(username)

	var user models.User
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, role FROM users WHERE username = $1`,
		username).Scan(&user.ID, &user.Username, &user.Email, &hash, &user.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}

	user.LastLogin = time.Now().UTC()
	if _, err := s.pool.Exec(ctx,
		`UPDATE users SET last_login = $1 WHERE id = $2`, user.LastLogin, user.ID); err != nil {
		s.log.Warn("failed to update last login", "username", username, "error", err)
	}
	return user, nil
}

// SaveExchange appends one question/answer turn to a user's history.
func (s *Store) SaveExchange(ctx context.Context, userID, question, answer string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_history (id, user_id, question, answer) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), userID, question, answer)
	if err != nil {
		return fmt.Errorf("failed to save exchange: %w", err)
	}
	return nil
}

// RecentExchanges returns the user's latest turns in chronological
// order, oldest first.
func (s *Store) RecentExchanges(ctx context.Context, userID string, limit int) ([]models.Exchange, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, question, answer, created_at
		 FROM chat_history WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var exchanges []models.Exchange
	for rows.Next() {
		var e models.Exchange
		if err := rows.Scan(&e.ID, &e.UserID, &e.Question, &e.Answer, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}

	// The query walks newest-first for the LIMIT; callers want oldest
	// first.
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func validateRegistration(username, email, password string, role rbac.Role) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("a valid email is required")
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if !rbac.Valid(role) {
		return fmt.Errorf("%w: %q", rbac.ErrInvalidRole, role)
	}
	return nil
}
