// Package store persists accounts and completed research turns in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/biocortex/hypothesis/internal/agent/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the Postgres connection pool.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// User is a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
		id, email, passwordHash)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`,
		email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ArchivedTurn is one persisted research turn.
type ArchivedTurn struct {
	ID        string
	SessionID string
	Objective string
	Turn      core.Turn
	CreatedAt time.Time
}

// SaveResearchTurn implements core.TurnArchive. The whole turn, plan and
// step results included, is stored as one JSON document.
func (s *Store) SaveResearchTurn(ctx context.Context, sessionID string, objective string, turn core.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO research_turns (id, session_id, objective, turn) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), sessionID, objective, payload)
	return err
}

func (s *Store) ListResearchTurns(ctx context.Context, sessionID string, limit int) ([]ArchivedTurn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, objective, turn, created_at
		 FROM research_turns WHERE session_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedTurn
	for rows.Next() {
		var (
			t   ArchivedTurn
			raw []byte
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Objective, &raw, &t.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &t.Turn); err != nil {
			return nil, fmt.Errorf("unmarshal turn %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
