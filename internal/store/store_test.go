package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/biocortex/hypothesis/internal/agent/core"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestCreateUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`)).
		WithArgs(sqlmock.AnyArg(), "a@b.c", "hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := s.CreateUser(context.Background(), "a@b.c", "hash")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("empty user id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetUserByEmail(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`)).
		WithArgs("a@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("u1", "a@b.c", "hash", now))

	user, err := s.GetUserByEmail(context.Background(), "a@b.c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" || user.PasswordHash != "hash" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestGetUserByEmailNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`)).
		WithArgs("missing@b.c").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}))

	_, err := s.GetUserByEmail(context.Background(), "missing@b.c")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveResearchTurn(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO research_turns (id, session_id, objective, turn) VALUES ($1, $2, $3, $4)`)).
		WithArgs(sqlmock.AnyArg(), "s1", "map TP53 involvement", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	turn := core.Turn{
		ID:      "t1",
		Speaker: core.SpeakerSystem,
		Text:    "hypothesis text",
		Mode:    core.ModeResearch,
		Plan: &core.Plan{
			ID:        "p1",
			Objective: "map TP53 involvement",
			Steps:     []core.PlanStep{{Objective: "x", Tool: "kegg_query"}},
		},
		CreatedAt: time.Now(),
	}
	if err := s.SaveResearchTurn(context.Background(), "s1", "map TP53 involvement", turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListResearchTurns(t *testing.T) {
	s, mock := newMockStore(t)
	turn := core.Turn{ID: "t1", Speaker: core.SpeakerSystem, Text: "answer", Mode: core.ModeResearch}
	raw, _ := json.Marshal(turn)

	mock.ExpectQuery(`SELECT id, session_id, objective, turn`).
		WithArgs("s1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "objective", "turn", "created_at"}).
			AddRow("r1", "s1", "obj", raw, time.Now()))

	turns, err := s.ListResearchTurns(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Turn.Text != "answer" {
		t.Fatalf("turn document not decoded: %+v", turns[0].Turn)
	}
}
