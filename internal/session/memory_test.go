package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/biocortex/hypothesis/internal/agent/core"
)

func appendTurn(t *testing.T, sess core.Session, id, text string) {
	t.Helper()
	err := sess.Append(context.Background(), core.Turn{
		ID:        id,
		Speaker:   core.SpeakerUser,
		Text:      text,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestEnsureReturnsSameSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	a, err := store.Ensure(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	appendTurn(t, a, "t1", "hello")

	b, err := store.Ensure(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(b.History(0)) != 1 {
		t.Fatal("session state not shared across Ensure calls")
	}
}

func TestGetMissingSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	if _, ok, err := store.Get(context.Background(), "nope"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestHistoryWindow(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	sess, _ := store.Ensure(context.Background(), "s1")
	for i := 0; i < 5; i++ {
		appendTurn(t, sess, fmt.Sprintf("t%d", i), fmt.Sprintf("message %d", i))
	}

	window := sess.History(2)
	if len(window) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(window))
	}
	if window[0].ID != "t3" || window[1].ID != "t4" {
		t.Fatalf("window not chronological tail: %v, %v", window[0].ID, window[1].ID)
	}
	if got := len(sess.History(0)); got != 5 {
		t.Fatalf("full history lost: %d", got)
	}
}

func TestRecallRanksByRelevance(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	sess, _ := store.Ensure(context.Background(), "s1")
	appendTurn(t, sess, "t1", "the TP53 gene regulates apoptosis in cells")
	appendTurn(t, sess, "t2", "what a nice day outside")
	appendTurn(t, sess, "t3", "insulin receptor signaling cascade")

	hits := sess.Recall("TP53 apoptosis", 2)
	if len(hits) == 0 {
		t.Fatal("no recall hits")
	}
	if hits[0].ID != "t1" {
		t.Fatalf("best hit should be the apoptosis turn, got %s", hits[0].ID)
	}
}

func TestRecallZeroK(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	sess, _ := store.Ensure(context.Background(), "s1")
	appendTurn(t, sess, "t1", "anything")
	if hits := sess.Recall("anything", 0); hits != nil {
		t.Fatalf("expected no hits for k=0, got %v", hits)
	}
}

func TestClearResetsSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	sess, _ := store.Ensure(context.Background(), "s1")
	sess.SetMode(core.ModeResearch)
	appendTurn(t, sess, "t1", "the TP53 gene")

	if err := sess.Clear(context.Background()); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(sess.History(0)) != 0 {
		t.Fatal("history survived clear")
	}
	if sess.Mode() != core.ModeConversational {
		t.Fatal("mode not reset")
	}
	if hits := sess.Recall("TP53", 3); len(hits) != 0 {
		t.Fatalf("index survived clear: %v", hits)
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	store := NewMemoryStore(10 * time.Millisecond)
	sess, _ := store.Ensure(context.Background(), "old")
	appendTurn(t, sess, "t1", "hello")

	time.Sleep(20 * time.Millisecond)
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept session, got %d", removed)
	}
	if _, ok, _ := store.Get(context.Background(), "old"); ok {
		t.Fatal("expired session still retrievable")
	}
}

func TestSweepKeepsActiveSessions(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	store.Ensure(context.Background(), "fresh")
	if removed := store.Sweep(); removed != 0 {
		t.Fatalf("active session swept: %d", removed)
	}
}

func TestSweepDisabledWithoutTTL(t *testing.T) {
	store := NewMemoryStore(0)
	store.Ensure(context.Background(), "s1")
	if removed := store.Sweep(); removed != 0 {
		t.Fatalf("zero TTL must disable expiry, swept %d", removed)
	}
}
