// Package session holds per-conversation state: ordered turns, the active
// mode, and recall over turns that fell out of the context window.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blevesearch/bleve"

	"github.com/biocortex/hypothesis/internal/agent/core"
)

// MemoryStore keeps sessions in process memory. Sessions idle past the TTL
// are dropped by Sweep.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	ttl      time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession), ttl: ttl}
}

func (s *MemoryStore) Ensure(ctx context.Context, id string) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.touch()
		return sess, nil
	}
	sess, err := newMemorySession(id)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = sess
	return sess, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (core.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}
	sess.touch()
	return sess, true, nil
}

// Sweep drops sessions idle longer than the TTL and returns how many were
// removed. A zero TTL disables expiry.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			sess.close()
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

type memorySession struct {
	id string

	mu         sync.Mutex
	mode       core.Mode
	turns      []core.Turn
	index      bleve.Index
	lastActive time.Time
}

func newMemorySession(id string) (*memorySession, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("session index: %w", err)
	}
	return &memorySession{
		id:         id,
		mode:       core.ModeConversational,
		index:      index,
		lastActive: time.Now(),
	}, nil
}

func (s *memorySession) ID() string { return s.id }

func (s *memorySession) Mode() core.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *memorySession) SetMode(mode core.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *memorySession) Append(ctx context.Context, turn core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	s.lastActive = time.Now()
	return s.index.Index(turn.ID, map[string]interface{}{"text": turn.Text})
}

func (s *memorySession) History(limit int) []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit >= len(s.turns) {
		return append([]core.Turn(nil), s.turns...)
	}
	return append([]core.Turn(nil), s.turns[len(s.turns)-limit:]...)
}

// Recall ranks earlier turns against the query with the session's full-text
// index, best match first.
func (s *memorySession) Recall(query string, k int) []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k <= 0 || len(s.turns) == 0 {
		return nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), k, 0, false)
	res, err := s.index.Search(req)
	if err != nil {
		return nil
	}

	byID := make(map[string]core.Turn, len(s.turns))
	for _, t := range s.turns {
		byID[t.ID] = t
	}
	var out []core.Turn
	for _, hit := range res.Hits {
		if t, ok := byID[hit.ID]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *memorySession) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns {
		if err := s.index.Delete(t.ID); err != nil {
			return err
		}
	}
	s.turns = nil
	s.mode = core.ModeConversational
	return nil
}

func (s *memorySession) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

func (s *memorySession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *memorySession) close() {
	s.index.Close()
}
