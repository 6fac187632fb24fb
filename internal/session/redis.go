package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/biocortex/hypothesis/config"
	"github.com/biocortex/hypothesis/internal/agent/core"
)

// RedisStore keeps session turns in Redis lists so sessions survive process
// restarts. Expiry rides on Redis key TTLs; no sweeper is needed.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) Ensure(ctx context.Context, id string) (core.Session, error) {
	return &redisSession{store: s, id: id}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (core.Session, bool, error) {
	n, err := s.client.Exists(ctx, turnsKey(id)).Result()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	return &redisSession{store: s, id: id}, true, nil
}

func turnsKey(id string) string { return "hypothesis:session:" + id + ":turns" }
func modeKey(id string) string  { return "hypothesis:session:" + id + ":mode" }

type redisSession struct {
	store *RedisStore
	id    string
}

func (s *redisSession) ID() string { return s.id }

func (s *redisSession) Mode() core.Mode {
	mode, err := s.store.client.Get(context.Background(), modeKey(s.id)).Result()
	if err != nil || mode == "" {
		return core.ModeConversational
	}
	return core.Mode(mode)
}

func (s *redisSession) SetMode(mode core.Mode) {
	s.store.client.Set(context.Background(), modeKey(s.id), string(mode), s.store.ttl)
}

func (s *redisSession) Append(ctx context.Context, turn core.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}
	pipe := s.store.client.TxPipeline()
	pipe.RPush(ctx, turnsKey(s.id), data)
	if s.store.ttl > 0 {
		pipe.Expire(ctx, turnsKey(s.id), s.store.ttl)
		pipe.Expire(ctx, modeKey(s.id), s.store.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisSession) History(limit int) []core.Turn {
	turns := s.all()
	if limit <= 0 || limit >= len(turns) {
		return turns
	}
	return turns[len(turns)-limit:]
}

// Recall scores turns by overlap with the query's terms. Redis has no text
// index, so ranking happens client-side over this session's turns only.
func (s *redisSession) Recall(query string, k int) []core.Turn {
	if k <= 0 {
		return nil
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		turn  core.Turn
		score int
	}
	var hits []scored
	for _, t := range s.all() {
		text := strings.ToLower(t.Text)
		score := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{turn: t, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]core.Turn, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.turn)
	}
	return out
}

func (s *redisSession) Clear(ctx context.Context) error {
	return s.store.client.Del(ctx, turnsKey(s.id), modeKey(s.id)).Err()
}

func (s *redisSession) all() []core.Turn {
	raw, err := s.store.client.LRange(context.Background(), turnsKey(s.id), 0, -1).Result()
	if err != nil {
		return nil
	}
	turns := make([]core.Turn, 0, len(raw))
	for _, item := range raw {
		var t core.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns
}
