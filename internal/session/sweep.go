package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Janitor expires idle in-memory sessions on a cron schedule.
type Janitor struct {
	store    *MemoryStore
	schedule *cronexpr.Expression
	logger   *log.Logger
}

func NewJanitor(store *MemoryStore, schedule string, logger *log.Logger) (*Janitor, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", schedule, err)
	}
	return &Janitor{store: store, schedule: expr, logger: logger}, nil
}

// Run sweeps on schedule until the context is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	for {
		next := j.schedule.Next(time.Now())
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if removed := j.store.Sweep(); removed > 0 {
				j.logger.Printf("[SESSION] swept %d idle session(s)", removed)
			}
		}
	}
}
