// Package scheduler implements C7: the lifecycle scheduler. Transitions
// are time-driven and derivable from start_time/end_time, so they bypass
// the event log entirely and mutate the items projection directly.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// tickInterval is fixed at 1 second; missed ticks are not queued.
const tickInterval = 1 * time.Second

// Scheduler advances item lifecycle status by wall clock.
type Scheduler struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New creates a Scheduler.
func New(pool *pgxpool.Pool, log *slog.Logger) *Scheduler {
	return &Scheduler{pool: pool, log: log}
}

// Run ticks every tickInterval until ctx is cancelled, applying both
// lifecycle transitions on each tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// tick runs the two guarded lifecycle UPDATEs.
func (s *Scheduler) tick(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE items SET status = 'ACTIVE' WHERE status = 'SCHEDULED' AND start_time <= now()`,
	); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx,
		`UPDATE items SET status = 'COMPLETED' WHERE status = 'ACTIVE' AND end_time <= now()`,
	); err != nil {
		return err
	}
	return nil
}
