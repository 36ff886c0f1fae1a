// Package eventstore implements C2, the append-only event log. The unique
// constraint on (aggregate_id, version) is the optimistic-concurrency gate:
// Append succeeds only if no row for that pair exists yet.
package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftline/bidengine/internal/auction"
)

// EventStore appends events to the durable log.
type EventStore interface {
	// Append inserts event if (aggregate_id, version) is not already taken,
	// assigning and returning event.ID. On collision it returns
	// auction.ErrVersionConflict; any other storage failure is returned
	// wrapped in a distinct error so callers can tell the two apart.
	Append(ctx context.Context, event auction.Event) (auction.Event, error)
}

// PostgresEventStore implements EventStore on top of a pgx pool.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// New creates a PostgresEventStore.
func New(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// Append performs an insert-if-absent on (aggregate_id, version): absence of
// a returned row means another writer already claimed that version.
func (s *PostgresEventStore) Append(ctx context.Context, event auction.Event) (auction.Event, error) {
	const q = `
		INSERT INTO events (aggregate_id, event_type, data, timestamp, version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (aggregate_id, version) DO NOTHING
		RETURNING id
	`
	err := s.pool.QueryRow(ctx, q,
		event.AggregateID,
		string(event.EventType),
		event.Data,
		event.Timestamp,
		event.Version,
	).Scan(&event.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auction.Event{}, auction.ErrVersionConflict
		}
		return auction.Event{}, fmt.Errorf("append event: %w", err)
	}
	return event, nil
}
