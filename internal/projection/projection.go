// Package projection implements C6: the idempotent read-model projection
// consumer. Each delivery is dispatched by event type inside a single
// transaction; the processed_events guard makes redelivery of an
// already-projected event a safe no-op even when the conditional UPDATE
// guard alone would silently skip a legitimate bid-row insert (spec §4.6,
// §9 open question 2) — grounded on the teacher's user-stats-service
// processed-events pattern.
package projection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"log/slog"

	"github.com/riftline/bidengine/internal/auction"
	"github.com/riftline/bidengine/internal/broker"
	"github.com/riftline/bidengine/internal/cache"
	"github.com/riftline/bidengine/internal/database"
)

// Projector applies events from the broker to the read-model tables.
type Projector struct {
	pool  *pgxpool.Pool
	txm   database.TransactionManager
	cache cache.Cache
	log   *slog.Logger
}

// New creates a Projector. cache may be a cache.NoopCache if Redis is not configured.
func New(pool *pgxpool.Pool, txm database.TransactionManager, c cache.Cache, log *slog.Logger) *Projector {
	return &Projector{pool: pool, txm: txm, cache: c, log: log}
}

// Run consumes deliveries until the channel closes or ctx is cancelled,
// acking on successful projection (or a recognized already-processed
// no-op) and nacking with requeue on transient failure.
func (p *Projector) Run(ctx context.Context, deliveries <-chan broker.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := p.project(ctx, d.Event); err != nil {
				p.log.Error("project event failed", "event_id", d.Event.ID, "aggregate_id", d.Event.AggregateID, "error", err)
				if nerr := d.Nack(true); nerr != nil {
					p.log.Error("nack delivery failed", "error", nerr)
				}
				continue
			}
			cache.InvalidateItem(ctx, p.cache, d.Event.AggregateID)
			if aerr := d.Ack(); aerr != nil {
				p.log.Error("ack delivery failed", "error", aerr)
			}
		}
	}
}

// project dispatches a single event by type inside one transaction.
func (p *Projector) project(ctx context.Context, event auction.Event) error {
	tx, err := p.txm.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin projection tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	already, err := markProcessed(ctx, tx, event.ID)
	if err != nil {
		return fmt.Errorf("check processed_events: %w", err)
	}
	if already {
		// Redelivery of an event already materialized: commit the no-op so the
		// message is acked and not redelivered forever.
		return tx.Commit(ctx)
	}

	switch event.EventType {
	case auction.EventTypeBidPlaced:
		payload, err := event.DecodeBidPlaced()
		if err != nil {
			return fmt.Errorf("decode BidPlaced: %w", err)
		}
		if err := applyBidPlaced(ctx, tx, payload); err != nil {
			return err
		}
	case auction.EventTypeBuyNowExecuted:
		payload, err := event.DecodeBuyNowExecuted()
		if err != nil {
			return fmt.Errorf("decode BuyNowExecuted: %w", err)
		}
		if err := applyBuyNowExecuted(ctx, tx, payload); err != nil {
			return err
		}
	default:
		p.log.Warn("skipping unknown event type", "event_type", event.EventType, "event_id", event.ID)
	}

	return tx.Commit(ctx)
}

// markProcessed inserts event_id into processed_events, returning true if
// the id was already present (i.e. this event was already projected).
func markProcessed(ctx context.Context, tx pgx.Tx, eventID int64) (bool, error) {
	const q = `INSERT INTO processed_events (event_id) VALUES ($1) ON CONFLICT DO NOTHING`
	tag, err := tx.Exec(ctx, q, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

// applyBidPlaced performs the conditional current_price advance and, only
// when it succeeds, inserts the bid row.
func applyBidPlaced(ctx context.Context, tx pgx.Tx, payload auction.BidPlaced) error {
	const updateQ = `
		UPDATE items SET current_price = $2
		WHERE id = $1 AND current_price < $2
		RETURNING id
	`
	var id int64
	err := tx.QueryRow(ctx, updateQ, payload.ItemID, payload.BidAmount).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("advance current_price: %w", err)
	}

	const insertQ = `
		INSERT INTO bids (item_id, bidder_id, bid_amount, bid_time)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insertQ, payload.ItemID, payload.BidderID, payload.BidAmount, payload.Timestamp); err != nil {
		return fmt.Errorf("insert bid row: %w", err)
	}
	return nil
}

// applyBuyNowExecuted performs the conditional price-and-status advance and,
// only when it succeeds, inserts the terminal bid row.
func applyBuyNowExecuted(ctx context.Context, tx pgx.Tx, payload auction.BuyNowExecuted) error {
	const updateQ = `
		UPDATE items SET current_price = $2, status = 'COMPLETED'
		WHERE id = $1 AND current_price < $2 AND status != 'COMPLETED'
		RETURNING id
	`
	var id int64
	err := tx.QueryRow(ctx, updateQ, payload.ItemID, payload.Price).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("advance price and complete item: %w", err)
	}

	const insertQ = `
		INSERT INTO bids (item_id, bidder_id, bid_amount, bid_time)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insertQ, payload.ItemID, payload.BuyerID, payload.Price, payload.Timestamp); err != nil {
		return fmt.Errorf("insert buy-now bid row: %w", err)
	}
	return nil
}
