// Package aggregatestore implements C1: point-in-time reads of an item's
// projection snapshot and its current event-log version. Both reads are
// used by the command handlers without locking; staleness is expected and
// resolved by the version-conflict retry path (§4.1, §4.5).
package aggregatestore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/riftline/bidengine/internal/auction"
	"github.com/riftline/bidengine/internal/database"
)

// Store reads the current item snapshot and aggregate version.
type Store struct {
	db database.DBTX
}

// New creates a Store bound to a pool or an open transaction.
func New(db database.DBTX) *Store {
	return &Store{db: db}
}

// Snapshot returns the current projection row for item_id.
func (s *Store) Snapshot(ctx context.Context, itemID int64) (auction.Item, error) {
	const q = `
		SELECT id, title, description, starting_price, current_price, buy_now_price,
		       start_time, end_time, seller, status, created_at
		FROM items
		WHERE id = $1
	`
	var item auction.Item
	var status string
	err := s.db.QueryRow(ctx, q, itemID).Scan(
		&item.ID,
		&item.Title,
		&item.Description,
		&item.StartingPrice,
		&item.CurrentPrice,
		&item.BuyNowPrice,
		&item.StartTime,
		&item.EndTime,
		&item.Seller,
		&status,
		&item.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return auction.Item{}, fmt.Errorf("item %d not found", itemID)
		}
		return auction.Item{}, fmt.Errorf("get item snapshot: %w", err)
	}
	item.Status = auction.ItemStatus(status)
	return item, nil
}

// CurrentVersion returns max(version) over events for aggregate_id, or 0 if
// the aggregate has no events yet.
func (s *Store) CurrentVersion(ctx context.Context, itemID int64) (int64, error) {
	const q = `SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1`
	var version int64
	if err := s.db.QueryRow(ctx, q, itemID).Scan(&version); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return version, nil
}
