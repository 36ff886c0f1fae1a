// Package query implements the read side: GetItem, GetAuctionState,
// ListItems, GetItemBids, and GetHighestBid. GetItem and GetAuctionState are
// cache-aside through internal/cache with invalidation driven by the
// projection consumer; the other queries always read Postgres.
package query

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftline/bidengine/internal/auction"
	"github.com/riftline/bidengine/internal/cache"
)

// Queries serves the read model.
type Queries struct {
	pool  *pgxpool.Pool
	cache cache.Cache
}

// New creates Queries. cache may be a cache.NoopCache if Redis is not configured.
func New(pool *pgxpool.Pool, c cache.Cache) *Queries {
	return &Queries{pool: pool, cache: c}
}

// GetItem returns a single item by id.
func (q *Queries) GetItem(ctx context.Context, itemID int64) (auction.Item, error) {
	key := cache.ItemKey(itemID)
	if item, ok := cache.GetJSON[auction.Item](ctx, q.cache, key); ok {
		return item, nil
	}

	item, err := q.fetchItem(ctx, itemID)
	if err != nil {
		return auction.Item{}, err
	}
	cache.SetJSON(ctx, q.cache, key, item)
	return item, nil
}

// GetAuctionState returns the narrower auction view served by
// GET /auction/{id}, which omits buy_now_price (spec Open Question 4).
func (q *Queries) GetAuctionState(ctx context.Context, itemID int64) (auction.AuctionState, error) {
	key := cache.AuctionStateKey(itemID)
	if state, ok := cache.GetJSON[auction.AuctionState](ctx, q.cache, key); ok {
		return state, nil
	}

	const sql = `
		SELECT id, title, description, starting_price, current_price,
		       start_time, end_time, seller, status, created_at
		FROM items WHERE id = $1
	`
	var state auction.AuctionState
	var status string
	err := q.pool.QueryRow(ctx, sql, itemID).Scan(
		&state.ID, &state.Title, &state.Description, &state.StartingPrice, &state.CurrentPrice,
		&state.StartTime, &state.EndTime, &state.Seller, &status, &state.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return auction.AuctionState{}, fmt.Errorf("item %d not found", itemID)
		}
		return auction.AuctionState{}, fmt.Errorf("fetch auction state: %w", err)
	}
	state.Status = auction.ItemStatus(status)
	cache.SetJSON(ctx, q.cache, key, state)
	return state, nil
}

func (q *Queries) fetchItem(ctx context.Context, itemID int64) (auction.Item, error) {
	const sql = `
		SELECT id, title, description, starting_price, current_price, buy_now_price,
		       start_time, end_time, seller, status, created_at
		FROM items WHERE id = $1
	`
	var item auction.Item
	var status string
	err := q.pool.QueryRow(ctx, sql, itemID).Scan(
		&item.ID, &item.Title, &item.Description, &item.StartingPrice, &item.CurrentPrice,
		&item.BuyNowPrice, &item.StartTime, &item.EndTime, &item.Seller, &status, &item.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return auction.Item{}, fmt.Errorf("item %d not found", itemID)
		}
		return auction.Item{}, fmt.Errorf("fetch item: %w", err)
	}
	item.Status = auction.ItemStatus(status)
	return item, nil
}

// ListItems returns every item, most recently created first. Not cached:
// a listing is read far less often per-key than a single hot item.
func (q *Queries) ListItems(ctx context.Context) ([]auction.Item, error) {
	const sql = `
		SELECT id, title, description, starting_price, current_price, buy_now_price,
		       start_time, end_time, seller, status, created_at
		FROM items ORDER BY created_at DESC
	`
	rows, err := q.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []auction.Item
	for rows.Next() {
		var item auction.Item
		var status string
		if err := rows.Scan(
			&item.ID, &item.Title, &item.Description, &item.StartingPrice, &item.CurrentPrice,
			&item.BuyNowPrice, &item.StartTime, &item.EndTime, &item.Seller, &status, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		item.Status = auction.ItemStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItemBids returns all bids for an item, oldest first.
func (q *Queries) GetItemBids(ctx context.Context, itemID int64) ([]auction.Bid, error) {
	const sql = `
		SELECT id, item_id, bidder_id, bid_amount, bid_time
		FROM bids WHERE item_id = $1 ORDER BY bid_time ASC
	`
	rows, err := q.pool.Query(ctx, sql, itemID)
	if err != nil {
		return nil, fmt.Errorf("list item bids: %w", err)
	}
	defer rows.Close()

	var bids []auction.Bid
	for rows.Next() {
		var bid auction.Bid
		if err := rows.Scan(&bid.ID, &bid.ItemID, &bid.BidderID, &bid.BidAmount, &bid.BidTime); err != nil {
			return nil, fmt.Errorf("scan bid row: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

// GetHighestBid returns the highest bid amount recorded for an item, or nil
// if the item has no bids yet.
func (q *Queries) GetHighestBid(ctx context.Context, itemID int64) (*int64, error) {
	const sql = `SELECT MAX(bid_amount) FROM bids WHERE item_id = $1`
	var highest *int64
	if err := q.pool.QueryRow(ctx, sql, itemID).Scan(&highest); err != nil {
		return nil, fmt.Errorf("get highest bid: %w", err)
	}
	return highest, nil
}
