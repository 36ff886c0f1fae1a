// Package command implements C5: the place_bid and buy_now command
// handlers. Both re-read the snapshot and version on every attempt and
// retry on auction.ErrVersionConflict up to maxRetries times, so a bid that
// was valid on one attempt may be legitimately rejected on the next if a
// concurrent bid landed first.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riftline/bidengine/internal/auction"
)

// defaultMaxRetries bounds the version-conflict retry loop (spec §4.5).
// Overridable per Handlers via New's maxRetries argument (BID_MAX_RETRIES).
const defaultMaxRetries = 100

// SnapshotReader is the subset of aggregatestore.Store the handlers need.
type SnapshotReader interface {
	Snapshot(ctx context.Context, itemID int64) (auction.Item, error)
	CurrentVersion(ctx context.Context, itemID int64) (int64, error)
}

// Appender is the subset of coordinator.Coordinator the handlers need.
type Appender interface {
	AppendAndPublish(ctx context.Context, event auction.Event) (auction.Event, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Handlers implements place_bid and buy_now.
type Handlers struct {
	store       SnapshotReader
	coordinator Appender
	now         Clock
	maxRetries  int
}

// New creates Handlers. If now is nil, time.Now is used. If maxRetries is
// 0, defaultMaxRetries (100) is used.
func New(store SnapshotReader, coordinator Appender, now Clock, maxRetries int) *Handlers {
	if now == nil {
		now = time.Now
	}
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	return &Handlers{store: store, coordinator: coordinator, now: now, maxRetries: maxRetries}
}

// checkPreconditions validates the common SCHEDULED/ACTIVE/COMPLETED gates
// shared by place_bid and buy_now (spec §4.5).
func checkPreconditions(item auction.Item, now time.Time) error {
	switch item.Status {
	case auction.StatusScheduled:
		return auction.ErrNotStarted
	case auction.StatusCompleted:
		return auction.ErrAlreadyEnded
	case auction.StatusActive:
		if now.Before(item.StartTime) {
			return auction.ErrNotStarted
		}
		if now.After(item.EndTime) {
			return auction.ErrAlreadyEnded
		}
		return nil
	default:
		return auction.ErrInvalidStatus
	}
}

// PlaceBid validates bidAmount against the item's current snapshot and
// appends either a BidPlaced or a buy-now-collapse BuyNowExecuted event,
// retrying on version conflict.
func (h *Handlers) PlaceBid(ctx context.Context, itemID, bidderID, bidAmount int64) (auction.Event, error) {
	for attempt := 0; attempt < h.maxRetries; attempt++ {
		item, err := h.store.Snapshot(ctx, itemID)
		if err != nil {
			return auction.Event{}, fmt.Errorf("read item snapshot: %w", err)
		}

		now := h.now()
		if err := checkPreconditions(item, now); err != nil {
			return auction.Event{}, err
		}
		if bidAmount <= item.CurrentPrice {
			return auction.Event{}, auction.ErrLowBid
		}

		version, err := h.store.CurrentVersion(ctx, itemID)
		if err != nil {
			return auction.Event{}, fmt.Errorf("read current version: %w", err)
		}
		nextVersion := version + 1

		var event auction.Event
		if bidAmount >= item.BuyNowPrice {
			event, err = auction.NewBuyNowExecutedEvent(itemID, nextVersion, auction.BuyNowExecuted{
				ItemID:    itemID,
				BuyerID:   bidderID,
				Price:     item.BuyNowPrice,
				Timestamp: now,
			})
		} else {
			event, err = auction.NewBidPlacedEvent(itemID, nextVersion, auction.BidPlaced{
				ItemID:    itemID,
				BidderID:  bidderID,
				BidAmount: bidAmount,
				Timestamp: now,
			})
		}
		if err != nil {
			return auction.Event{}, err
		}

		stored, err := h.coordinator.AppendAndPublish(ctx, event)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, auction.ErrVersionConflict) {
			continue
		}
		return auction.Event{}, err
	}
	return auction.Event{}, auction.ErrMaxRetriesExceeded
}

// BuyNow validates the item's current snapshot and appends a BuyNowExecuted
// event at the snapshot's buy_now_price, retrying on version conflict. The
// price is always read from the snapshot, never taken from the caller, so
// a caller cannot substitute a lower price.
func (h *Handlers) BuyNow(ctx context.Context, itemID, buyerID int64) (auction.Event, error) {
	for attempt := 0; attempt < h.maxRetries; attempt++ {
		item, err := h.store.Snapshot(ctx, itemID)
		if err != nil {
			return auction.Event{}, fmt.Errorf("read item snapshot: %w", err)
		}

		now := h.now()
		if err := checkPreconditions(item, now); err != nil {
			return auction.Event{}, err
		}

		version, err := h.store.CurrentVersion(ctx, itemID)
		if err != nil {
			return auction.Event{}, fmt.Errorf("read current version: %w", err)
		}
		nextVersion := version + 1

		event, err := auction.NewBuyNowExecutedEvent(itemID, nextVersion, auction.BuyNowExecuted{
			ItemID:    itemID,
			BuyerID:   buyerID,
			Price:     item.BuyNowPrice,
			Timestamp: now,
		})
		if err != nil {
			return auction.Event{}, err
		}

		stored, err := h.coordinator.AppendAndPublish(ctx, event)
		if err == nil {
			return stored, nil
		}
		if errors.Is(err, auction.ErrVersionConflict) {
			continue
		}
		return auction.Event{}, err
	}
	return auction.Event{}, auction.ErrMaxRetriesExceeded
}
