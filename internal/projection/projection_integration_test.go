//go:build integration

package projection_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftline/bidengine/internal/auction"
	"github.com/riftline/bidengine/internal/broker"
	"github.com/riftline/bidengine/internal/cache"
	"github.com/riftline/bidengine/internal/database"
	"github.com/riftline/bidengine/internal/projection"
	"github.com/riftline/bidengine/internal/testhelpers"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ackingDelivery(event auction.Event) (broker.Delivery, chan bool) {
	acked := make(chan bool, 1)
	return broker.Delivery{
		Event: event,
		Ack:   func() error { acked <- true; return nil },
		Nack:  func(bool) error { acked <- false; return nil },
	}, acked
}

func TestProjector_BidPlaced_AdvancesCurrentPriceAndInsertsBid(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../migrations")
	defer testDB.Close()

	itemID := testhelpers.SeedItem(t, testDB.Pool, auction.Item{
		Title: "Watch", StartingPrice: 100, CurrentPrice: 100, BuyNowPrice: 1000,
		StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour),
		Seller: "alice", Status: auction.StatusActive,
	})

	txm := database.NewPostgresTransactionManager(testDB.Pool, 3*time.Second)
	p := projection.New(testDB.Pool, txm, cache.NoopCache{}, testLogger())

	event, err := auction.NewBidPlacedEvent(itemID, 1, auction.BidPlaced{
		ItemID: itemID, BidderID: 7, BidAmount: 250, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	event.ID = 1

	deliveries := make(chan broker.Delivery, 1)
	delivery, acked := ackingDelivery(event)
	deliveries <- delivery
	close(deliveries)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Run(ctx, deliveries)

	assert.True(t, <-acked)

	var currentPrice int64
	require.NoError(t, testDB.Pool.QueryRow(context.Background(),
		`SELECT current_price FROM items WHERE id = $1`, itemID).Scan(&currentPrice))
	assert.Equal(t, int64(250), currentPrice)

	var bidCount int
	require.NoError(t, testDB.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM bids WHERE item_id = $1`, itemID).Scan(&bidCount))
	assert.Equal(t, 1, bidCount)
}

func TestProjector_BidPlaced_LowerBidIsNoOp(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../migrations")
	defer testDB.Close()

	itemID := testhelpers.SeedItem(t, testDB.Pool, auction.Item{
		Title: "Watch", StartingPrice: 100, CurrentPrice: 500, BuyNowPrice: 1000,
		StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour),
		Seller: "alice", Status: auction.StatusActive,
	})

	txm := database.NewPostgresTransactionManager(testDB.Pool, 3*time.Second)
	p := projection.New(testDB.Pool, txm, cache.NoopCache{}, testLogger())

	event, err := auction.NewBidPlacedEvent(itemID, 1, auction.BidPlaced{
		ItemID: itemID, BidderID: 7, BidAmount: 300, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	event.ID = 2

	deliveries := make(chan broker.Delivery, 1)
	delivery, acked := ackingDelivery(event)
	deliveries <- delivery
	close(deliveries)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p.Run(ctx, deliveries)

	assert.True(t, <-acked)

	var currentPrice int64
	require.NoError(t, testDB.Pool.QueryRow(context.Background(),
		`SELECT current_price FROM items WHERE id = $1`, itemID).Scan(&currentPrice))
	assert.Equal(t, int64(500), currentPrice)

	var bidCount int
	require.NoError(t, testDB.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM bids WHERE item_id = $1`, itemID).Scan(&bidCount))
	assert.Equal(t, 0, bidCount)
}

func TestProjector_RedeliveryOfSameEventIDIsIdempotent(t *testing.T) {
	testDB := testhelpers.NewTestDatabase(t, "../../migrations")
	defer testDB.Close()

	itemID := testhelpers.SeedItem(t, testDB.Pool, auction.Item{
		Title: "Watch", StartingPrice: 100, CurrentPrice: 100, BuyNowPrice: 1000,
		StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour),
		Seller: "alice", Status: auction.StatusActive,
	})

	txm := database.NewPostgresTransactionManager(testDB.Pool, 3*time.Second)
	p := projection.New(testDB.Pool, txm, cache.NoopCache{}, testLogger())

	event, err := auction.NewBidPlacedEvent(itemID, 1, auction.BidPlaced{
		ItemID: itemID, BidderID: 7, BidAmount: 250, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	event.ID = 3

	for i := 0; i < 2; i++ {
		deliveries := make(chan broker.Delivery, 1)
		delivery, acked := ackingDelivery(event)
		deliveries <- delivery
		close(deliveries)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		p.Run(ctx, deliveries)
		cancel()
		assert.True(t, <-acked)
	}

	var bidCount int
	require.NoError(t, testDB.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM bids WHERE item_id = $1`, itemID).Scan(&bidCount))
	assert.Equal(t, 1, bidCount, "redelivery must not insert a second bid row")
}
