package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/riftline/bidengine/internal/auction"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Snapshot(ctx context.Context, itemID int64) (auction.Item, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).(auction.Item), args.Error(1)
}

func (m *mockStore) CurrentVersion(ctx context.Context, itemID int64) (int64, error) {
	args := m.Called(ctx, itemID)
	return args.Get(0).(int64), args.Error(1)
}

type mockCoordinator struct {
	mock.Mock
}

func (m *mockCoordinator) AppendAndPublish(ctx context.Context, event auction.Event) (auction.Event, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(auction.Event), args.Error(1)
}

func activeItem() auction.Item {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return auction.Item{
		ID:            1,
		StartingPrice: 100,
		CurrentPrice:  150,
		BuyNowPrice:   500,
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		Status:        auction.StatusActive,
	}
}

func fixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

func TestPlaceBid_EmitsBidPlacedBelowBuyNow(t *testing.T) {
	item := activeItem()
	now := item.StartTime.Add(time.Minute)

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)
	store.On("CurrentVersion", mock.Anything, int64(1)).Return(int64(3), nil)

	coord := &mockCoordinator{}
	coord.On("AppendAndPublish", mock.Anything, mock.MatchedBy(func(e auction.Event) bool {
		return e.EventType == auction.EventTypeBidPlaced && e.Version == 4
	})).Return(auction.Event{ID: 99, Version: 4, EventType: auction.EventTypeBidPlaced}, nil)

	h := New(store, coord, fixedClock(now), 0)
	event, err := h.PlaceBid(context.Background(), 1, 7, 200)

	require.NoError(t, err)
	assert.Equal(t, auction.EventTypeBidPlaced, event.EventType)
	coord.AssertExpectations(t)
}

func TestPlaceBid_CollapsesToBuyNowAtOrAboveThreshold(t *testing.T) {
	item := activeItem()
	now := item.StartTime.Add(time.Minute)

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)
	store.On("CurrentVersion", mock.Anything, int64(1)).Return(int64(3), nil)

	coord := &mockCoordinator{}
	coord.On("AppendAndPublish", mock.Anything, mock.MatchedBy(func(e auction.Event) bool {
		return e.EventType == auction.EventTypeBuyNowExecuted
	})).Return(auction.Event{ID: 99, Version: 4, EventType: auction.EventTypeBuyNowExecuted}, nil)

	h := New(store, coord, fixedClock(now), 0)
	event, err := h.PlaceBid(context.Background(), 1, 7, item.BuyNowPrice)

	require.NoError(t, err)
	assert.Equal(t, auction.EventTypeBuyNowExecuted, event.EventType)
}

func TestPlaceBid_RejectsLowBid(t *testing.T) {
	item := activeItem()
	now := item.StartTime.Add(time.Minute)

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)

	h := New(store, &mockCoordinator{}, fixedClock(now), 0)
	_, err := h.PlaceBid(context.Background(), 1, 7, item.CurrentPrice)

	assert.ErrorIs(t, err, auction.ErrLowBid)
}

func TestPlaceBid_RejectsNotStarted(t *testing.T) {
	item := activeItem()
	item.Status = auction.StatusScheduled

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)

	h := New(store, &mockCoordinator{}, fixedClock(time.Now()), 0)
	_, err := h.PlaceBid(context.Background(), 1, 7, 999)

	assert.ErrorIs(t, err, auction.ErrNotStarted)
}

func TestPlaceBid_RejectsAlreadyEnded(t *testing.T) {
	item := activeItem()
	item.Status = auction.StatusCompleted

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)

	h := New(store, &mockCoordinator{}, fixedClock(time.Now()), 0)
	_, err := h.PlaceBid(context.Background(), 1, 7, 999)

	assert.ErrorIs(t, err, auction.ErrAlreadyEnded)
}

func TestPlaceBid_RetriesOnVersionConflictThenSucceeds(t *testing.T) {
	item := activeItem()
	now := item.StartTime.Add(time.Minute)

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)
	store.On("CurrentVersion", mock.Anything, int64(1)).Return(int64(3), nil)

	coord := &mockCoordinator{}
	coord.On("AppendAndPublish", mock.Anything, mock.Anything).
		Return(auction.Event{}, auction.ErrVersionConflict).Once()
	coord.On("AppendAndPublish", mock.Anything, mock.Anything).
		Return(auction.Event{ID: 1, Version: 4}, nil).Once()

	h := New(store, coord, fixedClock(now), 0)
	_, err := h.PlaceBid(context.Background(), 1, 7, 200)

	require.NoError(t, err)
	coord.AssertNumberOfCalls(t, "AppendAndPublish", 2)
}

func TestPlaceBid_ExhaustsRetriesReturnsMaxRetriesExceeded(t *testing.T) {
	item := activeItem()
	now := item.StartTime.Add(time.Minute)

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)
	store.On("CurrentVersion", mock.Anything, int64(1)).Return(int64(3), nil)

	coord := &mockCoordinator{}
	coord.On("AppendAndPublish", mock.Anything, mock.Anything).
		Return(auction.Event{}, auction.ErrVersionConflict)

	h := New(store, coord, fixedClock(now), 0)
	_, err := h.PlaceBid(context.Background(), 1, 7, 200)

	assert.ErrorIs(t, err, auction.ErrMaxRetriesExceeded)
	coord.AssertNumberOfCalls(t, "AppendAndPublish", defaultMaxRetries)
}

func TestBuyNow_UsesSnapshotPriceNotCaller(t *testing.T) {
	item := activeItem()
	now := item.StartTime.Add(time.Minute)

	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(item, nil)
	store.On("CurrentVersion", mock.Anything, int64(1)).Return(int64(3), nil)

	coord := &mockCoordinator{}
	coord.On("AppendAndPublish", mock.Anything, mock.MatchedBy(func(e auction.Event) bool {
		payload, err := e.DecodeBuyNowExecuted()
		return err == nil && payload.Price == item.BuyNowPrice
	})).Return(auction.Event{ID: 1, Version: 4}, nil)

	h := New(store, coord, fixedClock(now), 0)
	_, err := h.BuyNow(context.Background(), 1, 42)

	require.NoError(t, err)
}

func TestBuyNow_PropagatesInfraErrorFromSnapshot(t *testing.T) {
	store := &mockStore{}
	store.On("Snapshot", mock.Anything, int64(1)).Return(auction.Item{}, errors.New("connection reset"))

	h := New(store, &mockCoordinator{}, fixedClock(time.Now()), 0)
	_, err := h.BuyNow(context.Background(), 1, 42)

	require.Error(t, err)
	_, isDomain := auction.AsDomainError(err)
	assert.False(t, isDomain)
}
