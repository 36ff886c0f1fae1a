package auction

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the authoritative, immutable record appended to the event log.
// (aggregate_id, version) is the optimistic-concurrency gate: the event
// store enforces uniqueness on that pair.
type Event struct {
	ID          int64           `json:"id"`
	AggregateID int64           `json:"aggregate_id"`
	EventType   EventType       `json:"event_type"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int64           `json:"version"`
}

// NewBidPlacedEvent builds the event envelope for a BidPlaced payload.
func NewBidPlacedEvent(itemID, version int64, payload BidPlaced) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal BidPlaced payload: %w", err)
	}
	return Event{
		AggregateID: itemID,
		EventType:   EventTypeBidPlaced,
		Data:        data,
		Timestamp:   payload.Timestamp,
		Version:     version,
	}, nil
}

// NewBuyNowExecutedEvent builds the event envelope for a BuyNowExecuted payload.
func NewBuyNowExecutedEvent(itemID, version int64, payload BuyNowExecuted) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal BuyNowExecuted payload: %w", err)
	}
	return Event{
		AggregateID: itemID,
		EventType:   EventTypeBuyNowExecuted,
		Data:        data,
		Timestamp:   payload.Timestamp,
		Version:     version,
	}, nil
}

// DecodeBidPlaced unmarshals the envelope's data into a BidPlaced payload.
// Callers must check EventType == EventTypeBidPlaced first.
func (e Event) DecodeBidPlaced() (BidPlaced, error) {
	var p BidPlaced
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return BidPlaced{}, fmt.Errorf("decode BidPlaced payload: %w", err)
	}
	return p, nil
}

// DecodeBuyNowExecuted unmarshals the envelope's data into a BuyNowExecuted
// payload. Callers must check EventType == EventTypeBuyNowExecuted first.
func (e Event) DecodeBuyNowExecuted() (BuyNowExecuted, error) {
	var p BuyNowExecuted
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return BuyNowExecuted{}, fmt.Errorf("decode BuyNowExecuted payload: %w", err)
	}
	return p, nil
}
