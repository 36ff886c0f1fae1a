// Package auction holds the domain types shared by the command, projection,
// and scheduler components: the Item/Bid projections, the event envelope,
// and the AuctionEvent payload variants.
package auction

import "time"

// ItemStatus is the lifecycle state of an auction item.
type ItemStatus string

const (
	StatusScheduled ItemStatus = "SCHEDULED"
	StatusActive    ItemStatus = "ACTIVE"
	StatusCompleted ItemStatus = "COMPLETED"
)

// Item is the query-side projection of an auction item.
type Item struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	StartingPrice int64      `json:"starting_price"`
	CurrentPrice  int64      `json:"current_price"`
	BuyNowPrice   int64      `json:"buy_now_price"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Seller        string     `json:"seller"`
	Status        ItemStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AuctionState is the narrower item view served by GET /auction/{id}: it
// omits BuyNowPrice, which GET /items/{id} includes (spec Open Question 4).
type AuctionState struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	StartingPrice int64      `json:"starting_price"`
	CurrentPrice  int64      `json:"current_price"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Seller        string     `json:"seller"`
	Status        ItemStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Bid is the query-side projection of a single bid (or a buy-now outcome
// recorded as a terminal bid row).
type Bid struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	BidderID  int64     `json:"bidder_id"`
	BidAmount int64     `json:"bid_amount"`
	BidTime   time.Time `json:"bid_time"`
}

// EventType discriminates the AuctionEvent payload variants.
type EventType string

const (
	EventTypeBidPlaced     EventType = "BidPlaced"
	EventTypeBuyNowExecuted EventType = "BuyNowExecuted"
)

// BidPlaced is emitted when a bid is accepted below the buy-now price.
type BidPlaced struct {
	ItemID    int64     `json:"item_id"`
	BidderID  int64     `json:"bidder_id"`
	BidAmount int64     `json:"bid_amount"`
	Timestamp time.Time `json:"timestamp"`
}

// BuyNowExecuted is emitted when a bid collapses the auction to an immediate
// purchase, or when a buy-now command is accepted directly.
type BuyNowExecuted struct {
	ItemID    int64     `json:"item_id"`
	BuyerID   int64     `json:"buyer_id"`
	Price     int64     `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
