// Package httpapi exposes the command and query surfaces over a plain JSON
// REST API (spec §6.1) via the standard library's pattern-based ServeMux.
// This is a deliberate deviation from the teacher's Connect-RPC/protobuf
// transport: the specification's wire contract is a literal HTTP method
// and path table, not an RPC schema, so net/http is the right fit here —
// see DESIGN.md for the full justification.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/riftline/bidengine/internal/auction"
	"github.com/riftline/bidengine/internal/coordinator"
	"github.com/riftline/bidengine/internal/query"
)

const maxBodyBytes = 1 << 20 // 1 MiB; the command bodies are tiny JSON objects

// CommandHandlers is the subset of command.Handlers the API depends on.
type CommandHandlers interface {
	PlaceBid(ctx context.Context, itemID, bidderID, bidAmount int64) (auction.Event, error)
	BuyNow(ctx context.Context, itemID, buyerID int64) (auction.Event, error)
}

// Queries is the subset of query.Queries the API depends on.
type Queries interface {
	GetItem(ctx context.Context, itemID int64) (auction.Item, error)
	GetAuctionState(ctx context.Context, itemID int64) (auction.AuctionState, error)
	ListItems(ctx context.Context) ([]auction.Item, error)
	GetItemBids(ctx context.Context, itemID int64) ([]auction.Bid, error)
	GetHighestBid(ctx context.Context, itemID int64) (*int64, error)
}

var _ Queries = (*query.Queries)(nil)

// API wires command and query handlers onto the HTTP surface.
type API struct {
	commands CommandHandlers
	queries  Queries
	log      *slog.Logger
}

// New creates an API.
func New(commands CommandHandlers, queries Queries, log *slog.Logger) *API {
	return &API{commands: commands, queries: queries, log: log}
}

// Routes returns the configured mux, wrapped in CORS and body-size limiting
// middleware.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /bid", a.handlePlaceBid)
	mux.HandleFunc("POST /buy-now", a.handleBuyNow)
	mux.HandleFunc("GET /auction/{id}", a.handleGetAuctionState)
	mux.HandleFunc("GET /auction/{id}/highest-bid", a.handleHighestBid)
	mux.HandleFunc("GET /auction/{id}/bids", a.handleItemBids)
	mux.HandleFunc("GET /items", a.handleListItems)
	mux.HandleFunc("GET /items/{id}", a.handleGetItem)
	mux.HandleFunc("GET /items/{id}/bids", a.handleItemBids)

	return withCORS(withBodyLimit(mux, maxBodyBytes))
}

type placeBidRequest struct {
	ItemID    int64 `json:"item_id"`
	BidderID  int64 `json:"bidder_id"`
	BidAmount int64 `json:"bid_amount"`
}

type placeBidResponse struct {
	Message      string `json:"message"`
	CurrentPrice int64  `json:"current_price"`
	BidAmount    int64  `json:"bid_amount"`
}

func (a *API) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	event, err := a.commands.PlaceBid(r.Context(), req.ItemID, req.BidderID, req.BidAmount)
	if err != nil {
		a.writeCommandError(w, err)
		return
	}

	currentPrice := req.BidAmount
	if event.EventType == auction.EventTypeBuyNowExecuted {
		if payload, derr := event.DecodeBuyNowExecuted(); derr == nil {
			currentPrice = payload.Price
		}
	}

	writeJSON(w, http.StatusOK, placeBidResponse{
		Message:      "bid accepted",
		CurrentPrice: currentPrice,
		BidAmount:    req.BidAmount,
	})
}

type buyNowRequest struct {
	ItemID  int64 `json:"item_id"`
	BuyerID int64 `json:"buyer_id"`
}

func (a *API) handleBuyNow(w http.ResponseWriter, r *http.Request) {
	var req buyNowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}

	if _, err := a.commands.BuyNow(r.Context(), req.ItemID, req.BuyerID); err != nil {
		a.writeCommandError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("purchase accepted"))
}

func (a *API) handleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid item id")
		return
	}
	item, err := a.queries.GetItem(r.Context(), itemID)
	if err != nil {
		a.writeInfraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleGetAuctionState serves GET /auction/{id} with the narrower DTO that
// omits buy_now_price, distinct from handleGetItem's GET /items/{id}.
func (a *API) handleGetAuctionState(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid item id")
		return
	}
	state, err := a.queries.GetAuctionState(r.Context(), itemID)
	if err != nil {
		a.writeInfraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.queries.ListItems(r.Context())
	if err != nil {
		a.writeInfraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleItemBids(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid item id")
		return
	}
	bids, err := a.queries.GetItemBids(r.Context(), itemID)
	if err != nil {
		a.writeInfraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

type highestBidResponse struct {
	HighestBid *int64 `json:"highest_bid"`
}

func (a *API) handleHighestBid(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid item id")
		return
	}
	highest, err := a.queries.GetHighestBid(r.Context(), itemID)
	if err != nil {
		a.writeInfraError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, highestBidResponse{HighestBid: highest})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// writeCommandError maps a command-path error to the domain error envelope
// (spec §6.1/§7): DomainError becomes 400 with its stable code; a
// coordinator.PublishError (event appended, not published) becomes a 500
// with an empty code and a message saying it will take effect shortly;
// everything else becomes an opaque 500.
func (a *API) writeCommandError(w http.ResponseWriter, err error) {
	if de, ok := auction.AsDomainError(err); ok {
		writeError(w, http.StatusBadRequest, de.Code, de.Message)
		return
	}
	var perr *coordinator.PublishError
	if errors.As(err, &perr) {
		a.log.Error("event published failure after durable append", "error", err)
		writeError(w, http.StatusInternalServerError, "", "bid accepted but not yet confirmed, it will take effect shortly")
		return
	}
	a.log.Error("command failed", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func (a *API) writeInfraError(w http.ResponseWriter, err error) {
	a.log.Error("query failed", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withBodyLimit(next http.Handler, limit int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
