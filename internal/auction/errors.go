package auction

import "errors"

// Domain validation errors. Each carries a stable Code for the HTTP error
// envelope (spec §6.1 / §7) via errors.As.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func newDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

var (
	// ErrNotStarted: now < start_time, or status == SCHEDULED.
	ErrNotStarted = newDomainError("NOT_STARTED", "auction has not started yet")
	// ErrAlreadyEnded: status == COMPLETED, or now > end_time.
	ErrAlreadyEnded = newDomainError("ALREADY_ENDED", "auction has already ended")
	// ErrLowBid: bid_amount <= current_price.
	ErrLowBid = newDomainError("LOW_BID", "bid amount must be higher than the current price")
	// ErrInvalidStatus: status outside {SCHEDULED, ACTIVE, COMPLETED}. Defended, not reachable.
	ErrInvalidStatus = newDomainError("INVALID_STATUS", "item is in an invalid status")
	// ErrMaxRetriesExceeded: the version-conflict retry loop exhausted its bound.
	ErrMaxRetriesExceeded = newDomainError("MAX_RETRIES_EXCEEDED", "too many concurrent bids, please retry")
)

// ErrVersionConflict is returned by the event store when the (aggregate_id,
// version) pair already exists. It is an infrastructure-level signal, not a
// DomainError: command handlers catch it and retry from a fresh snapshot
// read rather than surfacing it to the caller.
var ErrVersionConflict = errors.New("version conflict")

// AsDomainError extracts a *DomainError from err, if any.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
