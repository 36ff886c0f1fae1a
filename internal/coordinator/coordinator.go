// Package coordinator implements C4: the atomic append-and-publish step
// shared by every command. Appending and publishing are kept as two
// distinct, separately-reported failure modes (§4.4) so a command handler
// can retry on version conflict but must not retry (and so double-publish)
// on a publish failure once the event is durably appended.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/riftline/bidengine/internal/auction"
)

// AppendCloser is the subset of eventstore.EventStore the coordinator needs.
type AppendCloser interface {
	Append(ctx context.Context, event auction.Event) (auction.Event, error)
}

// Publisher is the subset of broker.Producer the coordinator needs.
type Publisher interface {
	Publish(ctx context.Context, event auction.Event) error
}

// Coordinator appends an event to the durable log and publishes it to the
// broker as one logical unit of work.
type Coordinator struct {
	store     AppendCloser
	publisher Publisher
}

// New creates a Coordinator.
func New(store AppendCloser, publisher Publisher) *Coordinator {
	return &Coordinator{store: store, publisher: publisher}
}

// AppendAndPublish appends event, returning auction.ErrVersionConflict
// unwrapped so the caller's retry loop can detect it with errors.Is. Once
// the append has succeeded, a publish failure is returned wrapped — the
// event is already durable, so the caller must not retry the whole command,
// only arrange for the publish to be retried or alerted on out of band.
func (c *Coordinator) AppendAndPublish(ctx context.Context, event auction.Event) (auction.Event, error) {
	stored, err := c.store.Append(ctx, event)
	if err != nil {
		if errors.Is(err, auction.ErrVersionConflict) {
			return auction.Event{}, auction.ErrVersionConflict
		}
		return auction.Event{}, fmt.Errorf("append event: %w", err)
	}

	if err := c.publisher.Publish(ctx, stored); err != nil {
		return stored, &PublishError{Event: stored, Cause: err}
	}

	return stored, nil
}

// PublishError reports that an event was durably appended but failed to
// publish. Event.ID is populated so the caller can log or alert on the
// specific event left unpublished.
type PublishError struct {
	Event auction.Event
	Cause error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("event %d appended but not published: %v", e.Event.ID, e.Cause)
}

func (e *PublishError) Unwrap() error { return e.Cause }
