package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// Event is one staged outbound event. Rows are inserted by the domain
// repositories in the same transaction as the state change they describe, so
// an event exists if and only if its transition committed.
type Event struct {
	ID        uuid.UUID
	AuctionID uuid.UUID
	EventType string
	Payload   []byte
	Metadata  pqtype.NullRawMessage
	CreatedAt time.Time
	SentAt    *time.Time
}

// EventPublisher delivers a staged event to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
