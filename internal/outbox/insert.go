package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// InsertTx stages an event inside the caller's domain transaction. The insert
// trigger NOTIFYs the listener, so relaying usually starts before the poll
// interval elapses.
func InsertTx(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (id, auction_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), auctionID, eventType, body, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event %s: %w", eventType, err)
	}
	return nil
}
