package gateway

import (
	"encoding/json"
	"time"
)

// AuctionEvent is the wire format pushed to WebSocket clients. Data carries
// the original outbox payload untouched.
type AuctionEvent struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}
