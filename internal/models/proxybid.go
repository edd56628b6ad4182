package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProxyBidIntent is a standing instruction to bid on a bidder's behalf up to
// a ceiling. Exhausted intents are retired (Active=false), never deleted.
type ProxyBidIntent struct {
	ID             uuid.UUID       `json:"id"`
	LotID          uuid.UUID       `json:"lot_id"`
	BidderID       uuid.UUID       `json:"bidder_id"`
	Ceiling        decimal.Decimal `json:"ceiling"`
	OriginatingBid *uuid.UUID      `json:"originating_bid,omitempty"`
	Active         bool            `json:"active"`
	RegisteredAt   time.Time       `json:"registered_at"`
	RetiredAt      *time.Time      `json:"retired_at,omitempty"`
}
