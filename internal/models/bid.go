package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BidKind defines how a bid entered the ledger.
type BidKind string

const (
	BidKindRegular BidKind = "REGULAR"
	BidKindPreBid  BidKind = "PRE_BID"
	BidKindProxy   BidKind = "PROXY"
	BidKindAuto    BidKind = "AUTO"
)

// BidStatus defines the ledger status of a bid. Bids are immutable once
// accepted; only the status transitions.
type BidStatus string

const (
	BidStatusActive    BidStatus = "ACTIVE"
	BidStatusOutbid    BidStatus = "OUTBID"
	BidStatusWon       BidStatus = "WON"
	BidStatusCancelled BidStatus = "CANCELLED"
)

// Bid represents one accepted bid on a lot.
type Bid struct {
	ID       uuid.UUID       `json:"id"`
	LotID    uuid.UUID       `json:"lot_id"`
	BidderID uuid.UUID       `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	Kind     BidKind         `json:"kind"`
	Status   BidStatus       `json:"status"`
	PlacedAt time.Time       `json:"placed_at"`
}
