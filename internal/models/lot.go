package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotCondition defines the per-lot state machine condition.
type LotCondition string

const (
	LotPreAuction      LotCondition = "PRE_AUCTION"
	LotReadyForAuction LotCondition = "READY_FOR_AUCTION"
	LotLiveAuction     LotCondition = "LIVE_AUCTION"
	LotSold            LotCondition = "SOLD"
	LotUnsold          LotCondition = "UNSOLD"
	LotAwaitingPayment LotCondition = "AWAITING_PAYMENT"
	LotReadyForPickup  LotCondition = "READY_FOR_PICKUP"
	LotCompleted       LotCondition = "COMPLETED"
	LotWithdrawn       LotCondition = "WITHDRAWN"
)

// Closed reports whether the lot has left live bidding for good.
func (c LotCondition) Closed() bool {
	switch c {
	case LotSold, LotUnsold, LotAwaitingPayment, LotReadyForPickup, LotCompleted, LotWithdrawn:
		return true
	}
	return false
}

// Open reports whether the lot can still become (or is) the auction's current lot.
func (c LotCondition) Open() bool {
	return c == LotPreAuction || c == LotReadyForAuction || c == LotLiveAuction
}

// Lot represents a single vehicle entered into one auction.
type Lot struct {
	ID            uuid.UUID        `json:"id"`
	AuctionID     uuid.UUID        `json:"auction_id"`
	LotNumber     int              `json:"lot_number"` // unique within the auction
	Make          string           `json:"make"`
	Model         string           `json:"model"`
	Year          int              `json:"year"`
	VIN           string           `json:"vin"`
	Condition     LotCondition     `json:"condition"`
	StartPrice    decimal.Decimal  `json:"start_price"`
	ReservePrice  *decimal.Decimal `json:"reserve_price,omitempty"`
	HighBidAmount *decimal.Decimal `json:"high_bid_amount,omitempty"`
	HighBidderID  *uuid.UUID       `json:"high_bidder_id,omitempty"`
	HighBidID     *uuid.UUID       `json:"high_bid_id,omitempty"`
	HasPreBids    bool             `json:"has_pre_bids"`
	Sold          bool             `json:"sold"`
	TimerDeadline *time.Time       `json:"timer_deadline,omitempty"` // set only while live
	WentLiveAt    *time.Time       `json:"went_live_at,omitempty"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ReserveMet reports whether the current high bid satisfies the reserve price.
// A lot without a reserve always meets it.
func (l *Lot) ReserveMet() bool {
	if l.ReservePrice == nil {
		return true
	}
	if l.HighBidAmount == nil {
		return false
	}
	return l.HighBidAmount.GreaterThanOrEqual(*l.ReservePrice)
}

// HeldBy reports whether bidderID currently holds the high bid.
func (l *Lot) HeldBy(bidderID uuid.UUID) bool {
	return l.HighBidderID != nil && *l.HighBidderID == bidderID
}
