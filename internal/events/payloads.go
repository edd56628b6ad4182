package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event payload types shared between the domain services, the outbox and the
// gateway. Each carries enough snapshot data for subscribers to render state
// without re-querying.

// Event type names as they appear on the wire.
const (
	TypeAuctionPhaseChanged = "AuctionPhaseChanged"
	TypeLotTimerUpdated     = "LotTimerUpdated"
	TypeBidAccepted         = "BidAccepted"
	TypeLotClosed           = "LotClosed"
	TypeLotWithdrawn        = "LotWithdrawn"
	TypeAuctionExtended     = "AuctionExtended"
	TypeProxyRegistered     = "ProxyRegistered"
)

// AuctionPhaseChangedPayload is emitted on every auction lifecycle transition.
type AuctionPhaseChangedPayload struct {
	AuctionID    string    `json:"auction_id"`
	FromStatus   string    `json:"from_status"`
	ToStatus     string    `json:"to_status"`
	CurrentLotID *string   `json:"current_lot_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
}

// LotTimerUpdatedPayload is emitted whenever a lot goes live or its countdown
// deadline moves.
type LotTimerUpdatedPayload struct {
	AuctionID    string    `json:"auction_id"`
	LotID        string    `json:"lot_id"`
	LotNumber    int       `json:"lot_number"`
	Deadline     time.Time `json:"deadline"`
	TimerSeconds int       `json:"timer_seconds"`
	Extended     bool      `json:"extended"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BidAcceptedPayload is emitted for every accepted bid, including auto-bids
// generated by the proxy engine.
type BidAcceptedPayload struct {
	AuctionID string          `json:"auction_id"`
	LotID     string          `json:"lot_id"`
	BidID     string          `json:"bid_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"kind"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// LotClosedPayload is emitted exactly once when a lot leaves live bidding.
type LotClosedPayload struct {
	AuctionID   string           `json:"auction_id"`
	LotID       string           `json:"lot_id"`
	LotNumber   int              `json:"lot_number"`
	Sold        bool             `json:"sold"`
	FinalAmount *decimal.Decimal `json:"final_amount,omitempty"`
	WinnerID    *string          `json:"winner_id,omitempty"`
	ReserveMet  bool             `json:"reserve_met"`
	ClosedAt    time.Time        `json:"closed_at"`
}

// LotWithdrawnPayload is emitted when a lot is withdrawn, including the bulk
// withdrawal that follows an auction cancellation.
type LotWithdrawnPayload struct {
	AuctionID   string    `json:"auction_id"`
	LotID       string    `json:"lot_id"`
	LotNumber   int       `json:"lot_number"`
	Reason      string    `json:"reason,omitempty"`
	WithdrawnAt time.Time `json:"withdrawn_at"`
}

// AuctionExtendedPayload is emitted when an operator extends the auction window.
type AuctionExtendedPayload struct {
	AuctionID  string    `json:"auction_id"`
	Minutes    int       `json:"minutes"`
	Reason     string    `json:"reason"`
	NewEndTime time.Time `json:"new_end_time"`
	ExtendedAt time.Time `json:"extended_at"`
}

// ProxyRegisteredPayload is emitted when a proxy ceiling is registered.
type ProxyRegisteredPayload struct {
	AuctionID    string          `json:"auction_id"`
	LotID        string          `json:"lot_id"`
	BidderID     string          `json:"bidder_id"`
	Ceiling      decimal.Decimal `json:"ceiling"`
	RegisteredAt time.Time       `json:"registered_at"`
}
