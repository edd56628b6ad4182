package auction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/motorlot/motorlot/internal/models"
)

// CreateAuctionRequest represents a request to create a new auction.
type CreateAuctionRequest struct {
	Name           string                 `json:"name"`
	Location       string                 `json:"location"`
	StartTimeUTC   time.Time              `json:"start_time_utc"`
	EndTimeUTC     time.Time              `json:"end_time_utc"`
	PreBidStartUTC *time.Time             `json:"pre_bid_start_utc,omitempty"`
	PreBidEndUTC   *time.Time             `json:"pre_bid_end_utc,omitempty"`
	Settings       models.AuctionSettings `json:"settings"`
}

// AddLotRequest represents a request to enter a vehicle into an auction.
type AddLotRequest struct {
	AuctionID    uuid.UUID        `json:"auction_id"`
	LotNumber    int              `json:"lot_number"`
	Make         string           `json:"make"`
	Model        string           `json:"model"`
	Year         int              `json:"year"`
	VIN          string           `json:"vin"`
	StartPrice   decimal.Decimal  `json:"start_price"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
}

// Txn is the unit of serialized per-auction work. Implementations hold the
// auction row lock for the duration of the callback, so lot hand-off can never
// run twice concurrently for the same auction.
type Txn interface {
	// Auction returns the locked auction aggregate. Mutations are persisted
	// with SaveAuction.
	Auction() *models.Auction
	// Lots returns the auction's lots ordered by lot number.
	Lots(ctx context.Context) ([]*models.Lot, error)
	SaveAuction(ctx context.Context, a *models.Auction) error
	SaveLot(ctx context.Context, l *models.Lot) error
	// SetBidStatus moves a single bid's ledger status.
	SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error
	// CancelOpenBids cancels every non-terminal bid on a lot (withdrawals).
	CancelOpenBids(ctx context.Context, lotID uuid.UUID) error
	// RetireProxyIntents retires all active proxy intents on a lot.
	RetireProxyIntents(ctx context.Context, lotID uuid.UUID, at time.Time) error
	// AppendEvent stages an outbound event in the same transaction.
	AppendEvent(ctx context.Context, eventType string, payload any) error
}

// Store defines what the auction app layer needs from persistence.
type Store interface {
	CreateAuction(ctx context.Context, a *models.Auction) error
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	CreateLot(ctx context.Context, l *models.Lot) error
	// WithAuction runs fn inside a transaction holding the auction row lock.
	WithAuction(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Txn) error) error
}

// AuditLogger records auction transitions, fire-and-forget.
type AuditLogger interface {
	Record(ctx context.Context, entity string, id uuid.UUID, from, to string)
}

// WinnerNotifier is invoked only after a lot closes Sold.
type WinnerNotifier interface {
	NotifyWinner(ctx context.Context, auctionID, lotID, bidderID uuid.UUID, amount decimal.Decimal)
}

// ProxyResolver fires standing proxy intents against a lot that just went
// live. Called after the auction transaction commits; the implementation takes
// its own lot lock, so the auction row lock is never held across both.
type ProxyResolver interface {
	ResolveLot(ctx context.Context, lotID uuid.UUID) error
}

// soldLot carries post-commit notification data out of a transaction.
type soldLot struct {
	lotID    uuid.UUID
	bidderID uuid.UUID
	amount   decimal.Decimal
}
