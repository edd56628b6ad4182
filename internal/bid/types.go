package bid

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/motorlot/motorlot/internal/models"
)

// PlaceBidRequest represents one inbound bid.
type PlaceBidRequest struct {
	LotID    uuid.UUID       `json:"lot_id"`
	BidderID uuid.UUID       `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	Kind     models.BidKind  `json:"kind"`
}

// BidResult is returned on acceptance: the accepted bid, the updated lot
// snapshot, and any auto-bids the proxy engine emitted in response.
type BidResult struct {
	Bid      *models.Bid   `json:"bid"`
	Lot      *models.Lot   `json:"lot"`
	AutoBids []*models.Bid `json:"auto_bids,omitempty"`
}

// Txn is the unit of serialized per-lot work. Implementations lock the parent
// auction row first and then the lot row, so bid acceptance, timer extension
// and lot hand-off can never interleave for the same lot.
type Txn interface {
	// Lot returns the locked lot. Mutations are persisted with SaveLot.
	Lot() *models.Lot
	// Auction returns the lot's parent auction, locked alongside the lot.
	Auction() *models.Auction
	InsertBid(ctx context.Context, b *models.Bid) error
	SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error
	SaveLot(ctx context.Context, l *models.Lot) error
	SaveAuction(ctx context.Context, a *models.Auction) error
	// ActiveIntents returns the lot's active proxy intents ordered by
	// registration time.
	ActiveIntents(ctx context.Context) ([]*models.ProxyBidIntent, error)
	InsertIntent(ctx context.Context, in *models.ProxyBidIntent) error
	SaveIntent(ctx context.Context, in *models.ProxyBidIntent) error
	// AppendEvent stages an outbound event in the same transaction.
	AppendEvent(ctx context.Context, eventType string, payload any) error
}

// Store defines what the ledger needs from persistence.
type Store interface {
	// WithLot runs fn inside a transaction that serializes all bid acceptance
	// and timer-close decisions for the lot.
	WithLot(ctx context.Context, lotID uuid.UUID, fn func(ctx context.Context, tx Txn) error) error
}

// EligibilityChecker is the synchronous identity collaborator: may this
// bidder bid on this lot at all.
type EligibilityChecker interface {
	CanBid(ctx context.Context, bidderID, lotID uuid.UUID) (bool, error)
}

// AuditLogger records ledger decisions, fire-and-forget.
type AuditLogger interface {
	Record(ctx context.Context, entity string, id uuid.UUID, from, to string)
}

// requiredFloor is the minimum acceptable next bid: current high plus the
// increment, with the start price standing in as the house floor before the
// first bid.
func requiredFloor(l *models.Lot, a *models.Auction) decimal.Decimal {
	base := l.StartPrice
	if l.HighBidAmount != nil {
		base = *l.HighBidAmount
	}
	return base.Add(a.Settings.MinBidIncrement)
}

// retirable reports whether an intent can no longer produce a defensible
// counter at the given floor.
func retirable(in *models.ProxyBidIntent, required decimal.Decimal) bool {
	return !in.Ceiling.GreaterThan(required)
}

func retire(in *models.ProxyBidIntent, at time.Time) {
	in.Active = false
	in.RetiredAt = &at
}
