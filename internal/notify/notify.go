// Package notify delivers winner notifications after a lot closes sold.
// Notification happens post-commit and is fire-and-forget: the sale stands
// whether or not the notice goes out.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// WinnerNotice is the message published for each sold lot.
type WinnerNotice struct {
	AuctionID  uuid.UUID       `json:"auction_id"`
	LotID      uuid.UUID       `json:"lot_id"`
	BidderID   uuid.UUID       `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	NotifiedAt time.Time       `json:"notified_at"`
}

// NATSNotifier publishes winner notices on a plain NATS subject for the
// payment and titling pipeline to pick up.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

// NewNATSNotifier creates a notifier on the given connection.
func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	if subject == "" {
		subject = "auction.winners"
	}
	return &NATSNotifier{nc: nc, subject: subject}
}

// NotifyWinner publishes one winner notice. Errors are logged, never returned.
func (n *NATSNotifier) NotifyWinner(ctx context.Context, auctionID, lotID, bidderID uuid.UUID, amount decimal.Decimal) {
	notice := WinnerNotice{
		AuctionID:  auctionID,
		LotID:      lotID,
		BidderID:   bidderID,
		Amount:     amount,
		NotifiedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(notice)
	if err != nil {
		log.Error().Err(err).Str("lot_id", lotID.String()).Msg("failed to marshal winner notice")
		return
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		log.Error().
			Err(err).
			Str("lot_id", lotID.String()).
			Str("bidder_id", bidderID.String()).
			Msg("failed to publish winner notice")
		return
	}
	log.Info().
		Str("auction_id", auctionID.String()).
		Str("lot_id", lotID.String()).
		Str("bidder_id", bidderID.String()).
		Str("amount", amount.String()).
		Msg("winner notified")
}

// LogNotifier writes winner notices to the log only. Used when NATS is not
// configured.
type LogNotifier struct{}

func (LogNotifier) NotifyWinner(ctx context.Context, auctionID, lotID, bidderID uuid.UUID, amount decimal.Decimal) {
	log.Info().
		Str("auction_id", auctionID.String()).
		Str("lot_id", lotID.String()).
		Str("bidder_id", bidderID.String()).
		Str("amount", amount.String()).
		Msg("winner notified (log only)")
}
