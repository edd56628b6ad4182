package bid

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/events"
	"github.com/motorlot/motorlot/internal/lot"
	"github.com/motorlot/motorlot/internal/models"
)

// Ledger is the append-only bid record for all lots. It arbitrates competing
// bids under the per-lot lock and drives the proxy engine on every acceptance.
type Ledger struct {
	store       Store
	eligibility EligibilityChecker
	audit       AuditLogger
	clock       clockwork.Clock
	engine      *ProxyEngine
}

// NewLedger creates a new bid Ledger.
func NewLedger(store Store, eligibility EligibilityChecker, audit AuditLogger, clock clockwork.Clock) *Ledger {
	l := &Ledger{
		store:       store,
		eligibility: eligibility,
		audit:       audit,
		clock:       clock,
	}
	l.engine = &ProxyEngine{ledger: l}
	return l
}

// PlaceBid validates and records a bid. Exactly one bid can be accepted at a
// given instant per lot: the store serializes acceptance, so two racing bids
// resolve deterministically to one acceptance and one rejection.
func (ld *Ledger) PlaceBid(ctx context.Context, req PlaceBidRequest) (*BidResult, error) {
	if !req.Amount.IsPositive() {
		return nil, auctionerrors.Validationf("bid amount must be positive")
	}
	switch req.Kind {
	case models.BidKindRegular, models.BidKindPreBid, models.BidKindProxy, models.BidKindAuto:
	default:
		return nil, auctionerrors.Validationf("unknown bid kind %q", req.Kind)
	}

	ok, err := ld.eligibility.CanBid(ctx, req.BidderID, req.LotID)
	if err != nil {
		return nil, fmt.Errorf("eligibility check failed: %w", err)
	}
	if !ok {
		return nil, auctionerrors.ErrBidderIneligible
	}

	var result *BidResult
	err = ld.store.WithLot(ctx, req.LotID, func(ctx context.Context, tx Txn) error {
		now := ld.clock.Now().UTC()
		l := tx.Lot()
		auc := tx.Auction()

		if err := checkBiddingWindow(l, auc, req.Kind, now); err != nil {
			return err
		}
		if l.HeldBy(req.BidderID) {
			return auctionerrors.ErrSelfOutbid
		}
		required := requiredFloor(l, auc)
		if req.Amount.LessThan(required) {
			return fmt.Errorf("%w: need at least %s", auctionerrors.ErrBidTooLow, required)
		}

		b := &models.Bid{
			ID:       uuid.New(),
			LotID:    l.ID,
			BidderID: req.BidderID,
			Amount:   req.Amount,
			Kind:     req.Kind,
			Status:   models.BidStatusActive,
			PlacedAt: now,
		}
		if err := ld.accept(ctx, tx, b, now); err != nil {
			return err
		}

		autoBids, err := ld.engine.resolve(ctx, tx, now)
		if err != nil {
			return err
		}
		result = &BidResult{Bid: b, Lot: tx.Lot(), AutoBids: autoBids}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ld.audit.Record(ctx, "bid", result.Bid.ID, "", string(models.BidStatusActive))
	log.Info().
		Str("lot_id", req.LotID.String()).
		Str("bidder_id", req.BidderID.String()).
		Str("amount", req.Amount.String()).
		Str("kind", string(req.Kind)).
		Int("auto_bids", len(result.AutoBids)).
		Msg("bid accepted")
	return result, nil
}

// checkBiddingWindow enforces which bid kinds are legal in the lot's current
// condition. Pre-bids are only valid before the lot goes live and while the
// parent auction's pre-bid window is open.
func checkBiddingWindow(l *models.Lot, auc *models.Auction, kind models.BidKind, now time.Time) error {
	if kind == models.BidKindPreBid {
		if l.Condition != models.LotPreAuction && l.Condition != models.LotReadyForAuction {
			return auctionerrors.ErrLotNotLive
		}
		if !auc.PreBiddingOpen(now) {
			return auctionerrors.ErrPreBidClosed
		}
		return nil
	}
	if l.Condition != models.LotLiveAuction {
		return auctionerrors.ErrLotNotLive
	}
	return nil
}

// accept commits a bid: outbids the prior high bid, appends the new bid as
// the active high, refreshes the lot snapshot and resets the live countdown.
func (ld *Ledger) accept(ctx context.Context, tx Txn, b *models.Bid, now time.Time) error {
	l := tx.Lot()
	auc := tx.Auction()

	if l.HighBidID != nil {
		if err := tx.SetBidStatus(ctx, *l.HighBidID, models.BidStatusOutbid); err != nil {
			return err
		}
	}
	if err := tx.InsertBid(ctx, b); err != nil {
		return err
	}

	l.HighBidAmount = &b.Amount
	l.HighBidderID = &b.BidderID
	l.HighBidID = &b.ID
	if b.Kind == models.BidKindPreBid {
		l.HasPreBids = true
		// The first accepted pre-bid promotes the lot out of PreAuction even
		// before the parent auction enters Ready.
		if err := lot.OpenPreBidding(l); err != nil {
			return err
		}
	}
	l.UpdatedAt = now

	if extended := lot.ExtendDeadline(l, auc, now); extended {
		auc.ExtendedCount++
		auc.UpdatedAt = now
		if err := tx.SaveAuction(ctx, auc); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, events.TypeLotTimerUpdated, events.LotTimerUpdatedPayload{
			AuctionID:    auc.ID.String(),
			LotID:        l.ID.String(),
			LotNumber:    l.LotNumber,
			Deadline:     *l.TimerDeadline,
			TimerSeconds: auc.Settings.TimerSeconds,
			Extended:     true,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}
	}

	if err := tx.SaveLot(ctx, l); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, events.TypeBidAccepted, events.BidAcceptedPayload{
		AuctionID: auc.ID.String(),
		LotID:     l.ID.String(),
		BidID:     b.ID.String(),
		BidderID:  b.BidderID.String(),
		Amount:    b.Amount,
		Kind:      string(b.Kind),
		PlacedAt:  now,
	})
}
