package bid

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/events"
	"github.com/motorlot/motorlot/internal/models"
)

// ProxyEngine maintains standing maximum-bid intents and answers every raise
// of a lot's high bid with counter-bids up to each bidder's ceiling.
type ProxyEngine struct {
	ledger *Ledger
}

// RegisterProxy records a standing ceiling for a bidder on a lot. A bidder
// holds at most one open intent per lot; registering again replaces it. On a
// live lot the cascade runs immediately, so a ceiling that can beat the
// current high produces an opening auto-bid at once.
func (ld *Ledger) RegisterProxy(ctx context.Context, lotID, bidderID uuid.UUID, ceiling decimal.Decimal) (*models.ProxyBidIntent, error) {
	if !ceiling.IsPositive() {
		return nil, auctionerrors.Validationf("proxy ceiling must be positive")
	}

	ok, err := ld.eligibility.CanBid(ctx, bidderID, lotID)
	if err != nil {
		return nil, fmt.Errorf("eligibility check failed: %w", err)
	}
	if !ok {
		return nil, auctionerrors.ErrBidderIneligible
	}

	var intent *models.ProxyBidIntent
	err = ld.store.WithLot(ctx, lotID, func(ctx context.Context, tx Txn) error {
		now := ld.clock.Now().UTC()
		l := tx.Lot()
		auc := tx.Auction()

		if !l.Condition.Open() {
			return auctionerrors.StateConflictf("lot %d is already closed", l.LotNumber)
		}
		if ceiling.LessThan(requiredFloor(l, auc)) {
			return fmt.Errorf("%w: ceiling below minimum bid %s", auctionerrors.ErrBidTooLow, requiredFloor(l, auc))
		}

		existing, err := tx.ActiveIntents(ctx)
		if err != nil {
			return err
		}
		for _, in := range existing {
			if in.BidderID == bidderID {
				retire(in, now)
				if err := tx.SaveIntent(ctx, in); err != nil {
					return err
				}
			}
		}

		intent = &models.ProxyBidIntent{
			ID:           uuid.New(),
			LotID:        l.ID,
			BidderID:     bidderID,
			Ceiling:      ceiling,
			Active:       true,
			RegisteredAt: now,
		}
		if err := tx.InsertIntent(ctx, intent); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, events.TypeProxyRegistered, events.ProxyRegisteredPayload{
			AuctionID:    auc.ID.String(),
			LotID:        l.ID.String(),
			BidderID:     bidderID.String(),
			Ceiling:      ceiling,
			RegisteredAt: now,
		}); err != nil {
			return err
		}

		_, err = ld.engine.resolve(ctx, tx, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("lot_id", lotID.String()).
		Str("bidder_id", bidderID.String()).
		Str("ceiling", ceiling.String()).
		Msg("proxy intent registered")
	return intent, nil
}

// ResolveLot runs the cascade without a triggering bid, used when a lot with
// standing intents goes live. Callers hold no lot lock; one is taken here.
func (ld *Ledger) ResolveLot(ctx context.Context, lotID uuid.UUID) error {
	return ld.store.WithLot(ctx, lotID, func(ctx context.Context, tx Txn) error {
		autoBids, err := ld.engine.resolve(ctx, tx, ld.clock.Now().UTC())
		if err != nil {
			return err
		}
		if len(autoBids) > 0 {
			log.Info().
				Str("lot_id", lotID.String()).
				Int("auto_bids", len(autoBids)).
				Msg("standing proxy intents fired at go-live")
		}
		return nil
	})
}

// resolve runs the counter-bid cascade after the lot's high bid moved. Each
// round selects, among active intents not held by the current high bidder
// whose ceiling strictly exceeds the required floor, the one with the highest
// ceiling (earliest registration breaking ties) and emits an auto-bid at that
// floor. Intents that can no longer defend a counter are retired, never
// deleted. Each emitted bid strictly raises the high bid and ceilings are
// finite, so the cascade terminates; a step bound guards against logic errors.
func (e *ProxyEngine) resolve(ctx context.Context, tx Txn, now time.Time) ([]*models.Bid, error) {
	l := tx.Lot()
	auc := tx.Auction()
	if l.Condition != models.LotLiveAuction {
		return nil, nil
	}

	intents, err := tx.ActiveIntents(ctx)
	if err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, nil
	}

	maxSteps := cascadeBound(l, auc, intents)
	var emitted []*models.Bid
	for {
		required := requiredFloor(l, auc)

		var best *models.ProxyBidIntent
		for _, in := range intents {
			if !in.Active || l.HeldBy(in.BidderID) {
				continue
			}
			if retirable(in, required) {
				retire(in, now)
				if err := tx.SaveIntent(ctx, in); err != nil {
					return nil, err
				}
				continue
			}
			if best == nil || in.Ceiling.GreaterThan(best.Ceiling) ||
				(in.Ceiling.Equal(best.Ceiling) && in.RegisteredAt.Before(best.RegisteredAt)) {
				best = in
			}
		}
		if best == nil {
			return emitted, nil
		}
		if len(emitted) >= maxSteps {
			log.Error().
				Str("lot_id", l.ID.String()).
				Int("steps", len(emitted)).
				Msg("proxy cascade exceeded step bound; aborting")
			return emitted, nil
		}

		amount := required
		if best.Ceiling.LessThan(amount) {
			amount = best.Ceiling
		}
		b := &models.Bid{
			ID:       uuid.New(),
			LotID:    l.ID,
			BidderID: best.BidderID,
			Amount:   amount,
			Kind:     models.BidKindAuto,
			Status:   models.BidStatusActive,
			PlacedAt: now,
		}
		if err := e.ledger.accept(ctx, tx, b, now); err != nil {
			return nil, err
		}
		if best.OriginatingBid == nil {
			best.OriginatingBid = &b.ID
			if err := tx.SaveIntent(ctx, best); err != nil {
				return nil, err
			}
		}
		emitted = append(emitted, b)
	}
}

// cascadeBound computes the largest number of raises the registered ceilings
// can possibly fund, plus one slot per intent. The cascade converging past it
// indicates a logic error, not a legitimate bidding war.
func cascadeBound(l *models.Lot, auc *models.Auction, intents []*models.ProxyBidIntent) int {
	maxCeiling := decimal.Zero
	for _, in := range intents {
		if in.Active && in.Ceiling.GreaterThan(maxCeiling) {
			maxCeiling = in.Ceiling
		}
	}
	required := requiredFloor(l, auc)
	if !maxCeiling.GreaterThan(required) || !auc.Settings.MinBidIncrement.IsPositive() {
		return len(intents)
	}
	span := maxCeiling.Sub(required).Div(auc.Settings.MinBidIncrement).Ceil().IntPart()
	return int(span) + len(intents) + 1
}
