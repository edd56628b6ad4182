package auction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/events"
	"github.com/motorlot/motorlot/internal/lot"
	"github.com/motorlot/motorlot/internal/models"
)

// App drives the auction lifecycle state machine. All state is read from and
// written back to the store inside per-auction transactions; nothing about the
// current lot is cached across calls.
type App struct {
	store    Store
	audit    AuditLogger
	notifier WinnerNotifier
	resolver ProxyResolver
	clock    clockwork.Clock
	defaults models.AuctionSettings
}

// NewApp creates a new auction App.
func NewApp(store Store, audit AuditLogger, notifier WinnerNotifier, resolver ProxyResolver, clock clockwork.Clock, defaults models.AuctionSettings) *App {
	return &App{
		store:    store,
		audit:    audit,
		notifier: notifier,
		resolver: resolver,
		clock:    clock,
		defaults: defaults,
	}
}

// CreateAuction creates a new auction in Draft.
func (a *App) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*models.Auction, error) {
	if err := a.validateCreateRequest(req); err != nil {
		return nil, err
	}

	settings := req.Settings
	if settings.TimerSeconds <= 0 {
		settings.TimerSeconds = a.defaults.TimerSeconds
	}
	if settings.MinBidIncrement.IsZero() {
		settings.MinBidIncrement = a.defaults.MinBidIncrement
	}
	if settings.MaxLotDurationMin <= 0 {
		settings.MaxLotDurationMin = a.defaults.MaxLotDurationMin
	}

	now := a.clock.Now().UTC()
	auc := &models.Auction{
		ID:             uuid.New(),
		Name:           req.Name,
		Location:       req.Location,
		Status:         models.AuctionStatusDraft,
		Settings:       settings,
		StartTimeUTC:   req.StartTimeUTC,
		EndTimeUTC:     req.EndTimeUTC,
		PreBidStartUTC: req.PreBidStartUTC,
		PreBidEndUTC:   req.PreBidEndUTC,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.store.CreateAuction(ctx, auc); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	log.Info().Str("auction_id", auc.ID.String()).Str("name", auc.Name).Msg("auction created")
	return auc, nil
}

func (a *App) validateCreateRequest(req CreateAuctionRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return auctionerrors.Validationf("auction name is required")
	}
	if req.StartTimeUTC.IsZero() || req.EndTimeUTC.IsZero() {
		return auctionerrors.Validationf("start and end times are required")
	}
	if !req.StartTimeUTC.Before(req.EndTimeUTC) {
		return auctionerrors.Validationf("start time must be before end time")
	}
	if (req.PreBidStartUTC == nil) != (req.PreBidEndUTC == nil) {
		return auctionerrors.Validationf("pre-bid window needs both start and end")
	}
	if req.PreBidStartUTC != nil {
		if !req.PreBidStartUTC.Before(*req.PreBidEndUTC) {
			return auctionerrors.Validationf("pre-bid start must be before pre-bid end")
		}
		if req.PreBidStartUTC.After(req.StartTimeUTC) {
			return auctionerrors.Validationf("pre-bid window must open before the auction starts")
		}
	}
	if req.Settings.MinBidIncrement.IsNegative() {
		return auctionerrors.Validationf("minimum bid increment cannot be negative")
	}
	return nil
}

// AddLot enters a vehicle into an auction that has not gone live yet.
func (a *App) AddLot(ctx context.Context, req AddLotRequest) (*models.Lot, error) {
	if req.LotNumber < 1 {
		return nil, auctionerrors.Validationf("lot number must be positive")
	}
	if !req.StartPrice.IsPositive() {
		return nil, auctionerrors.Validationf("start price must be positive")
	}
	if req.ReservePrice != nil && req.ReservePrice.LessThan(req.StartPrice) {
		return nil, auctionerrors.Validationf("reserve price cannot be below start price")
	}

	var created *models.Lot
	err := a.store.WithAuction(ctx, req.AuctionID, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		switch auc.Status {
		case models.AuctionStatusDraft, models.AuctionStatusScheduled, models.AuctionStatusReady:
		default:
			return auctionerrors.StateConflictf("cannot add lots while auction is %s", auc.Status)
		}

		lots, err := tx.Lots(ctx)
		if err != nil {
			return err
		}
		for _, existing := range lots {
			if existing.LotNumber == req.LotNumber {
				return auctionerrors.StateConflictf("lot number %d already taken", req.LotNumber)
			}
		}

		now := a.clock.Now().UTC()
		condition := models.LotPreAuction
		if auc.Status == models.AuctionStatusReady {
			condition = models.LotReadyForAuction
		}
		created = &models.Lot{
			ID:           uuid.New(),
			AuctionID:    auc.ID,
			LotNumber:    req.LotNumber,
			Make:         req.Make,
			Model:        req.Model,
			Year:         req.Year,
			VIN:          req.VIN,
			Condition:    condition,
			StartPrice:   req.StartPrice,
			ReservePrice: req.ReservePrice,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		auc.TotalLots = len(lots) + 1
		auc.UpdatedAt = now
		if err := tx.SaveAuction(ctx, auc); err != nil {
			return err
		}
		return a.createLot(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("lot_id", created.ID.String()).
		Int("lot_number", created.LotNumber).
		Msg("lot added to auction")
	return created, nil
}

// createLot exists so the store can insert the lot outside the Txn interface
// while the auction row lock is still held by the surrounding WithAuction.
func (a *App) createLot(ctx context.Context, l *models.Lot) error {
	if err := a.store.CreateLot(ctx, l); err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

// ScheduleAuction moves Draft -> Scheduled once the auction is fully configured.
func (a *App) ScheduleAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return a.transition(ctx, id, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		if auc.Status != models.AuctionStatusDraft {
			return auctionerrors.StateConflictf("cannot schedule auction from %s", auc.Status)
		}
		if auc.StartTimeUTC.IsZero() || auc.EndTimeUTC.IsZero() {
			return auctionerrors.Validationf("auction times are not set")
		}
		if strings.TrimSpace(auc.Location) == "" {
			return auctionerrors.Validationf("auction location is not set")
		}
		if auc.Settings.TimerSeconds <= 0 || auc.Settings.MaxLotDurationMin <= 0 || !auc.Settings.MinBidIncrement.IsPositive() {
			return auctionerrors.Validationf("auction timer configuration is not set")
		}
		return a.setPhase(ctx, tx, auc, models.AuctionStatusScheduled, "")
	})
}

// StartAuction starts an auction manually ahead of its scheduled start time.
func (a *App) StartAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	out, err := a.transition(ctx, id, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		switch auc.Status {
		case models.AuctionStatusScheduled:
			if err := a.openPreBidding(ctx, tx, auc); err != nil {
				return err
			}
		case models.AuctionStatusReady:
		default:
			return auctionerrors.StateConflictf("cannot start auction from %s", auc.Status)
		}
		return a.startRunning(ctx, tx, auc)
	})
	if err != nil {
		return nil, err
	}
	if out.CurrentLotID != nil {
		a.fireProxies(ctx, *out.CurrentLotID)
	}
	return out, nil
}

// CancelAuction cancels a non-terminal auction and withdraws its open lots.
func (a *App) CancelAuction(ctx context.Context, id uuid.UUID, reason string) (*models.Auction, error) {
	if len(strings.TrimSpace(reason)) < 5 {
		return nil, auctionerrors.Validationf("cancellation reason must be at least 5 characters")
	}
	return a.transition(ctx, id, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		switch auc.Status {
		case models.AuctionStatusDraft, models.AuctionStatusScheduled, models.AuctionStatusReady, models.AuctionStatusRunning:
		default:
			return auctionerrors.StateConflictf("cannot cancel auction from %s", auc.Status)
		}

		now := a.clock.Now().UTC()
		lots, err := tx.Lots(ctx)
		if err != nil {
			return err
		}
		for _, l := range lots {
			if !l.Condition.Open() {
				continue
			}
			if err := lot.Withdraw(l, now); err != nil {
				return err
			}
			l.UpdatedAt = now
			if err := tx.SaveLot(ctx, l); err != nil {
				return err
			}
			if err := tx.CancelOpenBids(ctx, l.ID); err != nil {
				return err
			}
			if err := tx.RetireProxyIntents(ctx, l.ID, now); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, events.TypeLotWithdrawn, events.LotWithdrawnPayload{
				AuctionID:   auc.ID.String(),
				LotID:       l.ID.String(),
				LotNumber:   l.LotNumber,
				Reason:      reason,
				WithdrawnAt: now,
			}); err != nil {
				return err
			}
		}

		auc.CancelReason = &reason
		auc.CurrentLotID = nil
		auc.EndedAt = &now
		return a.setPhase(ctx, tx, auc, models.AuctionStatusCancelled, reason)
	})
}

// ExtendAuction pushes the auction end time out by the given number of minutes.
func (a *App) ExtendAuction(ctx context.Context, id uuid.UUID, minutes int, reason string) (*models.Auction, error) {
	if minutes <= 0 {
		return nil, auctionerrors.Validationf("extension minutes must be positive")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, auctionerrors.Validationf("extension reason is required")
	}
	return a.transition(ctx, id, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		switch auc.Status {
		case models.AuctionStatusScheduled, models.AuctionStatusReady, models.AuctionStatusRunning:
		default:
			return auctionerrors.StateConflictf("cannot extend auction from %s", auc.Status)
		}

		now := a.clock.Now().UTC()
		auc.EndTimeUTC = auc.EndTimeUTC.Add(time.Duration(minutes) * time.Minute)
		auc.UpdatedAt = now
		if err := tx.SaveAuction(ctx, auc); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, events.TypeAuctionExtended, events.AuctionExtendedPayload{
			AuctionID:  auc.ID.String(),
			Minutes:    minutes,
			Reason:     reason,
			NewEndTime: auc.EndTimeUTC,
			ExtendedAt: now,
		})
	})
}

// SetCurrentLot moves the ring to a specific lot number, returning the
// previous current lot to the ready pool.
func (a *App) SetCurrentLot(ctx context.Context, id uuid.UUID, lotNumber int) (*models.Auction, error) {
	out, err := a.transition(ctx, id, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		if auc.Status != models.AuctionStatusRunning {
			return auctionerrors.ErrAuctionNotRunning
		}

		lots, err := tx.Lots(ctx)
		if err != nil {
			return err
		}
		var target *models.Lot
		for _, l := range lots {
			if l.LotNumber == lotNumber {
				target = l
				break
			}
		}
		if target == nil {
			return auctionerrors.NotFoundf("lot number %d", lotNumber)
		}
		if auc.CurrentLotID != nil && *auc.CurrentLotID == target.ID {
			return auctionerrors.StateConflictf("lot %d is already current", lotNumber)
		}
		if !target.Condition.Open() {
			return auctionerrors.StateConflictf("lot %d is already closed", lotNumber)
		}

		now := a.clock.Now().UTC()
		if auc.CurrentLotID != nil {
			for _, l := range lots {
				if l.ID == *auc.CurrentLotID && l.Condition == models.LotLiveAuction {
					if err := lot.ReturnToReady(l); err != nil {
						return err
					}
					l.UpdatedAt = now
					if err := tx.SaveLot(ctx, l); err != nil {
						return err
					}
				}
			}
		}
		return a.makeCurrent(ctx, tx, auc, target, now)
	})
	if err != nil {
		return nil, err
	}
	if out.CurrentLotID != nil {
		a.fireProxies(ctx, *out.CurrentLotID)
	}
	return out, nil
}

// SettleAuction moves Ended -> Settled once every lot has a terminal condition
// and the financial collaborator has acknowledged post-processing.
func (a *App) SettleAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	return a.transition(ctx, id, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		if auc.Status != models.AuctionStatusEnded {
			return auctionerrors.StateConflictf("cannot settle auction from %s", auc.Status)
		}
		lots, err := tx.Lots(ctx)
		if err != nil {
			return err
		}
		for _, l := range lots {
			switch l.Condition {
			case models.LotCompleted, models.LotWithdrawn, models.LotUnsold:
			default:
				return auctionerrors.StateConflictf("lot %d still in %s", l.LotNumber, l.Condition)
			}
		}
		return a.setPhase(ctx, tx, auc, models.AuctionStatusSettled, "")
	})
}

// GetAuction returns an auction aggregate.
func (a *App) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	auc, err := a.store.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return auc, nil
}

// Tick evaluates one auction's timers at time now. It is the scheduler's entry
// point and is idempotent: re-evaluating an already-advanced auction is a
// no-op. A cancel committed before the transaction started wins; the status
// check inside the lock guarantees no timer transition commits afterwards.
func (a *App) Tick(ctx context.Context, id uuid.UUID, now time.Time) error {
	var sold []soldLot
	var auctionID uuid.UUID
	var wentLive *uuid.UUID

	err := a.store.WithAuction(ctx, id, func(ctx context.Context, tx Txn) error {
		auc := tx.Auction()
		auctionID = auc.ID
		var prior *uuid.UUID
		if auc.CurrentLotID != nil {
			p := *auc.CurrentLotID
			prior = &p
		}

		if auc.Status == models.AuctionStatusScheduled && auc.PreBidStartUTC != nil && !now.Before(*auc.PreBidStartUTC) {
			if err := a.openPreBidding(ctx, tx, auc); err != nil {
				return err
			}
		}

		if auc.Status == models.AuctionStatusReady && !now.Before(auc.StartTimeUTC) {
			if err := a.startRunning(ctx, tx, auc); err != nil {
				return err
			}
		}

		if auc.Status == models.AuctionStatusRunning {
			closed, err := a.evaluateCurrentLot(ctx, tx, auc, now)
			if err != nil {
				return err
			}
			sold = append(sold, closed...)
		}

		if auc.CurrentLotID != nil && (prior == nil || *prior != *auc.CurrentLotID) {
			wentLive = auc.CurrentLotID
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Winner notification is post-sale only and must not hold the auction lock.
	for _, s := range sold {
		a.notifier.NotifyWinner(ctx, auctionID, s.lotID, s.bidderID, s.amount)
	}
	if wentLive != nil {
		a.fireProxies(ctx, *wentLive)
	}
	return nil
}

// fireProxies runs the proxy cascade against a lot that just went live, so a
// standing intent above the floor opens the bidding without waiting for a
// manual bid. Failures are logged; the next intent or bid re-triggers it.
func (a *App) fireProxies(ctx context.Context, lotID uuid.UUID) {
	if err := a.resolver.ResolveLot(ctx, lotID); err != nil {
		log.Error().
			Err(err).
			Str("lot_id", lotID.String()).
			Msg("proxy resolution at go-live failed")
	}
}

// openPreBidding moves Scheduled -> Ready and opens pre-bidding on all lots.
func (a *App) openPreBidding(ctx context.Context, tx Txn, auc *models.Auction) error {
	lots, err := tx.Lots(ctx)
	if err != nil {
		return err
	}
	now := a.clock.Now().UTC()
	for _, l := range lots {
		if l.Condition != models.LotPreAuction {
			continue
		}
		if err := lot.OpenPreBidding(l); err != nil {
			return err
		}
		l.UpdatedAt = now
		if err := tx.SaveLot(ctx, l); err != nil {
			return err
		}
	}
	return a.setPhase(ctx, tx, auc, models.AuctionStatusReady, "")
}

// startRunning moves Ready -> Running and puts the first open lot in the ring.
func (a *App) startRunning(ctx context.Context, tx Txn, auc *models.Auction) error {
	lots, err := tx.Lots(ctx)
	if err != nil {
		return err
	}
	first := nextOpenLot(lots, nil)
	if first == nil {
		return auctionerrors.StateConflictf("auction has no lots to run")
	}
	now := a.clock.Now().UTC()
	auc.StartedAt = &now
	if err := a.setPhase(ctx, tx, auc, models.AuctionStatusRunning, ""); err != nil {
		return err
	}
	return a.makeCurrent(ctx, tx, auc, first, now)
}

// evaluateCurrentLot closes the current lot when its deadline has passed and
// hands the ring to the next open lot, ending the auction when none remain.
func (a *App) evaluateCurrentLot(ctx context.Context, tx Txn, auc *models.Auction, now time.Time) ([]soldLot, error) {
	lots, err := tx.Lots(ctx)
	if err != nil {
		return nil, err
	}

	var current *models.Lot
	if auc.CurrentLotID != nil {
		for _, l := range lots {
			if l.ID == *auc.CurrentLotID {
				current = l
				break
			}
		}
	}

	var sold []soldLot
	if current != nil {
		switch outcome := lot.Evaluate(current, now); outcome {
		case lot.OutcomeStillLive:
			return nil, nil
		case lot.OutcomeAlreadyClosed:
			// Scheduler retry after the close already committed; fall through
			// to hand-off so the ring does not stall.
		case lot.OutcomeSold, lot.OutcomeUnsold:
			s, err := a.closeLot(ctx, tx, auc, current, outcome, now)
			if err != nil {
				return nil, err
			}
			if s != nil {
				sold = append(sold, *s)
			}
		}
	}

	next := nextOpenLot(lots, auc.CurrentLotID)
	if next == nil {
		auc.CurrentLotID = nil
		auc.EndedAt = &now
		if err := a.setPhase(ctx, tx, auc, models.AuctionStatusEnded, ""); err != nil {
			return nil, err
		}
		return sold, nil
	}
	if err := a.makeCurrent(ctx, tx, auc, next, now); err != nil {
		return nil, err
	}
	return sold, nil
}

// closeLot commits a Sold/Unsold outcome for the current lot.
func (a *App) closeLot(ctx context.Context, tx Txn, auc *models.Auction, l *models.Lot, outcome lot.Outcome, now time.Time) (*soldLot, error) {
	if err := lot.Close(l, outcome, now); err != nil {
		return nil, err
	}
	l.UpdatedAt = now
	if err := tx.SaveLot(ctx, l); err != nil {
		return nil, err
	}
	if err := tx.RetireProxyIntents(ctx, l.ID, now); err != nil {
		return nil, err
	}

	var s *soldLot
	if l.Sold && l.HighBidID != nil {
		if err := tx.SetBidStatus(ctx, *l.HighBidID, models.BidStatusWon); err != nil {
			return nil, err
		}
		auc.TotalSold++
		s = &soldLot{lotID: l.ID, bidderID: *l.HighBidderID, amount: *l.HighBidAmount}
	}

	var winner *string
	if l.HighBidderID != nil && l.Sold {
		w := l.HighBidderID.String()
		winner = &w
	}
	if err := tx.AppendEvent(ctx, events.TypeLotClosed, events.LotClosedPayload{
		AuctionID:   auc.ID.String(),
		LotID:       l.ID.String(),
		LotNumber:   l.LotNumber,
		Sold:        l.Sold,
		FinalAmount: l.HighBidAmount,
		WinnerID:    winner,
		ReserveMet:  l.ReserveMet(),
		ClosedAt:    now,
	}); err != nil {
		return nil, err
	}

	a.audit.Record(ctx, "lot", l.ID, string(models.LotLiveAuction), string(l.Condition))
	log.Info().
		Str("auction_id", auc.ID.String()).
		Str("lot_id", l.ID.String()).
		Int("lot_number", l.LotNumber).
		Bool("sold", l.Sold).
		Msg("lot closed")
	return s, nil
}

// makeCurrent arms the countdown on a lot and records it as the current lot.
func (a *App) makeCurrent(ctx context.Context, tx Txn, auc *models.Auction, l *models.Lot, now time.Time) error {
	if err := lot.GoLive(l, auc, now); err != nil {
		return err
	}
	l.UpdatedAt = now
	if err := tx.SaveLot(ctx, l); err != nil {
		return err
	}

	auc.CurrentLotID = &l.ID
	auc.UpdatedAt = now
	if err := tx.SaveAuction(ctx, auc); err != nil {
		return err
	}
	return tx.AppendEvent(ctx, events.TypeLotTimerUpdated, events.LotTimerUpdatedPayload{
		AuctionID:    auc.ID.String(),
		LotID:        l.ID.String(),
		LotNumber:    l.LotNumber,
		Deadline:     *l.TimerDeadline,
		TimerSeconds: auc.Settings.TimerSeconds,
		Extended:     false,
		UpdatedAt:    now,
	})
}

// setPhase commits a lifecycle transition with its event and audit record.
func (a *App) setPhase(ctx context.Context, tx Txn, auc *models.Auction, to models.AuctionStatus, reason string) error {
	from := auc.Status
	now := a.clock.Now().UTC()
	auc.Status = to
	auc.UpdatedAt = now
	if err := tx.SaveAuction(ctx, auc); err != nil {
		return err
	}

	var currentLot *string
	if auc.CurrentLotID != nil {
		s := auc.CurrentLotID.String()
		currentLot = &s
	}
	if err := tx.AppendEvent(ctx, events.TypeAuctionPhaseChanged, events.AuctionPhaseChangedPayload{
		AuctionID:    auc.ID.String(),
		FromStatus:   string(from),
		ToStatus:     string(to),
		CurrentLotID: currentLot,
		Reason:       reason,
		ChangedAt:    now,
	}); err != nil {
		return err
	}

	a.audit.Record(ctx, "auction", auc.ID, string(from), string(to))
	log.Info().
		Str("auction_id", auc.ID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("auction phase changed")
	return nil
}

// transition runs fn under the auction lock and returns the updated aggregate.
func (a *App) transition(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Txn) error) (*models.Auction, error) {
	var out *models.Auction
	err := a.store.WithAuction(ctx, id, func(ctx context.Context, tx Txn) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		out = tx.Auction()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// nextOpenLot returns the lowest-numbered open lot, skipping the lot that was
// just current.
func nextOpenLot(lots []*models.Lot, skip *uuid.UUID) *models.Lot {
	var best *models.Lot
	for _, l := range lots {
		if skip != nil && l.ID == *skip {
			continue
		}
		if !l.Condition.Open() || l.Sold {
			continue
		}
		if best == nil || l.LotNumber < best.LotNumber {
			best = l
		}
	}
	return best
}
