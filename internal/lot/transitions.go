package lot

import (
	"time"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
)

// Outcome is the result of evaluating a live lot's timer.
type Outcome int

const (
	// OutcomeStillLive means the deadline has not passed yet.
	OutcomeStillLive Outcome = iota
	// OutcomeSold means the deadline passed with a reserve-meeting high bid.
	OutcomeSold
	// OutcomeUnsold means the deadline passed with no bid or a bid below reserve.
	OutcomeUnsold
	// OutcomeAlreadyClosed means the lot had already left live bidding. A
	// repeated timer evaluation is a no-op, not an error.
	OutcomeAlreadyClosed
)

// OpenPreBidding moves a lot from PreAuction to ReadyForAuction. Called when
// the parent auction enters Ready, or when the lot's first pre-bid is accepted.
// Already-ready lots pass through unchanged.
func OpenPreBidding(l *models.Lot) error {
	switch l.Condition {
	case models.LotPreAuction:
		l.Condition = models.LotReadyForAuction
		return nil
	case models.LotReadyForAuction:
		return nil
	default:
		return auctionerrors.StateConflictf("lot %d cannot open pre-bidding from %s", l.LotNumber, l.Condition)
	}
}

// GoLive makes the lot the auction's current lot and arms its countdown.
func GoLive(l *models.Lot, a *models.Auction, now time.Time) error {
	if l.Condition != models.LotReadyForAuction && l.Condition != models.LotPreAuction {
		return auctionerrors.StateConflictf("lot %d cannot go live from %s", l.LotNumber, l.Condition)
	}
	deadline := now.Add(a.TimerDuration())
	l.Condition = models.LotLiveAuction
	l.WentLiveAt = &now
	l.TimerDeadline = &deadline
	return nil
}

// ReturnToReady takes a live lot out of the ring without closing it, used when
// an operator moves the current-lot pointer elsewhere.
func ReturnToReady(l *models.Lot) error {
	if l.Condition != models.LotLiveAuction {
		return auctionerrors.StateConflictf("lot %d is not live", l.LotNumber)
	}
	l.Condition = models.LotReadyForAuction
	l.TimerDeadline = nil
	l.WentLiveAt = nil
	return nil
}

// ExtendDeadline resets the countdown to now+timerSeconds after an accepted
// bid, clamped so total live duration never exceeds the per-lot cap. Reports
// whether the deadline moved forward.
func ExtendDeadline(l *models.Lot, a *models.Auction, now time.Time) bool {
	if l.Condition != models.LotLiveAuction || l.WentLiveAt == nil || l.TimerDeadline == nil {
		return false
	}
	next := now.Add(a.TimerDuration())
	capAt := l.WentLiveAt.Add(a.MaxLotDuration())
	if next.After(capAt) {
		next = capAt
	}
	if !next.After(*l.TimerDeadline) {
		return false
	}
	l.TimerDeadline = &next
	return true
}

// Evaluate inspects a lot's timer at time now. It never mutates the lot;
// callers apply the outcome with Close.
func Evaluate(l *models.Lot, now time.Time) Outcome {
	if l.Condition != models.LotLiveAuction {
		if l.Condition.Closed() {
			return OutcomeAlreadyClosed
		}
		return OutcomeStillLive
	}
	if l.TimerDeadline == nil || now.Before(*l.TimerDeadline) {
		return OutcomeStillLive
	}
	if l.HighBidAmount != nil && l.ReserveMet() {
		return OutcomeSold
	}
	return OutcomeUnsold
}

// Close applies a Sold/Unsold outcome produced by Evaluate.
func Close(l *models.Lot, outcome Outcome, now time.Time) error {
	if l.Condition != models.LotLiveAuction {
		return auctionerrors.StateConflictf("lot %d already closed", l.LotNumber)
	}
	switch outcome {
	case OutcomeSold:
		l.Condition = models.LotSold
		l.Sold = true
	case OutcomeUnsold:
		l.Condition = models.LotUnsold
	default:
		return auctionerrors.StateConflictf("lot %d has no closing outcome", l.LotNumber)
	}
	l.TimerDeadline = nil
	l.ClosedAt = &now
	return nil
}

// Withdraw removes a lot from sale. Allowed from any condition that is not
// already terminal. The caller cancels the lot's open bids, so the high-bid
// snapshot is cleared here: it must not outlive the bids backing it.
func Withdraw(l *models.Lot, now time.Time) error {
	switch l.Condition {
	case models.LotCompleted, models.LotWithdrawn:
		return auctionerrors.StateConflictf("lot %d cannot be withdrawn from %s", l.LotNumber, l.Condition)
	}
	l.Condition = models.LotWithdrawn
	l.TimerDeadline = nil
	l.HighBidAmount = nil
	l.HighBidderID = nil
	l.HighBidID = nil
	if l.ClosedAt == nil {
		l.ClosedAt = &now
	}
	return nil
}
