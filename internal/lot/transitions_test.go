package lot

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
)

func testAuction(timerSec, maxDurationMin int) *models.Auction {
	return &models.Auction{
		Status: models.AuctionStatusRunning,
		Settings: models.AuctionSettings{
			TimerSeconds:      timerSec,
			MinBidIncrement:   decimal.NewFromInt(100),
			MaxLotDurationMin: maxDurationMin,
		},
	}
}

func testLot(condition models.LotCondition) *models.Lot {
	return &models.Lot{
		LotNumber:  1,
		Condition:  condition,
		StartPrice: decimal.NewFromInt(1000),
	}
}

func TestOpenPreBidding(t *testing.T) {
	l := testLot(models.LotPreAuction)
	require.NoError(t, OpenPreBidding(l))
	require.Equal(t, models.LotReadyForAuction, l.Condition)

	// already ready is a no-op
	require.NoError(t, OpenPreBidding(l))
	require.Equal(t, models.LotReadyForAuction, l.Condition)

	closed := testLot(models.LotSold)
	err := OpenPreBidding(closed)
	require.ErrorIs(t, err, auctionerrors.ErrStateConflict)
}

func TestGoLiveArmsCountdown(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := testAuction(30, 10)
	l := testLot(models.LotReadyForAuction)

	require.NoError(t, GoLive(l, a, now))
	require.Equal(t, models.LotLiveAuction, l.Condition)
	require.Equal(t, now, *l.WentLiveAt)
	require.Equal(t, now.Add(30*time.Second), *l.TimerDeadline)
}

func TestGoLiveRejectsClosedLot(t *testing.T) {
	now := time.Now().UTC()
	a := testAuction(30, 10)
	for _, c := range []models.LotCondition{models.LotSold, models.LotUnsold, models.LotWithdrawn, models.LotLiveAuction} {
		l := testLot(c)
		err := GoLive(l, a, now)
		require.ErrorIs(t, err, auctionerrors.ErrStateConflict, "condition %s", c)
	}
}

func TestExtendDeadline(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := testAuction(30, 10)
	l := testLot(models.LotReadyForAuction)
	require.NoError(t, GoLive(l, a, start))

	// a bid 20s in pushes the deadline to bid time + 30s
	bidAt := start.Add(20 * time.Second)
	require.True(t, ExtendDeadline(l, a, bidAt))
	require.Equal(t, bidAt.Add(30*time.Second), *l.TimerDeadline)

	// an earlier recomputation never moves the deadline backwards
	require.False(t, ExtendDeadline(l, a, start.Add(5*time.Second)))
	require.Equal(t, bidAt.Add(30*time.Second), *l.TimerDeadline)
}

func TestExtendDeadlineClampsToMaxDuration(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	// 10s timer with a 1 minute cap: constant bidding can stretch the lot to
	// 60s of live time but no further.
	a := testAuction(10, 1)
	l := testLot(models.LotReadyForAuction)
	require.NoError(t, GoLive(l, a, start))

	capAt := start.Add(time.Minute)
	for at := start.Add(5 * time.Second); at.Before(capAt); at = at.Add(5 * time.Second) {
		ExtendDeadline(l, a, at)
		require.False(t, l.TimerDeadline.After(capAt))
	}
	require.Equal(t, capAt, *l.TimerDeadline)

	// at the cap the lot closes regardless of late bids
	require.Equal(t, OutcomeUnsold, Evaluate(l, capAt))
}

func TestExtendDeadlineIgnoresNonLiveLot(t *testing.T) {
	a := testAuction(30, 10)
	l := testLot(models.LotReadyForAuction)
	require.False(t, ExtendDeadline(l, a, time.Now().UTC()))
}

func TestEvaluate(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := testAuction(30, 10)
	high := decimal.NewFromInt(5000)
	reserve := decimal.NewFromInt(8000)

	tests := []struct {
		name    string
		setup   func(l *models.Lot)
		at      time.Time
		outcome Outcome
	}{
		{
			name:    "before deadline",
			setup:   func(l *models.Lot) {},
			at:      start.Add(10 * time.Second),
			outcome: OutcomeStillLive,
		},
		{
			name:    "deadline passed without bids",
			setup:   func(l *models.Lot) {},
			at:      start.Add(31 * time.Second),
			outcome: OutcomeUnsold,
		},
		{
			name: "deadline passed with bid and no reserve",
			setup: func(l *models.Lot) {
				l.HighBidAmount = &high
			},
			at:      start.Add(31 * time.Second),
			outcome: OutcomeSold,
		},
		{
			name: "deadline passed with bid below reserve",
			setup: func(l *models.Lot) {
				l.HighBidAmount = &high
				l.ReservePrice = &reserve
			},
			at:      start.Add(31 * time.Second),
			outcome: OutcomeUnsold,
		},
		{
			name: "deadline exactly reached",
			setup: func(l *models.Lot) {
				l.HighBidAmount = &high
			},
			at:      start.Add(30 * time.Second),
			outcome: OutcomeSold,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := testLot(models.LotReadyForAuction)
			require.NoError(t, GoLive(l, a, start))
			tt.setup(l)
			require.Equal(t, tt.outcome, Evaluate(l, tt.at))
		})
	}
}

func TestEvaluateIsIdempotentAfterClose(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := testAuction(30, 10)
	l := testLot(models.LotReadyForAuction)
	require.NoError(t, GoLive(l, a, start))

	closeAt := start.Add(31 * time.Second)
	require.Equal(t, OutcomeUnsold, Evaluate(l, closeAt))
	require.NoError(t, Close(l, OutcomeUnsold, closeAt))

	// a second scheduler pass sees the close, not a second outcome
	require.Equal(t, OutcomeAlreadyClosed, Evaluate(l, closeAt.Add(time.Second)))
	err := Close(l, OutcomeUnsold, closeAt.Add(time.Second))
	require.ErrorIs(t, err, auctionerrors.ErrStateConflict)
}

func TestCloseSold(t *testing.T) {
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	a := testAuction(30, 10)
	l := testLot(models.LotReadyForAuction)
	require.NoError(t, GoLive(l, a, start))

	closeAt := start.Add(time.Minute)
	require.NoError(t, Close(l, OutcomeSold, closeAt))
	require.Equal(t, models.LotSold, l.Condition)
	require.True(t, l.Sold)
	require.Nil(t, l.TimerDeadline)
	require.Equal(t, closeAt, *l.ClosedAt)
}

func TestCloseRejectsNonClosingOutcome(t *testing.T) {
	l := testLot(models.LotLiveAuction)
	err := Close(l, OutcomeStillLive, time.Now().UTC())
	require.ErrorIs(t, err, auctionerrors.ErrStateConflict)
}

func TestWithdraw(t *testing.T) {
	now := time.Now().UTC()

	l := testLot(models.LotLiveAuction)
	high := decimal.NewFromInt(1500)
	bidder, bidID := uuid.New(), uuid.New()
	l.HighBidAmount = &high
	l.HighBidderID = &bidder
	l.HighBidID = &bidID

	require.NoError(t, Withdraw(l, now))
	require.Equal(t, models.LotWithdrawn, l.Condition)
	require.Nil(t, l.TimerDeadline)
	require.NotNil(t, l.ClosedAt)

	// the withdrawal cancels its bids, so no snapshot may survive it
	require.Nil(t, l.HighBidAmount)
	require.Nil(t, l.HighBidderID)
	require.Nil(t, l.HighBidID)

	// terminal conditions cannot be withdrawn
	for _, c := range []models.LotCondition{models.LotCompleted, models.LotWithdrawn} {
		l := testLot(c)
		err := Withdraw(l, now)
		require.True(t, errors.Is(err, auctionerrors.ErrStateConflict), "condition %s", c)
	}
}
