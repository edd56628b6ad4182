package bid

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/events"
	"github.com/motorlot/motorlot/internal/models"
)

var t0 = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func liveFixture() (*fakeStore, *models.Lot, *models.Auction) {
	a := &models.Auction{
		ID:     uuid.New(),
		Status: models.AuctionStatusRunning,
		Settings: models.AuctionSettings{
			TimerSeconds:      30,
			MinBidIncrement:   decimal.NewFromInt(100),
			MaxLotDurationMin: 10,
		},
	}
	deadline := t0.Add(30 * time.Second)
	wentLive := t0
	l := &models.Lot{
		ID:            uuid.New(),
		AuctionID:     a.ID,
		LotNumber:     1,
		Condition:     models.LotLiveAuction,
		StartPrice:    decimal.NewFromInt(1000),
		TimerDeadline: &deadline,
		WentLiveAt:    &wentLive,
	}
	a.CurrentLotID = &l.ID
	return newFakeStore(l, a), l, a
}

func newTestLedger(store Store, at time.Time) *Ledger {
	return NewLedger(store, allowAll{}, noopAudit{}, clockwork.NewFakeClockAt(at))
}

func TestPlaceBidFirstBidFloor(t *testing.T) {
	// start price 1000, increment 100: the first acceptable bid is 1100
	store, l, _ := liveFixture()
	ld := newTestLedger(store, t0.Add(5*time.Second))
	ctx := context.Background()

	_, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID:    l.ID,
		BidderID: uuid.New(),
		Amount:   decimal.NewFromInt(1050),
		Kind:     models.BidKindRegular,
	})
	require.ErrorIs(t, err, auctionerrors.ErrBidTooLow)

	result, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID:    l.ID,
		BidderID: uuid.New(),
		Amount:   decimal.NewFromInt(1100),
		Kind:     models.BidKindRegular,
	})
	require.NoError(t, err)
	require.True(t, result.Bid.Amount.Equal(decimal.NewFromInt(1100)))
	require.True(t, store.lot.HighBidAmount.Equal(decimal.NewFromInt(1100)))
	require.Equal(t, models.BidStatusActive, store.bids[result.Bid.ID].Status)
}

func TestPlaceBidRaiseRules(t *testing.T) {
	store, l, _ := liveFixture()
	ld := newTestLedger(store, t0.Add(5*time.Second))
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	first, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: alice, Amount: decimal.NewFromInt(1100), Kind: models.BidKindRegular,
	})
	require.NoError(t, err)

	// equal amount never replaces the high bid
	_, err = ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: bob, Amount: decimal.NewFromInt(1100), Kind: models.BidKindRegular,
	})
	require.ErrorIs(t, err, auctionerrors.ErrBidTooLow)

	// short raise rejected
	_, err = ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: bob, Amount: decimal.NewFromInt(1150), Kind: models.BidKindRegular,
	})
	require.ErrorIs(t, err, auctionerrors.ErrBidTooLow)

	// full raise outbids the prior high
	second, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: bob, Amount: decimal.NewFromInt(1200), Kind: models.BidKindRegular,
	})
	require.NoError(t, err)
	require.Equal(t, models.BidStatusOutbid, store.bids[first.Bid.ID].Status)
	require.Equal(t, models.BidStatusActive, store.bids[second.Bid.ID].Status)
	require.Equal(t, bob, *store.lot.HighBidderID)
}

func TestPlaceBidSelfOutbid(t *testing.T) {
	store, l, _ := liveFixture()
	ld := newTestLedger(store, t0.Add(5*time.Second))
	ctx := context.Background()
	alice := uuid.New()

	_, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: alice, Amount: decimal.NewFromInt(1100), Kind: models.BidKindRegular,
	})
	require.NoError(t, err)

	_, err = ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: alice, Amount: decimal.NewFromInt(1500), Kind: models.BidKindRegular,
	})
	require.ErrorIs(t, err, auctionerrors.ErrSelfOutbid)
}

func TestPlaceBidValidation(t *testing.T) {
	store, l, _ := liveFixture()
	ld := newTestLedger(store, t0.Add(5*time.Second))
	ctx := context.Background()

	_, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.Zero, Kind: models.BidKindRegular,
	})
	require.ErrorIs(t, err, auctionerrors.ErrValidation)

	_, err = ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1100), Kind: "SNIPE",
	})
	require.ErrorIs(t, err, auctionerrors.ErrValidation)
}

func TestPlaceBidIneligibleBidder(t *testing.T) {
	store, l, _ := liveFixture()
	ld := NewLedger(store, denyAll{}, noopAudit{}, clockwork.NewFakeClockAt(t0))
	_, err := ld.PlaceBid(context.Background(), PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1100), Kind: models.BidKindRegular,
	})
	require.ErrorIs(t, err, auctionerrors.ErrBidderIneligible)
}

func TestPlaceBidRejectsNonLiveLot(t *testing.T) {
	store, l, _ := liveFixture()
	store.lot.Condition = models.LotReadyForAuction
	store.lot.TimerDeadline = nil
	store.lot.WentLiveAt = nil
	ld := newTestLedger(store, t0)

	_, err := ld.PlaceBid(context.Background(), PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1100), Kind: models.BidKindRegular,
	})
	require.ErrorIs(t, err, auctionerrors.ErrLotNotLive)
}

func TestPreBidWindow(t *testing.T) {
	store, l, a := liveFixture()
	store.lot.Condition = models.LotPreAuction
	store.lot.TimerDeadline = nil
	store.lot.WentLiveAt = nil
	a.Status = models.AuctionStatusScheduled
	preStart := t0.Add(-time.Hour)
	preEnd := t0.Add(time.Hour)
	a.PreBidStartUTC = &preStart
	a.PreBidEndUTC = &preEnd

	ld := newTestLedger(store, t0)
	ctx := context.Background()

	result, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1100), Kind: models.BidKindPreBid,
	})
	require.NoError(t, err)
	require.True(t, store.lot.HasPreBids)
	require.Equal(t, models.BidKindPreBid, result.Bid.Kind)

	// after the window closes pre-bids are rejected
	late := newTestLedger(store, preEnd.Add(time.Minute))
	_, err = late.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1200), Kind: models.BidKindPreBid,
	})
	require.ErrorIs(t, err, auctionerrors.ErrPreBidClosed)

	// pre-bids are not valid once the lot is live
	store.lot.Condition = models.LotLiveAuction
	_, err = ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1200), Kind: models.BidKindPreBid,
	})
	require.ErrorIs(t, err, auctionerrors.ErrLotNotLive)
}

func TestFirstPreBidOpensLot(t *testing.T) {
	store, l, a := liveFixture()
	store.lot.Condition = models.LotPreAuction
	store.lot.TimerDeadline = nil
	store.lot.WentLiveAt = nil
	a.Status = models.AuctionStatusScheduled
	preStart := t0.Add(-time.Hour)
	preEnd := t0.Add(time.Hour)
	a.PreBidStartUTC = &preStart
	a.PreBidEndUTC = &preEnd

	ld := newTestLedger(store, t0)
	_, err := ld.PlaceBid(context.Background(), PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1100), Kind: models.BidKindPreBid,
	})
	require.NoError(t, err)

	// the accepted pre-bid itself moves the lot out of PreAuction; it does
	// not wait for the auction's Scheduled -> Ready transition
	require.Equal(t, models.LotReadyForAuction, store.lot.Condition)
	require.True(t, store.lot.HasPreBids)

	// a second pre-bid finds the lot already open and leaves it there
	_, err = ld.PlaceBid(context.Background(), PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1200), Kind: models.BidKindPreBid,
	})
	require.NoError(t, err)
	require.Equal(t, models.LotReadyForAuction, store.lot.Condition)
}

func TestAcceptedBidResetsCountdown(t *testing.T) {
	store, l, _ := liveFixture()
	bidAt := t0.Add(10 * time.Second)
	ld := newTestLedger(store, bidAt)

	_, err := ld.PlaceBid(context.Background(), PlaceBidRequest{
		LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(1100), Kind: models.BidKindRegular,
	})
	require.NoError(t, err)

	require.Equal(t, bidAt.Add(30*time.Second), *store.lot.TimerDeadline)
	require.Equal(t, 1, store.auction.ExtendedCount)

	timerEvents := store.eventsOfType(events.TypeLotTimerUpdated)
	require.Len(t, timerEvents, 1)
	payload := timerEvents[0].payload.(events.LotTimerUpdatedPayload)
	require.True(t, payload.Extended)
}

func TestConcurrentBidsResolveDeterministically(t *testing.T) {
	store, l, _ := liveFixture()
	ld := newTestLedger(store, t0.Add(5*time.Second))
	ctx := context.Background()

	amounts := []int64{1200, 1300}
	errs := make([]error, len(amounts))
	var wg sync.WaitGroup
	for i, amt := range amounts {
		wg.Add(1)
		go func(i int, amt int64) {
			defer wg.Done()
			_, errs[i] = ld.PlaceBid(ctx, PlaceBidRequest{
				LotID: l.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(amt), Kind: models.BidKindRegular,
			})
		}(i, amt)
	}
	wg.Wait()

	// Whichever ordering the lock produced, the ledger is consistent: the
	// final high bid is 1300 if 1200 landed first (both accepted), or 1300
	// alone with the 1200 rejected as too low.
	require.NoError(t, errs[1])
	require.True(t, store.lot.HighBidAmount.Equal(decimal.NewFromInt(1300)))
	if errs[0] != nil {
		require.ErrorIs(t, errs[0], auctionerrors.ErrBidTooLow)
		require.Len(t, store.bidsByStatus(models.BidStatusActive), 1)
	} else {
		require.Len(t, store.bidsByStatus(models.BidStatusActive), 1)
		require.Len(t, store.bidsByStatus(models.BidStatusOutbid), 1)
	}
}
