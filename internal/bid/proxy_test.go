package bid

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
)

// proxyFixture is a live lot at increment 25 with a standing high bid of 400.
func proxyFixture(t *testing.T) (*fakeStore, *Ledger, uuid.UUID) {
	t.Helper()
	store, l, a := liveFixture()
	a.Settings.MinBidIncrement = decimal.NewFromInt(25)
	l.StartPrice = decimal.NewFromInt(300)

	ld := newTestLedger(store, t0.Add(time.Second))
	charlie := uuid.New()
	_, err := ld.PlaceBid(context.Background(), PlaceBidRequest{
		LotID: l.ID, BidderID: charlie, Amount: decimal.NewFromInt(400), Kind: models.BidKindRegular,
	})
	require.NoError(t, err)
	return store, ld, charlie
}

func TestRegisterProxyValidation(t *testing.T) {
	store, ld, _ := proxyFixture(t)
	ctx := context.Background()

	_, err := ld.RegisterProxy(ctx, store.lot.ID, uuid.New(), decimal.Zero)
	require.ErrorIs(t, err, auctionerrors.ErrValidation)

	// ceiling below the next acceptable bid is useless, reject it up front
	_, err = ld.RegisterProxy(ctx, store.lot.ID, uuid.New(), decimal.NewFromInt(410))
	require.ErrorIs(t, err, auctionerrors.ErrBidTooLow)

	store.lot.Condition = models.LotSold
	_, err = ld.RegisterProxy(ctx, store.lot.ID, uuid.New(), decimal.NewFromInt(600))
	require.ErrorIs(t, err, auctionerrors.ErrStateConflict)
}

func TestRegisterProxyCountersCurrentHigh(t *testing.T) {
	store, ld, charlie := proxyFixture(t)
	alice := uuid.New()

	// high is 400: alice's 500 ceiling immediately bids the floor, 425
	intent, err := ld.RegisterProxy(context.Background(), store.lot.ID, alice, decimal.NewFromInt(500))
	require.NoError(t, err)
	require.True(t, store.lot.HighBidAmount.Equal(decimal.NewFromInt(425)))
	require.Equal(t, alice, *store.lot.HighBidderID)
	require.NotEqual(t, charlie, *store.lot.HighBidderID)

	// the opening auto-bid is linked back to the intent
	saved := store.intents[0]
	require.Equal(t, intent.ID, saved.ID)
	require.NotNil(t, saved.OriginatingBid)
	require.Equal(t, models.BidKindAuto, store.bids[*saved.OriginatingBid].Kind)
}

func TestProxyLosingCeilingRetires(t *testing.T) {
	store, ld, _ := proxyFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	// alice (500) wins the floor at 425
	_, err := ld.RegisterProxy(ctx, store.lot.ID, alice, decimal.NewFromInt(500))
	require.NoError(t, err)

	// bob's 450 cannot top 425+25: his intent registers, then retires without
	// ever outbidding alice
	_, err = ld.RegisterProxy(ctx, store.lot.ID, bob, decimal.NewFromInt(450))
	require.NoError(t, err)

	require.True(t, store.lot.HighBidAmount.Equal(decimal.NewFromInt(425)))
	require.Equal(t, alice, *store.lot.HighBidderID)

	var bobIntent *models.ProxyBidIntent
	for _, in := range store.intents {
		if in.BidderID == bob {
			bobIntent = in
		}
	}
	require.NotNil(t, bobIntent)
	require.False(t, bobIntent.Active)
	require.NotNil(t, bobIntent.RetiredAt)
}

func TestProxyDuelAlternatesToConvergence(t *testing.T) {
	store, ld, _ := proxyFixture(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	_, err := ld.RegisterProxy(ctx, store.lot.ID, alice, decimal.NewFromInt(500))
	require.NoError(t, err)
	// alice countered the 400 high at 425

	_, err = ld.RegisterProxy(ctx, store.lot.ID, bob, decimal.NewFromInt(480))
	require.NoError(t, err)

	// bob 450, alice 475, bob retired at 500 beyond his ceiling
	require.True(t, store.lot.HighBidAmount.Equal(decimal.NewFromInt(475)))
	require.Equal(t, alice, *store.lot.HighBidderID)

	var autoCount int
	for _, b := range store.bids {
		if b.Kind == models.BidKindAuto {
			autoCount++
		}
	}
	require.Equal(t, 3, autoCount) // 425, 450, 475
}

func TestRegisterProxyReplacesPriorIntent(t *testing.T) {
	store, ld, _ := proxyFixture(t)
	ctx := context.Background()
	alice := uuid.New()

	first, err := ld.RegisterProxy(ctx, store.lot.ID, alice, decimal.NewFromInt(500))
	require.NoError(t, err)
	second, err := ld.RegisterProxy(ctx, store.lot.ID, alice, decimal.NewFromInt(600))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	var active []*models.ProxyBidIntent
	for _, in := range store.intents {
		if in.Active && in.BidderID == alice {
			active = append(active, in)
		}
	}
	require.Len(t, active, 1)
	require.Equal(t, second.ID, active[0].ID)
	require.True(t, active[0].Ceiling.Equal(decimal.NewFromInt(600)))
}

func TestProxyAnswersRegularBid(t *testing.T) {
	store, ld, _ := proxyFixture(t)
	ctx := context.Background()
	alice, dave := uuid.New(), uuid.New()

	_, err := ld.RegisterProxy(ctx, store.lot.ID, alice, decimal.NewFromInt(500))
	require.NoError(t, err)
	// alice holds 425

	result, err := ld.PlaceBid(ctx, PlaceBidRequest{
		LotID: store.lot.ID, BidderID: dave, Amount: decimal.NewFromInt(450), Kind: models.BidKindRegular,
	})
	require.NoError(t, err)

	// alice's proxy answers dave instantly at 475
	require.Len(t, result.AutoBids, 1)
	require.True(t, result.AutoBids[0].Amount.Equal(decimal.NewFromInt(475)))
	require.Equal(t, alice, *store.lot.HighBidderID)
	require.Equal(t, models.BidStatusOutbid, store.bids[result.Bid.ID].Status)
}

func TestProxyIdleOnNonLiveLot(t *testing.T) {
	store, l, a := liveFixture()
	a.Settings.MinBidIncrement = decimal.NewFromInt(25)
	l.StartPrice = decimal.NewFromInt(300)
	l.Condition = models.LotReadyForAuction
	l.TimerDeadline = nil
	l.WentLiveAt = nil

	ld := NewLedger(store, allowAll{}, noopAudit{}, clockwork.NewFakeClockAt(t0))
	intent, err := ld.RegisterProxy(context.Background(), l.ID, uuid.New(), decimal.NewFromInt(500))
	require.NoError(t, err)

	// the intent stands armed but no bid fires until the lot goes live
	require.True(t, intent.Active)
	require.Nil(t, store.lot.HighBidAmount)
	require.Empty(t, store.bids)
}

func TestResolveLotFiresStandingIntent(t *testing.T) {
	store, l, a := liveFixture()
	a.Settings.MinBidIncrement = decimal.NewFromInt(25)
	l.StartPrice = decimal.NewFromInt(300)
	l.Condition = models.LotReadyForAuction
	l.TimerDeadline = nil
	l.WentLiveAt = nil

	ld := newTestLedger(store, t0)
	alice := uuid.New()
	_, err := ld.RegisterProxy(context.Background(), l.ID, alice, decimal.NewFromInt(500))
	require.NoError(t, err)
	require.Empty(t, store.bids)

	// the lot goes live; its countdown is armed by the auction state machine
	deadline := t0.Add(30 * time.Second)
	wentLive := t0
	store.lot.Condition = models.LotLiveAuction
	store.lot.TimerDeadline = &deadline
	store.lot.WentLiveAt = &wentLive

	// resolution opens the bidding at the floor on alice's behalf
	require.NoError(t, ld.ResolveLot(context.Background(), l.ID))
	require.True(t, store.lot.HighBidAmount.Equal(decimal.NewFromInt(325)))
	require.Equal(t, alice, *store.lot.HighBidderID)
	require.Len(t, store.bidsByStatus(models.BidStatusActive), 1)
	require.Equal(t, models.BidKindAuto, store.bids[*store.lot.HighBidID].Kind)

	// with no competition the cascade stops after the opening bid
	require.NoError(t, ld.ResolveLot(context.Background(), l.ID))
	require.Len(t, store.bids, 1)
}
