package lot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
)

type fakeLotStore struct {
	mu   sync.Mutex
	lots map[uuid.UUID]*models.Lot
}

func newFakeLotStore() *fakeLotStore {
	return &fakeLotStore{lots: make(map[uuid.UUID]*models.Lot)}
}

func (s *fakeLotStore) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, auctionerrors.NotFoundf("lot")
	}
	copied := *l
	return &copied, nil
}

func (s *fakeLotStore) GetLotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Lot
	for _, l := range s.lots {
		if l.AuctionID == auctionID {
			copied := *l
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeLotStore) UpdateLotCondition(ctx context.Context, id uuid.UUID, from, to models.LotCondition, at time.Time) (*models.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lots[id]
	if !ok {
		return nil, auctionerrors.NotFoundf("lot")
	}
	if l.Condition != from {
		return nil, auctionerrors.StateConflictf("lot is %s, not %s", l.Condition, from)
	}
	l.Condition = to
	l.UpdatedAt = at
	copied := *l
	return &copied, nil
}

type recordingAudit struct {
	records []string
}

func (r *recordingAudit) Record(ctx context.Context, entity string, id uuid.UUID, from, to string) {
	r.records = append(r.records, from+">"+to)
}

func TestUpdateConditionPaymentFlow(t *testing.T) {
	store := newFakeLotStore()
	audit := &recordingAudit{}
	app := NewApp(store, audit, clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	l := &models.Lot{ID: uuid.New(), AuctionID: uuid.New(), LotNumber: 1, Condition: models.LotSold}
	store.lots[l.ID] = l

	// payment -> pickup -> completed, each pushed by a collaborator
	for _, to := range []models.LotCondition{
		models.LotAwaitingPayment,
		models.LotReadyForPickup,
		models.LotCompleted,
	} {
		updated, err := app.UpdateCondition(ctx, l.ID, to)
		require.NoError(t, err)
		require.Equal(t, to, updated.Condition)
	}
	require.Len(t, audit.records, 3)
}

func TestUpdateConditionRejectsOutOfOrder(t *testing.T) {
	store := newFakeLotStore()
	app := NewApp(store, &recordingAudit{}, clockwork.NewFakeClockAt(time.Now()))
	ctx := context.Background()

	l := &models.Lot{ID: uuid.New(), Condition: models.LotSold}
	store.lots[l.ID] = l

	// pickup requires payment first
	_, err := app.UpdateCondition(ctx, l.ID, models.LotReadyForPickup)
	require.ErrorIs(t, err, auctionerrors.ErrStateConflict)
	require.Equal(t, models.LotSold, store.lots[l.ID].Condition)
}

func TestUpdateConditionRejectsCoreOwnedStates(t *testing.T) {
	store := newFakeLotStore()
	app := NewApp(store, &recordingAudit{}, clockwork.NewFakeClockAt(time.Now()))
	ctx := context.Background()

	for _, to := range []models.LotCondition{
		models.LotLiveAuction,
		models.LotSold,
		models.LotUnsold,
		models.LotWithdrawn,
	} {
		_, err := app.UpdateCondition(ctx, uuid.New(), to)
		require.ErrorIs(t, err, auctionerrors.ErrValidation)
	}
}

func TestUpdateConditionUnknownLot(t *testing.T) {
	store := newFakeLotStore()
	app := NewApp(store, &recordingAudit{}, clockwork.NewFakeClockAt(time.Now()))

	_, err := app.UpdateCondition(context.Background(), uuid.New(), models.LotAwaitingPayment)
	require.ErrorIs(t, err, auctionerrors.ErrNotFound)
}

func TestListByAuction(t *testing.T) {
	store := newFakeLotStore()
	app := NewApp(store, &recordingAudit{}, clockwork.NewFakeClockAt(time.Now()))
	auctionID := uuid.New()

	for i := 1; i <= 3; i++ {
		l := &models.Lot{ID: uuid.New(), AuctionID: auctionID, LotNumber: i, Condition: models.LotPreAuction}
		store.lots[l.ID] = l
	}
	store.lots[uuid.New()] = &models.Lot{ID: uuid.New(), AuctionID: uuid.New(), LotNumber: 1}

	lots, err := app.ListByAuction(context.Background(), auctionID)
	require.NoError(t, err)
	require.Len(t, lots, 3)
}
