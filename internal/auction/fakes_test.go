package auction

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
)

// fakeStore keeps auctions and lots in memory and serializes WithAuction the
// way the Postgres store serializes on the auction row lock.
type fakeStore struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*models.Auction
	lots     map[uuid.UUID]*models.Lot
	bids     map[uuid.UUID]models.BidStatus
	retired  map[uuid.UUID]int // lot id -> RetireProxyIntents calls
	events   []fakeEvent
}

type fakeEvent struct {
	eventType string
	payload   any
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		auctions: make(map[uuid.UUID]*models.Auction),
		lots:     make(map[uuid.UUID]*models.Lot),
		bids:     make(map[uuid.UUID]models.BidStatus),
		retired:  make(map[uuid.UUID]int),
	}
}

func (s *fakeStore) CreateAuction(ctx context.Context, a *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	s.auctions[a.ID] = &copied
	return nil
}

func (s *fakeStore) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, auctionerrors.NotFoundf("auction")
	}
	copied := *a
	return &copied, nil
}

func (s *fakeStore) CreateLot(ctx context.Context, l *models.Lot) error {
	copied := *l
	s.lots[l.ID] = &copied
	return nil
}

func (s *fakeStore) WithAuction(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return auctionerrors.NotFoundf("auction")
	}
	copied := *a
	return fn(ctx, &fakeTxn{store: s, auction: &copied})
}

func (s *fakeStore) eventsOfType(eventType string) []fakeEvent {
	var out []fakeEvent
	for _, e := range s.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeTxn struct {
	store   *fakeStore
	auction *models.Auction
}

func (t *fakeTxn) Auction() *models.Auction {
	return t.auction
}

func (t *fakeTxn) Lots(ctx context.Context) ([]*models.Lot, error) {
	var out []*models.Lot
	for _, l := range t.store.lots {
		if l.AuctionID == t.auction.ID {
			copied := *l
			out = append(out, &copied)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].LotNumber < out[i].LotNumber {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (t *fakeTxn) SaveAuction(ctx context.Context, a *models.Auction) error {
	copied := *a
	t.store.auctions[a.ID] = &copied
	return nil
}

func (t *fakeTxn) SaveLot(ctx context.Context, l *models.Lot) error {
	copied := *l
	t.store.lots[l.ID] = &copied
	return nil
}

func (t *fakeTxn) SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error {
	t.store.bids[bidID] = status
	return nil
}

func (t *fakeTxn) CancelOpenBids(ctx context.Context, lotID uuid.UUID) error {
	for id, status := range t.store.bids {
		if status == models.BidStatusActive {
			t.store.bids[id] = models.BidStatusCancelled
		}
	}
	_ = lotID
	return nil
}

func (t *fakeTxn) RetireProxyIntents(ctx context.Context, lotID uuid.UUID, at time.Time) error {
	t.store.retired[lotID]++
	return nil
}

func (t *fakeTxn) AppendEvent(ctx context.Context, eventType string, payload any) error {
	t.store.events = append(t.store.events, fakeEvent{eventType: eventType, payload: payload})
	return nil
}

// noopAudit satisfies AuditLogger.
type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, entity string, id uuid.UUID, from, to string) {}

// recordingNotifier captures winner notifications.
type recordingNotifier struct {
	mu      sync.Mutex
	winners []winnerCall
}

type winnerCall struct {
	auctionID uuid.UUID
	lotID     uuid.UUID
	bidderID  uuid.UUID
	amount    decimal.Decimal
}

func (n *recordingNotifier) NotifyWinner(ctx context.Context, auctionID, lotID, bidderID uuid.UUID, amount decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.winners = append(n.winners, winnerCall{auctionID: auctionID, lotID: lotID, bidderID: bidderID, amount: amount})
}

// recordingResolver captures which lots had their proxy intents fired at
// go-live.
type recordingResolver struct {
	mu   sync.Mutex
	lots []uuid.UUID
}

func (r *recordingResolver) ResolveLot(ctx context.Context, lotID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots = append(r.lots, lotID)
	return nil
}
