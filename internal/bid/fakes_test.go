package bid

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/motorlot/motorlot/internal/models"
)

// fakeStore keeps one lot and its auction in memory, serializing WithLot with
// a mutex the same way the Postgres store serializes on the row lock.
type fakeStore struct {
	mu      sync.Mutex
	lot     *models.Lot
	auction *models.Auction
	bids    map[uuid.UUID]*models.Bid
	intents []*models.ProxyBidIntent
	events  []fakeEvent
}

type fakeEvent struct {
	eventType string
	payload   any
}

func newFakeStore(l *models.Lot, a *models.Auction) *fakeStore {
	return &fakeStore{
		lot:     l,
		auction: a,
		bids:    make(map[uuid.UUID]*models.Bid),
	}
}

func (s *fakeStore) WithLot(ctx context.Context, lotID uuid.UUID, fn func(ctx context.Context, tx Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &fakeTxn{store: s})
}

func (s *fakeStore) bidsByStatus(status models.BidStatus) []*models.Bid {
	var out []*models.Bid
	for _, b := range s.bids {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
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
	store *fakeStore
}

func (t *fakeTxn) Lot() *models.Lot {
	return t.store.lot
}

func (t *fakeTxn) Auction() *models.Auction {
	return t.store.auction
}

func (t *fakeTxn) InsertBid(ctx context.Context, b *models.Bid) error {
	copied := *b
	t.store.bids[b.ID] = &copied
	return nil
}

func (t *fakeTxn) SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error {
	if b, ok := t.store.bids[bidID]; ok {
		b.Status = status
	}
	return nil
}

func (t *fakeTxn) SaveLot(ctx context.Context, l *models.Lot) error {
	t.store.lot = l
	return nil
}

func (t *fakeTxn) SaveAuction(ctx context.Context, a *models.Auction) error {
	t.store.auction = a
	return nil
}

func (t *fakeTxn) ActiveIntents(ctx context.Context) ([]*models.ProxyBidIntent, error) {
	var out []*models.ProxyBidIntent
	for _, in := range t.store.intents {
		if in.Active {
			out = append(out, in)
		}
	}
	return out, nil
}

func (t *fakeTxn) InsertIntent(ctx context.Context, in *models.ProxyBidIntent) error {
	t.store.intents = append(t.store.intents, in)
	return nil
}

func (t *fakeTxn) SaveIntent(ctx context.Context, in *models.ProxyBidIntent) error {
	for i, existing := range t.store.intents {
		if existing.ID == in.ID {
			t.store.intents[i] = in
		}
	}
	return nil
}

func (t *fakeTxn) AppendEvent(ctx context.Context, eventType string, payload any) error {
	t.store.events = append(t.store.events, fakeEvent{eventType: eventType, payload: payload})
	return nil
}

// allowAll satisfies EligibilityChecker.
type allowAll struct{}

func (allowAll) CanBid(ctx context.Context, bidderID, lotID uuid.UUID) (bool, error) {
	return true, nil
}

type denyAll struct{}

func (denyAll) CanBid(ctx context.Context, bidderID, lotID uuid.UUID) (bool, error) {
	return false, nil
}

// noopAudit satisfies AuditLogger.
type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, entity string, id uuid.UUID, from, to string) {}
