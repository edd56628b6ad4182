package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// AuctionTicker is the auction state machine entry point the scheduler drives.
type AuctionTicker interface {
	Tick(ctx context.Context, auctionID uuid.UUID, now time.Time) error
}

// Store defines what the scheduler needs from persistence.
type Store interface {
	// FetchDueAuctions returns in-flight auctions whose next relevant
	// timestamp (pre-bid boundary, start time or current lot deadline) has
	// passed, up to limit.
	FetchDueAuctions(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error)
	// FetchActiveAuctions returns every in-flight auction, for the catch-up
	// pass at process start.
	FetchActiveAuctions(ctx context.Context) ([]uuid.UUID, error)
	// AcquireLease claims a time-bounded exclusive lease on an auction.
	// Returns false without error when another worker holds it.
	AcquireLease(ctx context.Context, auctionID uuid.UUID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, auctionID uuid.UUID, owner string) error
}

// Config holds scheduler loop settings.
type Config struct {
	PollInterval   time.Duration
	BatchSize      int32
	NumWorkers     int
	LeaseTTL       time.Duration
	CatchUpOnStart bool
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:   2 * time.Second,
		BatchSize:      50,
		NumWorkers:     10,
		LeaseTTL:       30 * time.Second,
		CatchUpOnStart: true,
	}
}

// Scheduler polls all active auctions and drives their timer transitions
// through a worker pool. Workers operate on disjoint auctions: the in-flight
// map dedupes within this instance, the store lease dedupes across instances.
type Scheduler struct {
	store      Store
	ticker     AuctionTicker
	config     Config
	clock      clockwork.Clock
	instanceID string

	workCh chan uuid.UUID

	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex
}

// New creates a scheduler.
func New(store Store, ticker AuctionTicker, config Config, clock clockwork.Clock) *Scheduler {
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultConfig().NumWorkers
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = DefaultConfig().LeaseTTL
	}
	return &Scheduler{
		store:      store,
		ticker:     ticker,
		config:     config,
		clock:      clock,
		instanceID: uuid.New().String()[:8],
		workCh:     make(chan uuid.UUID, config.NumWorkers*2),
		inFlight:   make(map[uuid.UUID]bool),
	}
}

// Run loops until ctx is cancelled, polling for due auctions every interval.
// A missed or failed tick is not fatal: the loop is idempotent and
// re-evaluates from persisted state, never from in-memory timers.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().
		Str("instance", s.instanceID).
		Int("workers", s.config.NumWorkers).
		Dur("poll_interval", s.config.PollInterval).
		Msg("scheduler started")

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer func() {
		cancelWorkers()
		close(s.workCh)
		wg.Wait()
		log.Info().Str("instance", s.instanceID).Msg("scheduler stopped")
	}()

	for i := 0; i < s.config.NumWorkers; i++ {
		wg.Add(1)
		go s.worker(workerCtx, &wg, i)
	}

	if s.config.CatchUpOnStart {
		s.catchUp(ctx)
	}

	ticker := s.clock.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			s.pollOnce(ctx)
		}
	}
}

// catchUp evaluates every in-flight auction once so timers missed during
// downtime are resolved rather than silently skipped.
func (s *Scheduler) catchUp(ctx context.Context) {
	ids, err := s.store.FetchActiveAuctions(ctx)
	if err != nil {
		log.Error().Err(err).Str("instance", s.instanceID).Msg("catch-up fetch failed; continuing with regular polling")
		return
	}
	log.Info().Str("instance", s.instanceID).Int("count", len(ids)).Msg("catch-up pass on start")
	s.enqueue(ctx, ids)
}

// pollOnce fetches one batch of due auctions and fans it across the workers.
func (s *Scheduler) pollOnce(ctx context.Context) {
	now := s.clock.Now().UTC()
	due, err := s.store.FetchDueAuctions(ctx, now, s.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("instance", s.instanceID).Msg("error fetching due auctions; retrying next tick")
		return
	}
	if len(due) == 0 {
		return
	}
	log.Debug().
		Str("instance", s.instanceID).
		Int("count_due", len(due)).
		Msg("processing due auctions")
	s.enqueue(ctx, due)
}

func (s *Scheduler) enqueue(ctx context.Context, ids []uuid.UUID) {
	for _, id := range ids {
		s.inFlightMu.Lock()
		if s.inFlight[id] {
			s.inFlightMu.Unlock()
			continue
		}
		s.inFlight[id] = true
		s.inFlightMu.Unlock()

		select {
		case <-ctx.Done():
			s.clearInFlight(id)
			return
		case s.workCh <- id:
		}
	}
}

// worker processes auctions from the work channel. One auction's failure
// never blocks the rest of the batch.
func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case auctionID, ok := <-s.workCh:
			if !ok {
				return
			}
			s.process(ctx, auctionID, workerID)
			s.clearInFlight(auctionID)
		}
	}
}

// process acquires the per-auction lease, runs one tick, and releases. A held
// lease means another instance owns the auction: skip and retry next tick.
func (s *Scheduler) process(ctx context.Context, auctionID uuid.UUID, workerID int) {
	acquired, err := s.store.AcquireLease(ctx, auctionID, s.instanceID, s.config.LeaseTTL)
	if err != nil {
		log.Error().
			Err(err).
			Str("auction_id", auctionID.String()).
			Str("instance", s.instanceID).
			Msg("lease acquisition failed; retrying next tick")
		return
	}
	if !acquired {
		log.Debug().
			Str("auction_id", auctionID.String()).
			Str("instance", s.instanceID).
			Msg("lease held by another worker; skipping")
		return
	}
	defer func() {
		if err := s.store.ReleaseLease(ctx, auctionID, s.instanceID); err != nil {
			log.Error().
				Err(err).
				Str("auction_id", auctionID.String()).
				Str("instance", s.instanceID).
				Msg("lease release failed; lease will expire on its own")
		}
	}()

	if err := s.ticker.Tick(ctx, auctionID, s.clock.Now().UTC()); err != nil {
		log.Error().
			Err(err).
			Str("auction_id", auctionID.String()).
			Str("instance", s.instanceID).
			Int("worker_id", workerID).
			Msg("auction tick failed; retrying next tick")
	}
}

func (s *Scheduler) clearInFlight(id uuid.UUID) {
	s.inFlightMu.Lock()
	delete(s.inFlight, id)
	s.inFlightMu.Unlock()
}
