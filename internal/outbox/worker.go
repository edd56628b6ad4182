package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Config holds outbox relay settings.
type Config struct {
	PollInterval time.Duration
	BatchSize    int32
	MaxRetries   int
	RetryDelay   time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
	}
}

// Worker relays staged outbox rows to the event publisher. Unsent rows are
// claimed with SKIP LOCKED so multiple relay instances never double-publish,
// and the broker-side msg-id dedup covers the crash-between-publish-and-mark
// window.
type Worker struct {
	db        *sql.DB
	publisher EventPublisher
	config    Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates an outbox relay worker.
func NewWorker(database *sql.DB, publisher EventPublisher, cfg Config) *Worker {
	return &Worker{
		db:        database,
		publisher: publisher,
		config:    cfg,
		stopChan:  make(chan struct{}),
	}
}

// Start launches the relay loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int32("batch_size", w.config.BatchSize).
		Msg("outbox worker started")
	return nil
}

// Stop halts the relay loop and waits for the in-flight batch.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	log.Info().Msg("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.ProcessOutbox(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.ProcessOutbox(ctx)
		}
	}
}

// ProcessOutbox publishes one batch of unsent events. It is safe to call from
// multiple goroutines; the LISTEN/NOTIFY listener calls it out of band.
func (w *Worker) ProcessOutbox(ctx context.Context) {
	published, err := w.processBatch(ctx)
	if err != nil {
		log.Error().Err(err).Msg("outbox batch failed")
		return
	}
	if published > 0 {
		log.Info().Int("published", published).Msg("outbox events relayed")
	}
}

func (w *Worker) processBatch(ctx context.Context) (int, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	events, err := fetchUnsent(ctx, tx, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch unsent events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	sent := make([]uuid.UUID, 0, len(events))
	for _, ev := range events {
		if err := w.publishWithRetry(ctx, ev); err != nil {
			log.Error().
				Err(err).
				Str("event_id", ev.ID.String()).
				Str("event_type", ev.EventType).
				Msg("publish failed; event stays staged")
			continue
		}
		sent = append(sent, ev.ID)
	}
	if len(sent) == 0 {
		return 0, nil
	}

	if err := markSent(ctx, tx, sent, time.Now().UTC()); err != nil {
		return 0, fmt.Errorf("mark events sent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(sent), nil
}

func (w *Worker) publishWithRetry(ctx context.Context, ev Event) error {
	var err error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay):
			}
		}
		if err = w.publisher.Publish(ctx, ev); err == nil {
			return nil
		}
	}
	return err
}

func fetchUnsent(ctx context.Context, tx *sql.Tx, limit int32) ([]Event, error) {
	const q = `
		SELECT id, auction_id, event_type, payload, metadata, created_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.AuctionID, &ev.EventType, &ev.Payload, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func markSent(ctx context.Context, tx *sql.Tx, ids []uuid.UUID, at time.Time) error {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE outbox_events SET sent_at = $1 WHERE id = ANY($2)`,
		at, pq.Array(strIDs),
	)
	return err
}
