package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/motorlot/internal/models"
)

// Repository is the Postgres-backed scheduler store: due-auction queries plus
// the lease table that keeps multiple scheduler instances off the same
// auction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new scheduler Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchDueAuctions selects auctions whose next boundary has passed: scheduled
// auctions reaching their pre-bid window, ready auctions reaching start time,
// and running auctions whose current lot timer has expired.
func (r *Repository) FetchDueAuctions(ctx context.Context, now time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM auctions a
		WHERE (a.status = $1 AND (
				(a.pre_bid_start_utc IS NOT NULL AND a.pre_bid_start_utc <= $4)
				OR (a.pre_bid_start_utc IS NULL AND a.start_time_utc <= $4)))
		   OR (a.status = $2 AND a.start_time_utc <= $4)
		   OR (a.status = $3 AND EXISTS (
				SELECT 1 FROM lots l
				WHERE l.id = a.current_lot_id AND l.timer_deadline <= $4))
		ORDER BY a.start_time_utc
		LIMIT $5`,
		string(models.AuctionStatusScheduled),
		string(models.AuctionStatusReady),
		string(models.AuctionStatusRunning),
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due auctions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FetchActiveAuctions returns every auction still moving through the
// lifecycle, regardless of deadlines. Used once at startup.
func (r *Repository) FetchActiveAuctions(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM auctions WHERE status = ANY($1) ORDER BY start_time_utc`,
		[]string{
			string(models.AuctionStatusScheduled),
			string(models.AuctionStatusReady),
			string(models.AuctionStatusRunning),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active auctions: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// AcquireLease claims the auction for owner until now+ttl. The upsert only
// wins when no row exists, the current lease has expired, or the owner is
// renewing its own lease.
func (r *Repository) AcquireLease(ctx context.Context, auctionID uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO scheduler_leases (auction_id, owner, expires_at)
		VALUES ($1, $2, now() + $3)
		ON CONFLICT (auction_id) DO UPDATE
		SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		WHERE scheduler_leases.expires_at <= now() OR scheduler_leases.owner = EXCLUDED.owner`,
		auctionID, owner, ttl,
	)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLease drops the lease if owner still holds it.
func (r *Repository) ReleaseLease(ctx context.Context, auctionID uuid.UUID, owner string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM scheduler_leases WHERE auction_id = $1 AND owner = $2`,
		auctionID, owner)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

var _ Store = (*Repository)(nil)
