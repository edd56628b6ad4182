package lot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
	"github.com/motorlot/motorlot/internal/sqlutil"
)

const lotColumns = `id, auction_id, lot_number, make, model, year, vin, condition,
	start_price::text, reserve_price::text, high_bid_amount::text,
	high_bidder_id, high_bid_id, has_pre_bids, sold,
	timer_deadline, went_live_at, closed_at, created_at, updated_at`

// Repository is the Postgres-backed lot store for reads and externally driven
// condition transitions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new lot Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id)
	return scanLot(row)
}

func (r *Repository) GetLotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*models.Lot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE auction_id = $1 ORDER BY lot_number`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	defer rows.Close()

	var out []*models.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateLotCondition transitions a lot from one condition to another in a
// single conditional update. A zero-row result is disambiguated by re-reading
// the lot: missing means not found, present means a condition conflict.
func (r *Repository) UpdateLotCondition(ctx context.Context, id uuid.UUID, from, to models.LotCondition, at time.Time) (*models.Lot, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lots SET condition = $3, updated_at = $4 WHERE id = $1 AND condition = $2`,
		id, string(from), string(to), at)
	if err != nil {
		return nil, fmt.Errorf("failed to update lot condition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.GetLot(ctx, id)
		if err != nil {
			if errors.Is(err, auctionerrors.ErrNotFound) {
				return nil, auctionerrors.NotFoundf("lot")
			}
			return nil, err
		}
		return nil, auctionerrors.StateConflictf("lot is %s, not %s", current.Condition, from)
	}
	return r.GetLot(ctx, id)
}

func scanLot(row pgx.Row) (*models.Lot, error) {
	var (
		l             models.Lot
		condition     string
		startPrice    string
		reservePrice  sql.NullString
		highBidAmount sql.NullString
		highBidderID  uuid.NullUUID
		highBidID     uuid.NullUUID
		timerDeadline sql.NullTime
		wentLiveAt    sql.NullTime
		closedAt      sql.NullTime
	)
	err := row.Scan(
		&l.ID, &l.AuctionID, &l.LotNumber, &l.Make, &l.Model, &l.Year, &l.VIN, &condition,
		&startPrice, &reservePrice, &highBidAmount,
		&highBidderID, &highBidID, &l.HasPreBids, &l.Sold,
		&timerDeadline, &wentLiveAt, &closedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctionerrors.NotFoundf("lot")
		}
		return nil, fmt.Errorf("failed to scan lot: %w", err)
	}
	l.Condition = models.LotCondition(condition)
	sp, err := sqlutil.FromSqlNumeric(sql.NullString{String: startPrice, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("failed to parse start price: %w", err)
	}
	l.StartPrice = *sp
	if l.ReservePrice, err = sqlutil.FromSqlNumeric(reservePrice); err != nil {
		return nil, fmt.Errorf("failed to parse reserve price: %w", err)
	}
	if l.HighBidAmount, err = sqlutil.FromSqlNumeric(highBidAmount); err != nil {
		return nil, fmt.Errorf("failed to parse high bid amount: %w", err)
	}
	l.HighBidderID = sqlutil.FromNullUUID(highBidderID)
	l.HighBidID = sqlutil.FromNullUUID(highBidID)
	l.TimerDeadline = sqlutil.FromSqlTime(timerDeadline)
	l.WentLiveAt = sqlutil.FromSqlTime(wentLiveAt)
	l.ClosedAt = sqlutil.FromSqlTime(closedAt)
	return &l, nil
}

var _ Store = (*Repository)(nil)
