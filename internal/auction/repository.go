package auction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
	"github.com/motorlot/motorlot/internal/outbox"
	"github.com/motorlot/motorlot/internal/sqlutil"
)

const AuctionColumns = `id, name, location, status, settings,
	start_time_utc, end_time_utc, pre_bid_start_utc, pre_bid_end_utc,
	current_lot_id, extended_count, total_lots, total_sold, cancel_reason,
	started_at, ended_at, created_at, updated_at`

const LotColumns = `id, auction_id, lot_number, make, model, year, vin, condition,
	start_price::text, reserve_price::text, high_bid_amount::text,
	high_bidder_id, high_bid_id, has_pre_bids, sold,
	timer_deadline, went_live_at, closed_at, created_at, updated_at`

// Repository is the Postgres-backed auction store. WithAuction serializes all
// per-auction work on the auction row lock.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new auction Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateAuction(ctx context.Context, a *models.Auction) error {
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal auction settings: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO auctions (`+AuctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		a.ID, a.Name, a.Location, string(a.Status), settings,
		a.StartTimeUTC, a.EndTimeUTC, sqlutil.ToSqlTime(a.PreBidStartUTC), sqlutil.ToSqlTime(a.PreBidEndUTC),
		sqlutil.ToNullUUID(a.CurrentLotID), a.ExtendedCount, a.TotalLots, a.TotalSold, sqlutil.ToSqlString(a.CancelReason),
		sqlutil.ToSqlTime(a.StartedAt), sqlutil.ToSqlTime(a.EndedAt), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

func (r *Repository) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+AuctionColumns+` FROM auctions WHERE id = $1`, id)
	return ScanAuctionRow(row)
}

func (r *Repository) CreateLot(ctx context.Context, l *models.Lot) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lots (id, auction_id, lot_number, make, model, year, vin, condition,
			start_price, reserve_price, high_bid_amount, high_bidder_id, high_bid_id,
			has_pre_bids, sold, timer_deadline, went_live_at, closed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric,
			$12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		l.ID, l.AuctionID, l.LotNumber, l.Make, l.Model, l.Year, l.VIN, string(l.Condition),
		l.StartPrice.String(), sqlutil.ToSqlNumeric(l.ReservePrice), sqlutil.ToSqlNumeric(l.HighBidAmount),
		sqlutil.ToNullUUID(l.HighBidderID), sqlutil.ToNullUUID(l.HighBidID),
		l.HasPreBids, l.Sold, sqlutil.ToSqlTime(l.TimerDeadline), sqlutil.ToSqlTime(l.WentLiveAt),
		sqlutil.ToSqlTime(l.ClosedAt), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

// WithAuction runs fn inside a transaction holding the auction row lock.
func (r *Repository) WithAuction(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Txn) error) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		a, err := LockAuctionRow(ctx, tx, id)
		if err != nil {
			return err
		}
		return fn(ctx, &pgxTxn{tx: tx, auction: a})
	})
}

func LockAuctionRow(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Auction, error) {
	row := tx.QueryRow(ctx, `SELECT `+AuctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id)
	return ScanAuctionRow(row)
}

// pgxTxn implements Txn over a pgx transaction.
type pgxTxn struct {
	tx      pgx.Tx
	auction *models.Auction
}

func (t *pgxTxn) Auction() *models.Auction {
	return t.auction
}

func (t *pgxTxn) Lots(ctx context.Context) ([]*models.Lot, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+LotColumns+` FROM lots WHERE auction_id = $1 ORDER BY lot_number`, t.auction.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	defer rows.Close()

	var out []*models.Lot
	for rows.Next() {
		l, err := ScanLotRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgxTxn) SaveAuction(ctx context.Context, a *models.Auction) error {
	return SaveAuctionRow(ctx, t.tx, a)
}

func (t *pgxTxn) SaveLot(ctx context.Context, l *models.Lot) error {
	return SaveLotRow(ctx, t.tx, l)
}

func (t *pgxTxn) SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE bids SET status = $2 WHERE id = $1`, bidID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set bid status: %w", err)
	}
	return nil
}

func (t *pgxTxn) CancelOpenBids(ctx context.Context, lotID uuid.UUID) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE bids SET status = $2 WHERE lot_id = $1 AND status = $3`,
		lotID, string(models.BidStatusCancelled), string(models.BidStatusActive))
	if err != nil {
		return fmt.Errorf("failed to cancel open bids: %w", err)
	}
	return nil
}

func (t *pgxTxn) RetireProxyIntents(ctx context.Context, lotID uuid.UUID, at time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE proxy_intents SET active = FALSE, retired_at = $2 WHERE lot_id = $1 AND active`,
		lotID, at)
	if err != nil {
		return fmt.Errorf("failed to retire proxy intents: %w", err)
	}
	return nil
}

func (t *pgxTxn) AppendEvent(ctx context.Context, eventType string, payload any) error {
	return outbox.InsertTx(ctx, t.tx, t.auction.ID, eventType, payload)
}

// Row-level helpers shared by the repository and the transaction wrapper.

func SaveAuctionRow(ctx context.Context, tx pgx.Tx, a *models.Auction) error {
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal auction settings: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE auctions SET
			name = $2, location = $3, status = $4, settings = $5,
			start_time_utc = $6, end_time_utc = $7, pre_bid_start_utc = $8, pre_bid_end_utc = $9,
			current_lot_id = $10, extended_count = $11, total_lots = $12, total_sold = $13,
			cancel_reason = $14, started_at = $15, ended_at = $16, updated_at = $17
		WHERE id = $1`,
		a.ID, a.Name, a.Location, string(a.Status), settings,
		a.StartTimeUTC, a.EndTimeUTC, sqlutil.ToSqlTime(a.PreBidStartUTC), sqlutil.ToSqlTime(a.PreBidEndUTC),
		sqlutil.ToNullUUID(a.CurrentLotID), a.ExtendedCount, a.TotalLots, a.TotalSold,
		sqlutil.ToSqlString(a.CancelReason), sqlutil.ToSqlTime(a.StartedAt), sqlutil.ToSqlTime(a.EndedAt), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save auction: %w", err)
	}
	return nil
}

func SaveLotRow(ctx context.Context, tx pgx.Tx, l *models.Lot) error {
	_, err := tx.Exec(ctx, `
		UPDATE lots SET
			condition = $2, start_price = $3::numeric, reserve_price = $4::numeric,
			high_bid_amount = $5::numeric, high_bidder_id = $6, high_bid_id = $7,
			has_pre_bids = $8, sold = $9, timer_deadline = $10, went_live_at = $11,
			closed_at = $12, updated_at = $13
		WHERE id = $1`,
		l.ID, string(l.Condition), l.StartPrice.String(), sqlutil.ToSqlNumeric(l.ReservePrice),
		sqlutil.ToSqlNumeric(l.HighBidAmount), sqlutil.ToNullUUID(l.HighBidderID), sqlutil.ToNullUUID(l.HighBidID),
		l.HasPreBids, l.Sold, sqlutil.ToSqlTime(l.TimerDeadline), sqlutil.ToSqlTime(l.WentLiveAt),
		sqlutil.ToSqlTime(l.ClosedAt), l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save lot: %w", err)
	}
	return nil
}

func ScanAuctionRow(row pgx.Row) (*models.Auction, error) {
	var (
		a            models.Auction
		status       string
		settings     []byte
		preStart     sql.NullTime
		preEnd       sql.NullTime
		currentLot   uuid.NullUUID
		cancelReason sql.NullString
		startedAt    sql.NullTime
		endedAt      sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.Name, &a.Location, &status, &settings,
		&a.StartTimeUTC, &a.EndTimeUTC, &preStart, &preEnd,
		&currentLot, &a.ExtendedCount, &a.TotalLots, &a.TotalSold, &cancelReason,
		&startedAt, &endedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctionerrors.NotFoundf("auction")
		}
		return nil, fmt.Errorf("failed to scan auction: %w", err)
	}
	if err := json.Unmarshal(settings, &a.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auction settings: %w", err)
	}
	a.Status = models.AuctionStatus(status)
	a.PreBidStartUTC = sqlutil.FromSqlTime(preStart)
	a.PreBidEndUTC = sqlutil.FromSqlTime(preEnd)
	a.CurrentLotID = sqlutil.FromNullUUID(currentLot)
	a.CancelReason = sqlutil.FromSqlStringPtr(cancelReason)
	a.StartedAt = sqlutil.FromSqlTime(startedAt)
	a.EndedAt = sqlutil.FromSqlTime(endedAt)
	return &a, nil
}

func ScanLotRow(row pgx.Row) (*models.Lot, error) {
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
