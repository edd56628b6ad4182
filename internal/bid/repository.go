package bid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/motorlot/motorlot/internal/auction"
	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
	"github.com/motorlot/motorlot/internal/outbox"
	"github.com/motorlot/motorlot/internal/sqlutil"
)

const intentColumns = `id, lot_id, bidder_id, ceiling::text, originating_bid,
	active, registered_at, retired_at`

// Repository is the Postgres-backed bid store. WithLot takes the auction row
// lock before the lot row lock, matching the auction repository's order.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new bid Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithLot runs fn inside a transaction holding both the parent auction row
// lock and the lot row lock.
func (r *Repository) WithLot(ctx context.Context, lotID uuid.UUID, fn func(ctx context.Context, tx Txn) error) error {
	return sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		var auctionID uuid.UUID
		err := tx.QueryRow(ctx, `SELECT auction_id FROM lots WHERE id = $1`, lotID).Scan(&auctionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return auctionerrors.NotFoundf("lot")
			}
			return fmt.Errorf("failed to resolve lot auction: %w", err)
		}

		a, err := auction.LockAuctionRow(ctx, tx, auctionID)
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `SELECT `+auction.LotColumns+` FROM lots WHERE id = $1 FOR UPDATE`, lotID)
		l, err := auction.ScanLotRow(row)
		if err != nil {
			return err
		}
		return fn(ctx, &lotTxn{tx: tx, lot: l, auction: a})
	})
}

// lotTxn implements Txn over a pgx transaction.
type lotTxn struct {
	tx      pgx.Tx
	lot     *models.Lot
	auction *models.Auction
}

func (t *lotTxn) Lot() *models.Lot {
	return t.lot
}

func (t *lotTxn) Auction() *models.Auction {
	return t.auction
}

func (t *lotTxn) InsertBid(ctx context.Context, b *models.Bid) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bids (id, lot_id, bidder_id, amount, kind, status, placed_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		b.ID, b.LotID, b.BidderID, b.Amount.String(), string(b.Kind), string(b.Status), b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

func (t *lotTxn) SetBidStatus(ctx context.Context, bidID uuid.UUID, status models.BidStatus) error {
	_, err := t.tx.Exec(ctx, `UPDATE bids SET status = $2 WHERE id = $1`, bidID, string(status))
	if err != nil {
		return fmt.Errorf("failed to set bid status: %w", err)
	}
	return nil
}

func (t *lotTxn) SaveLot(ctx context.Context, l *models.Lot) error {
	return auction.SaveLotRow(ctx, t.tx, l)
}

func (t *lotTxn) SaveAuction(ctx context.Context, a *models.Auction) error {
	return auction.SaveAuctionRow(ctx, t.tx, a)
}

func (t *lotTxn) ActiveIntents(ctx context.Context) ([]*models.ProxyBidIntent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+intentColumns+` FROM proxy_intents
		 WHERE lot_id = $1 AND active ORDER BY registered_at`, t.lot.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list proxy intents: %w", err)
	}
	defer rows.Close()

	var out []*models.ProxyBidIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (t *lotTxn) InsertIntent(ctx context.Context, in *models.ProxyBidIntent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO proxy_intents (id, lot_id, bidder_id, ceiling, originating_bid, active, registered_at, retired_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)`,
		in.ID, in.LotID, in.BidderID, in.Ceiling.String(), sqlutil.ToNullUUID(in.OriginatingBid),
		in.Active, in.RegisteredAt, sqlutil.ToSqlTime(in.RetiredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert proxy intent: %w", err)
	}
	return nil
}

func (t *lotTxn) SaveIntent(ctx context.Context, in *models.ProxyBidIntent) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE proxy_intents SET ceiling = $2::numeric, originating_bid = $3, active = $4, retired_at = $5
		WHERE id = $1`,
		in.ID, in.Ceiling.String(), sqlutil.ToNullUUID(in.OriginatingBid),
		in.Active, sqlutil.ToSqlTime(in.RetiredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save proxy intent: %w", err)
	}
	return nil
}

func (t *lotTxn) AppendEvent(ctx context.Context, eventType string, payload any) error {
	return outbox.InsertTx(ctx, t.tx, t.lot.AuctionID, eventType, payload)
}

func scanIntent(row pgx.Row) (*models.ProxyBidIntent, error) {
	var (
		in          models.ProxyBidIntent
		ceiling     string
		originating uuid.NullUUID
		retiredAt   sql.NullTime
	)
	err := row.Scan(&in.ID, &in.LotID, &in.BidderID, &ceiling, &originating,
		&in.Active, &in.RegisteredAt, &retiredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auctionerrors.NotFoundf("proxy intent")
		}
		return nil, fmt.Errorf("failed to scan proxy intent: %w", err)
	}
	c, err := sqlutil.FromSqlNumeric(sql.NullString{String: ceiling, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy ceiling: %w", err)
	}
	in.Ceiling = *c
	in.OriginatingBid = sqlutil.FromNullUUID(originating)
	in.RetiredAt = sqlutil.FromSqlTime(retiredAt)
	return &in, nil
}
