package lot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/motorlot/motorlot/internal/auctionerrors"
	"github.com/motorlot/motorlot/internal/models"
)

// Store defines what the lot app layer needs from persistence.
type Store interface {
	GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error)
	GetLotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*models.Lot, error)
	UpdateLotCondition(ctx context.Context, id uuid.UUID, from, to models.LotCondition, at time.Time) (*models.Lot, error)
}

// AuditLogger records lot condition transitions, fire-and-forget.
type AuditLogger interface {
	Record(ctx context.Context, entity string, id uuid.UUID, from, to string)
}

// App handles lot-level business logic that is not driven by the auction
// state machine: queries and the post-sale transitions pushed in by external
// payment/logistics collaborators.
type App struct {
	store Store
	audit AuditLogger
	clock clockwork.Clock
}

// NewApp creates a new lot App.
func NewApp(store Store, audit AuditLogger, clock clockwork.Clock) *App {
	return &App{
		store: store,
		audit: audit,
		clock: clock,
	}
}

// externalTransitions are the downstream conditions collaborators may push.
// The core accepts and persists them; it never computes them.
var externalTransitions = map[models.LotCondition]models.LotCondition{
	models.LotAwaitingPayment: models.LotSold,
	models.LotReadyForPickup:  models.LotAwaitingPayment,
	models.LotCompleted:       models.LotReadyForPickup,
}

// UpdateCondition applies an externally driven post-sale transition.
func (a *App) UpdateCondition(ctx context.Context, lotID uuid.UUID, to models.LotCondition) (*models.Lot, error) {
	from, ok := externalTransitions[to]
	if !ok {
		return nil, auctionerrors.Validationf("condition %s is not externally assignable", to)
	}

	updated, err := a.store.UpdateLotCondition(ctx, lotID, from, to, a.clock.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update lot condition: %w", err)
	}

	a.audit.Record(ctx, "lot", lotID, string(from), string(to))
	log.Info().
		Str("lot_id", lotID.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("lot condition updated by collaborator")

	return updated, nil
}

// GetLot returns a single lot.
func (a *App) GetLot(ctx context.Context, id uuid.UUID) (*models.Lot, error) {
	l, err := a.store.GetLot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return l, nil
}

// ListByAuction returns all lots of an auction ordered by lot number.
func (a *App) ListByAuction(ctx context.Context, auctionID uuid.UUID) ([]*models.Lot, error) {
	lots, err := a.store.GetLotsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	return lots, nil
}
