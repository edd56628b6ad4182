// Package eligibility answers whether a bidder may bid on a lot. The check is
// synchronous and sits on the bid acceptance path.
package eligibility

import (
	"context"

	"github.com/google/uuid"
)

// AllowAll approves every bidder. It is the default until a registration or
// credit-check backend is plugged in.
type AllowAll struct{}

// NewAllowAll creates the permissive checker.
func NewAllowAll() *AllowAll {
	return &AllowAll{}
}

func (AllowAll) CanBid(ctx context.Context, bidderID, lotID uuid.UUID) (bool, error) {
	return true, nil
}

// Denylist blocks a fixed set of bidders and approves everyone else. Useful
// for suspending accounts without a full identity backend.
type Denylist struct {
	blocked map[uuid.UUID]struct{}
}

// NewDenylist creates a checker that rejects the given bidder ids.
func NewDenylist(bidderIDs ...uuid.UUID) *Denylist {
	blocked := make(map[uuid.UUID]struct{}, len(bidderIDs))
	for _, id := range bidderIDs {
		blocked[id] = struct{}{}
	}
	return &Denylist{blocked: blocked}
}

func (d *Denylist) CanBid(ctx context.Context, bidderID, lotID uuid.UUID) (bool, error) {
	_, blocked := d.blocked[bidderID]
	return !blocked, nil
}
