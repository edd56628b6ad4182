package auctionerrors

import (
	"errors"
	"fmt"
)

// Category sentinels. Every specific error below wraps exactly one category so
// callers can match either the specific failure or its class with errors.Is.
var (
	// ErrValidation marks bad input rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrStateConflict marks a request that is legal input but illegal in the
	// aggregate's current state. No state change; safe to retry after re-read.
	ErrStateConflict = errors.New("state conflict")
	// ErrConcurrency marks transient lock/lease contention. Retry next tick.
	ErrConcurrency = errors.New("concurrency conflict")
	// ErrNotFound marks an unknown auction/lot/bid id. Terminal for the request.
	ErrNotFound = errors.New("not found")
)

// Specific failures surfaced by the bidding core.
var (
	ErrLotNotLive        = fmt.Errorf("%w: lot is not live", ErrStateConflict)
	ErrPreBidClosed      = fmt.Errorf("%w: pre-bid window is closed", ErrStateConflict)
	ErrBidTooLow         = fmt.Errorf("%w: bid amount too low", ErrValidation)
	ErrSelfOutbid        = fmt.Errorf("%w: bidder already holds the high bid", ErrStateConflict)
	ErrBidderIneligible  = fmt.Errorf("%w: bidder is not eligible for this lot", ErrValidation)
	ErrAuctionNotRunning = fmt.Errorf("%w: auction is not running", ErrStateConflict)
	ErrLeaseHeld         = fmt.Errorf("%w: auction lease held by another worker", ErrConcurrency)
)

// Validationf builds an ErrValidation with detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StateConflictf builds an ErrStateConflict with detail.
func StateConflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}

// NotFoundf builds an ErrNotFound with detail.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
