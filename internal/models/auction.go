package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionStatus defines the lifecycle status of an auction.
type AuctionStatus string

const (
	AuctionStatusDraft     AuctionStatus = "DRAFT"
	AuctionStatusScheduled AuctionStatus = "SCHEDULED"
	AuctionStatusReady     AuctionStatus = "READY"
	AuctionStatusRunning   AuctionStatus = "RUNNING"
	AuctionStatusEnded     AuctionStatus = "ENDED"
	AuctionStatusCancelled AuctionStatus = "CANCELLED"
	AuctionStatusSettled   AuctionStatus = "SETTLED"
)

// Terminal reports whether no further lifecycle transitions are possible
// except Ended -> Settled.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusCancelled || s == AuctionStatusSettled
}

// AuctionSettings holds JSONB timer and bidding configuration for an auction.
type AuctionSettings struct {
	TimerSeconds      int             `json:"timer_seconds"`
	MinBidIncrement   decimal.Decimal `json:"min_bid_increment"`
	MaxLotDurationMin int             `json:"max_lot_duration_min"`
}

// Auction represents one scheduled live vehicle auction event.
type Auction struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	Location        string          `json:"location"`
	Status          AuctionStatus   `json:"status"`
	Settings        AuctionSettings `json:"settings"`
	StartTimeUTC    time.Time       `json:"start_time_utc"`
	EndTimeUTC      time.Time       `json:"end_time_utc"`
	PreBidStartUTC  *time.Time      `json:"pre_bid_start_utc,omitempty"`
	PreBidEndUTC    *time.Time      `json:"pre_bid_end_utc,omitempty"`
	CurrentLotID    *uuid.UUID      `json:"current_lot_id,omitempty"` // non-nil only while Running
	ExtendedCount   int             `json:"extended_count"`
	TotalLots       int             `json:"total_lots"`
	TotalSold       int             `json:"total_sold"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// PreBiddingOpen reports whether pre-bids may be accepted at t.
func (a *Auction) PreBiddingOpen(t time.Time) bool {
	if a.PreBidStartUTC == nil || a.PreBidEndUTC == nil {
		return false
	}
	return !t.Before(*a.PreBidStartUTC) && t.Before(*a.PreBidEndUTC)
}

// MaxLotDuration returns the per-lot duration cap.
func (a *Auction) MaxLotDuration() time.Duration {
	return time.Duration(a.Settings.MaxLotDurationMin) * time.Minute
}

// TimerDuration returns the per-lot countdown length.
func (a *Auction) TimerDuration() time.Duration {
	return time.Duration(a.Settings.TimerSeconds) * time.Second
}
