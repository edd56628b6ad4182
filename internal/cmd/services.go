package main

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"

	"github.com/motorlot/motorlot/internal/api"
	"github.com/motorlot/motorlot/internal/auction"
	"github.com/motorlot/motorlot/internal/audit"
	"github.com/motorlot/motorlot/internal/bid"
	"github.com/motorlot/motorlot/internal/eligibility"
	"github.com/motorlot/motorlot/internal/gateway"
	"github.com/motorlot/motorlot/internal/lot"
	"github.com/motorlot/motorlot/internal/models"
	"github.com/motorlot/motorlot/internal/notify"
	"github.com/motorlot/motorlot/internal/scheduler"
)

// Services holds the wired application components.
type Services struct {
	Auctions  *auction.App
	Lots      *lot.App
	Bids      *bid.Ledger
	Scheduler *scheduler.Scheduler
	API       *api.Handler
	Gateway   *gateway.WebSocketHandler
	ConnMgr   *gateway.ConnectionManager
}

// setupServices wires the dependency chain: repositories over the pgx pool,
// apps over the repositories, then the scheduler and HTTP surface over the
// apps.
func setupServices(pool *pgxpool.Pool, db *sql.DB, nc *nats.Conn, cfg *Config, defaults models.AuctionSettings) *Services {
	clock := clockwork.NewRealClock()
	auditLog := audit.NewLogger(clock)

	// Bids
	bidRepo := bid.NewRepository(pool)
	bidLedger := bid.NewLedger(bidRepo, eligibility.NewAllowAll(), auditLog, clock)

	// Auctions. The bid ledger doubles as the proxy resolver fired when a lot
	// goes live.
	auctionRepo := auction.NewRepository(pool)
	var notifier auction.WinnerNotifier = notify.LogNotifier{}
	if nc != nil {
		notifier = notify.NewNATSNotifier(nc, cfg.NATS.WinnerSubject)
	}
	auctionApp := auction.NewApp(auctionRepo, auditLog, notifier, bidLedger, clock, defaults)

	// Lots
	lotRepo := lot.NewRepository(pool)
	lotApp := lot.NewApp(lotRepo, auditLog, clock)

	// Scheduler
	ss := cfg.schedulerConfig()
	sched := scheduler.New(scheduler.NewRepository(pool), auctionApp, scheduler.Config{
		PollInterval:   ss.PollInterval,
		BatchSize:      ss.BatchSize,
		NumWorkers:     ss.NumWorkers,
		LeaseTTL:       ss.LeaseTTL,
		CatchUpOnStart: ss.CatchUpOnStart,
	}, clock)

	// WebSocket gateway
	connMgr := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	return &Services{
		Auctions:  auctionApp,
		Lots:      lotApp,
		Bids:      bidLedger,
		Scheduler: sched,
		API:       api.NewHandler(auctionApp, lotApp, bidLedger),
		Gateway:   gateway.NewWebSocketHandler(connMgr),
		ConnMgr:   connMgr,
	}
}
