package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/motorlot/motorlot/internal/gateway"
	"github.com/motorlot/motorlot/internal/outbox"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	defaults, err := cfg.auctionDefaults()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid auction defaults")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, db, dbCfg, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	defer db.Close()

	natsURL := cfg.NATS.URL
	if natsURL == "" {
		natsURL = getEnv("NATS_URL", nats.DefaultURL)
	}

	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Fatal().Err(err).Str("url", natsURL).Msg("failed to connect to NATS")
	}
	defer nc.Close()

	services := setupServices(pool, db, nc, cfg, defaults)

	// Outbox relay: staged events go to JetStream, woken by NOTIFY.
	publisherCfg := outbox.DefaultJetStreamConfig()
	publisherCfg.URL = natsURL
	publisher, err := outbox.NewJetStreamPublisher(publisherCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create outbox publisher")
	}
	defer publisher.Close()

	worker := outbox.NewWorker(db, publisher, outbox.DefaultConfig())
	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dbCfg.DSN()
	listener, err := outbox.NewListener(worker, listenerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create outbox listener")
	}

	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Error().Err(err).Msg("outbox listener stopped")
		}
	}()

	// WebSocket fan-out: JetStream consumer feeding the connection manager.
	consumerCfg := gateway.DefaultConsumerConfig()
	consumerCfg.URL = natsURL
	eventConsumer, err := gateway.NewEventConsumer(services.ConnMgr, consumerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway event consumer")
	}
	defer eventConsumer.Stop()

	go services.ConnMgr.Start(ctx)
	go func() {
		if err := eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway event consumer stopped")
		}
	}()

	// Scheduler: drives every timed auction transition.
	go func() {
		if err := services.Scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	server := setupServer(services, cfg)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	cancel()
	// Give the scheduler and relay time to finish in-flight work.
	time.Sleep(2 * time.Second)

	log.Info().Msg("shutdown complete")
}
