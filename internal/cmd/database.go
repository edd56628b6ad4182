package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/motorlot/motorlot/internal/dbconfig"
)

// setupDatabase opens both database handles: a pgx pool for the domain
// repositories and a database/sql handle for the outbox relay, which needs
// lib/pq's LISTEN/NOTIFY support.
func setupDatabase(ctx context.Context) (*pgxpool.Pool, *sql.DB, dbconfig.Config, error) {
	cfg := dbconfig.NewConfigFromEnv()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, cfg, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, cfg, fmt.Errorf("failed to ping database: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		pool.Close()
		return nil, nil, cfg, fmt.Errorf("failed to open outbox connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		pool.Close()
		db.Close()
		return nil, nil, cfg, fmt.Errorf("failed to ping outbox connection: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return pool, db, cfg, nil
}
