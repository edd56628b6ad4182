package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ListenerConfig holds LISTEN/NOTIFY settings for low-latency relaying.
type ListenerConfig struct {
	DatabaseURL      string
	NotifyChannel    string
	FallbackInterval time.Duration
	PingInterval     time.Duration
}

// DefaultListenerConfig returns listener defaults.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    "auction_outbox_events",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// Listener wakes the outbox worker the moment a NOTIFY arrives from the
// insert trigger, with a fallback poll for notifications missed across
// reconnects.
type Listener struct {
	listener *pq.Listener
	worker   *Worker
	cfg      ListenerConfig
}

// NewListener creates a LISTEN/NOTIFY accelerator for the given worker.
func NewListener(worker *Worker, cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("outbox listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.NotifyChannel, err)
	}
	return &Listener{listener: l, worker: worker, cfg: cfg}, nil
}

// Run blocks until ctx is cancelled, draining notifications into worker runs.
func (l *Listener) Run(ctx context.Context) error {
	defer func() {
		if err := l.listener.Close(); err != nil {
			log.Error().Err(err).Msg("close outbox listener")
		}
	}()

	fallback := time.NewTicker(l.cfg.FallbackInterval)
	defer fallback.Stop()
	ping := time.NewTicker(l.cfg.PingInterval)
	defer ping.Stop()

	log.Info().Str("channel", l.cfg.NotifyChannel).Msg("outbox listener started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-l.listener.Notify:
			if n == nil {
				// Connection reset; the fallback poll covers the gap.
				continue
			}
			l.worker.ProcessOutbox(ctx)
		case <-fallback.C:
			l.worker.ProcessOutbox(ctx)
		case <-ping.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("outbox listener ping failed")
			}
		}
	}
}
