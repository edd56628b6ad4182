// Package audit records state transitions for operator review. Entries are
// fire-and-forget: a failed audit write never blocks or fails the transition
// it describes.
package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Logger writes audit entries to the structured log.
type Logger struct {
	clock clockwork.Clock
}

// NewLogger creates a new audit Logger.
func NewLogger(clock clockwork.Clock) *Logger {
	return &Logger{clock: clock}
}

// Record logs one transition of an entity.
func (l *Logger) Record(ctx context.Context, entity string, id uuid.UUID, from, to string) {
	log.Info().
		Str("audit", entity).
		Str("id", id.String()).
		Str("from", from).
		Str("to", to).
		Time("at", l.clock.Now().UTC()).
		Msg("state transition")
}
