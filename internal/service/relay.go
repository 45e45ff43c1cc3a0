package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// Sinks the relay forwards journal events to.
const (
	EventStream  = "auction:events"
	EventChannel = "ch:auction"
)

// JournalSource exposes journal events after a sequence number.
type JournalSource interface {
	Since(seq uint64) []domain.Event
	LastSeq() uint64
}

// Relay is the journal outbox. The journal itself is already durable; the
// relay forwards every event past its cursor to the Redis stream and the
// live channel. A failed flush keeps the cursor so the next one retries,
// which makes delivery at-least-once. Pub/sub is best effort.
type Relay struct {
	mu       sync.Mutex
	journal  JournalSource
	bus      domain.SignalBus
	cursor   uint64
	restored uint64
	logger   *slog.Logger
}

// NewRelay creates a Relay. bus may be nil, in which case flushes only
// advance the cursor.
func NewRelay(journal JournalSource, bus domain.SignalBus, logger *slog.Logger) *Relay {
	return &Relay{
		journal: journal,
		bus:     bus,
		logger:  logger.With(slog.String("component", "relay")),
	}
}

// MarkRestored records that events up to seq were replayed from the event
// store at startup. They are streamed again, since a crash may have cut the
// stream short, but are not republished to live subscribers.
func (r *Relay) MarkRestored(seq uint64) {
	r.mu.Lock()
	r.restored = seq
	r.mu.Unlock()
}

// Cursor returns the last delivered sequence number.
func (r *Relay) Cursor() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Flush delivers pending events and returns how many were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := r.journal.Since(r.cursor)
	if len(pending) == 0 {
		return 0, nil
	}

	delivered := 0
	for _, ev := range pending {
		if r.bus != nil {
			raw, err := json.Marshal(ev)
			if err != nil {
				return delivered, fmt.Errorf("relay: marshal event %d: %w", ev.Seq, err)
			}
			if err := r.bus.StreamAppend(ctx, EventStream, raw); err != nil {
				return delivered, fmt.Errorf("relay: stream event %d: %w", ev.Seq, err)
			}
			if ev.Seq > r.restored {
				if err := r.bus.Publish(ctx, EventChannel, raw); err != nil {
					r.logger.WarnContext(ctx, "relay: publish failed",
						slog.Uint64("seq", ev.Seq),
						slog.String("error", err.Error()),
					)
				}
			}
		}
		r.cursor = ev.Seq
		delivered++
	}
	return delivered, nil
}

// Run flushes every interval until ctx is cancelled, then makes one last
// attempt with a short deadline.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := r.Flush(final); err != nil {
				r.logger.Warn("relay: final flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.WarnContext(ctx, "relay: flush failed",
					slog.Uint64("cursor", r.Cursor()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
