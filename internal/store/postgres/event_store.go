package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. Rows are keyed
// by journal sequence and deduplicated on event id.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes a batch of journal events in one transaction. Events that
// are already stored are skipped, so redelivery is harmless.
func (s *EventStore) Append(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	const query = `
		INSERT INTO auction_events (seq, id, kind, actor, at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(query, int64(e.Seq), e.ID, string(e.Kind), e.Actor.Hex(), e.At, []byte(e.Payload))
	}
	br := tx.SendBatch(ctx, batch)
	for _, e := range events {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: append event %d: %w", e.Seq, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close append batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit append: %w", err)
	}
	return nil
}

// Since returns up to limit events with seq > afterSeq in sequence order.
// A non-positive limit returns every remaining event.
func (s *EventStore) Since(ctx context.Context, afterSeq uint64, limit int) ([]domain.Event, error) {
	query := `SELECT seq, id::text, kind, actor, at, payload FROM auction_events WHERE seq > $1 ORDER BY seq`
	args := []any{int64(afterSeq)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events after %d: %w", afterSeq, err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			seq     int64
			id      string
			kind    string
			actor   string
			at      time.Time
			payload []byte
		)
		if err := rows.Scan(&seq, &id, &kind, &actor, &at, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, domain.Event{
			Seq:     uint64(seq),
			ID:      id,
			Kind:    domain.EventKind(kind),
			Actor:   common.HexToAddress(actor),
			At:      at.UTC(),
			Payload: payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

// LastSeq returns the highest stored sequence number, or 0 when empty.
func (s *EventStore) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM auction_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: last event seq: %w", err)
	}
	return uint64(seq), nil
}

var _ domain.EventStore = (*EventStore)(nil)
