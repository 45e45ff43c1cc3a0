package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/shareauction/internal/auction"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

const (
	restorePageSize = 1000
	persistTimeout  = 5 * time.Second
)

// PersistTo returns a journal write-through to store. Each batch gets its
// own deadline because core calls carry no context.
func PersistTo(store domain.EventStore) auction.PersistFunc {
	return func(events []domain.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		return store.Append(ctx, events)
	}
}

// RestoreFromStore replays the persisted journal into a freshly built
// registry and auction and returns the last restored sequence number.
func RestoreFromStore(ctx context.Context, store domain.EventStore, reg *auction.Registry, a *auction.Auction) (uint64, error) {
	var (
		events []domain.Event
		after  uint64
	)
	for {
		page, err := store.Since(ctx, after, restorePageSize)
		if err != nil {
			return 0, fmt.Errorf("service: load journal after %d: %w", after, err)
		}
		events = append(events, page...)
		if len(page) < restorePageSize {
			break
		}
		after = page[len(page)-1].Seq
	}

	if len(events) == 0 {
		return 0, nil
	}
	if err := auction.Restore(events, reg, a); err != nil {
		return 0, fmt.Errorf("service: %w", err)
	}
	return events[len(events)-1].Seq, nil
}
