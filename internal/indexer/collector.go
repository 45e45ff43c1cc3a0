// Package indexer rebuilds the ranked investor list off the core. It
// replays bid.revealed events from the Redis stream, orders them by the
// ranking contract and submits the result through LoadInvestors.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/auction"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

// DefaultStream is the Redis stream the relay mirrors the journal into.
const DefaultStream = "auction:events"

// Collector pages through the event stream and keeps revealed bids.
type Collector struct {
	bus    domain.SignalBus
	stream string
	batch  int
}

// NewCollector creates a Collector reading stream in pages of batch.
func NewCollector(bus domain.SignalBus, stream string, batch int) *Collector {
	if stream == "" {
		stream = DefaultStream
	}
	if batch <= 0 {
		batch = 500
	}
	return &Collector{bus: bus, stream: stream, batch: batch}
}

// Collect reads the whole stream from the beginning and returns every
// revealed bid once. The relay delivers at least once, so duplicate events
// are dropped by event id.
func (c *Collector) Collect(ctx context.Context) ([]domain.RevealedBid, error) {
	var (
		bids   []domain.RevealedBid
		seen   = make(map[string]struct{})
		lastID = "0"
	)

	for {
		msgs, err := c.bus.StreamRead(ctx, c.stream, lastID, c.batch)
		if err != nil {
			return nil, fmt.Errorf("indexer: read %s after %s: %w", c.stream, lastID, err)
		}
		if len(msgs) == 0 {
			return bids, nil
		}

		for _, msg := range msgs {
			lastID = msg.ID

			var ev domain.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return nil, fmt.Errorf("indexer: decode stream entry %s: %w", msg.ID, err)
			}
			if ev.Kind != domain.EventBidRevealed {
				continue
			}
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}

			var p domain.BidRevealedPayload
			if err := ev.Decode(&p); err != nil {
				return nil, fmt.Errorf("indexer: %w", err)
			}
			bids = append(bids, p.RevealedBid)
		}

		if len(msgs) < c.batch {
			return bids, nil
		}
	}
}

// Sort returns a copy of bids in ranking order.
func Sort(bids []domain.RevealedBid) []domain.RevealedBid {
	out := make([]domain.RevealedBid, len(bids))
	copy(out, bids)
	auction.SortInvestors(out)
	return out
}

// Columns reshapes ranked bids into the four LoadInvestors columns.
func Columns(bids []domain.RevealedBid) domain.InvestorColumns {
	cols := domain.InvestorColumns{
		Addresses:  make([]common.Address, len(bids)),
		Timestamps: make([]time.Time, len(bids)),
		Shares:     make([]uint64, len(bids)),
		Prices:     make([]*uint256.Int, len(bids)),
	}
	for i, b := range bids {
		cols.Addresses[i] = b.Bidder
		cols.Timestamps[i] = b.Timestamp
		cols.Shares[i] = b.Shares
		cols.Prices[i] = new(uint256.Int).Set(b.Price)
	}
	return cols
}
