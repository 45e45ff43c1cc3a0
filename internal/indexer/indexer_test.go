package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type memBus struct {
	entries []domain.StreamMessage
	reads   int
}

func (b *memBus) add(t *testing.T, ev domain.Event) {
	t.Helper()
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	b.entries = append(b.entries, domain.StreamMessage{
		ID:      fmt.Sprintf("%d-0", len(b.entries)+1),
		Payload: raw,
	})
}

func (b *memBus) Publish(context.Context, string, []byte) error { return nil }

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.reads++
	start := 0
	if lastID != "0" {
		for i, e := range b.entries {
			if e.ID == lastID {
				start = i + 1
			}
		}
	}
	end := start + count
	if end > len(b.entries) {
		end = len(b.entries)
	}
	return b.entries[start:end], nil
}

func revealedEvent(t *testing.T, id string, seq uint64, bidder common.Address, at time.Time, shares, price uint64) domain.Event {
	t.Helper()
	raw, err := json.Marshal(domain.BidRevealedPayload{
		RevealedBid: domain.RevealedBid{Seq: seq, Bidder: bidder, Timestamp: at, Shares: shares, Price: uint256.NewInt(price)},
	})
	require.NoError(t, err)
	return domain.Event{Seq: seq, ID: id, Kind: domain.EventBidRevealed, At: at, Payload: raw}
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func seededBus(t *testing.T) *memBus {
	bus := &memBus{}
	bus.add(t, domain.Event{Seq: 1, ID: "e1", Kind: domain.EventBidPlaced, Payload: json.RawMessage(`{}`)})
	bus.add(t, revealedEvent(t, "e2", 2, alice, t0, 4, 3))
	bus.add(t, revealedEvent(t, "e3", 3, bob, t0.Add(time.Minute), 3, 5))
	bus.add(t, domain.Event{Seq: 4, ID: "e4", Kind: domain.EventEscrowDeposited, Payload: json.RawMessage(`{}`)})
	bus.add(t, revealedEvent(t, "e3", 3, bob, t0.Add(time.Minute), 3, 5))
	bus.add(t, revealedEvent(t, "e5", 5, carol, t0, 1, 3))
	return bus
}

func TestCollectorPagesAndDedups(t *testing.T) {
	bus := seededBus(t)
	bids, err := NewCollector(bus, "", 2).Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, bids, 3)
	assert.Equal(t, []common.Address{alice, bob, carol}, []common.Address{bids[0].Bidder, bids[1].Bidder, bids[2].Bidder})
	assert.Equal(t, 4, bus.reads)
}

func TestCollectorRejectsGarbage(t *testing.T) {
	bus := &memBus{entries: []domain.StreamMessage{{ID: "1-0", Payload: []byte("{")}}}
	_, err := NewCollector(bus, "", 10).Collect(context.Background())
	require.Error(t, err)
}

func TestSortAndColumns(t *testing.T) {
	bids := []domain.RevealedBid{
		{Seq: 1, Bidder: alice, Timestamp: t0.Add(time.Minute), Shares: 4, Price: uint256.NewInt(3)},
		{Seq: 2, Bidder: bob, Timestamp: t0, Shares: 3, Price: uint256.NewInt(5)},
		{Seq: 3, Bidder: carol, Timestamp: t0, Shares: 1, Price: uint256.NewInt(3)},
	}
	ranked := Sort(bids)
	assert.Equal(t, alice, bids[0].Bidder, "input left untouched")

	cols := Columns(ranked)
	assert.Equal(t, 3, cols.Len())
	assert.Equal(t, []common.Address{bob, carol, alice}, cols.Addresses)
	assert.Equal(t, []uint64{3, 1, 4}, cols.Shares)
	assert.Equal(t, "5", cols.Prices[0].Dec())
	assert.True(t, cols.Timestamps[2].Equal(t0.Add(time.Minute)))
}

type fakeLoader struct {
	status     domain.AuctionStatus
	statusErr  error
	loaded     *domain.InvestorColumns
	violations []domain.OrderViolation
	// onStatus runs before the nth Status call returns, counting from 1.
	onStatus func(n int)
	calls    int
}

func (f *fakeLoader) Status(context.Context) (domain.AuctionStatus, error) {
	f.calls++
	if f.onStatus != nil {
		f.onStatus(f.calls)
	}
	return f.status, f.statusErr
}

func (f *fakeLoader) LoadInvestors(_ context.Context, cols domain.InvestorColumns) error {
	f.loaded = &cols
	return nil
}

func (f *fakeLoader) VerifyOrder(context.Context) ([]domain.OrderViolation, error) {
	return f.violations, nil
}

type fakeLocks struct {
	held     map[string]bool
	released int
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.held[key] = false
		l.released++
	}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobRun(t *testing.T) {
	loader := &fakeLoader{status: domain.AuctionStatus{Phase: domain.PhaseClaim, RevealedBids: 3}}
	locks := &fakeLocks{held: map[string]bool{}}
	job := NewJob(NewCollector(seededBus(t), "", 100), loader, locks, JobConfig{}, discardLogger())

	res, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Bids)
	assert.Empty(t, res.Violations)

	require.NotNil(t, loader.loaded)
	assert.Equal(t, []common.Address{bob, alice, carol}, loader.loaded.Addresses)
	assert.Equal(t, 1, locks.released)
	assert.False(t, locks.held[LockKey])
}

func TestJobRunGuards(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.AuctionStatus
		lockSet bool
		wantErr error
	}{
		{"reveal phase", domain.AuctionStatus{Phase: domain.PhaseReveal}, false, domain.ErrPhaseViolation},
		{"distributed", domain.AuctionStatus{Phase: domain.PhaseClaim, Distributed: true}, false, ErrAlreadyDistributed},
		{"lock held", domain.AuctionStatus{Phase: domain.PhaseClaim, RevealedBids: 3}, true, domain.ErrLockHeld},
		{"stream behind", domain.AuctionStatus{Phase: domain.PhaseClaim, RevealedBids: 5}, false, ErrStreamBehind},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loader := &fakeLoader{status: tc.status}
			locks := &fakeLocks{held: map[string]bool{LockKey: tc.lockSet}}
			job := NewJob(NewCollector(seededBus(t), "", 100), loader, locks, JobConfig{}, discardLogger())

			_, err := job.Run(context.Background())
			require.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, loader.loaded)
		})
	}
}

func TestRunWhenReadyStopsWhenDistributed(t *testing.T) {
	loader := &fakeLoader{status: domain.AuctionStatus{Phase: domain.PhaseClaim, Distributed: true}}
	job := NewJob(NewCollector(&memBus{}, "", 10), loader, nil, JobConfig{}, discardLogger())
	require.NoError(t, job.RunWhenReady(context.Background()))
	assert.Nil(t, loader.loaded)
}

func TestRunWhenReadyWaitsForStreamToCatchUp(t *testing.T) {
	bus := seededBus(t)
	dave := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	loader := &fakeLoader{status: domain.AuctionStatus{Phase: domain.PhaseClaim, RevealedBids: 4}}
	loader.onStatus = func(n int) {
		if n == 3 {
			bus.add(t, revealedEvent(t, "e6", 6, dave, t0, 2, 9))
		}
	}
	job := NewJob(NewCollector(bus, "", 100), loader, nil, JobConfig{RetryInterval: time.Millisecond}, discardLogger())

	require.NoError(t, job.RunWhenReady(context.Background()))
	require.NotNil(t, loader.loaded)
	assert.Equal(t, 4, loader.loaded.Len())
	assert.Equal(t, dave, loader.loaded.Addresses[0])
}

func TestRunWhenReadyHonoursContext(t *testing.T) {
	loader := &fakeLoader{status: domain.AuctionStatus{Phase: domain.PhaseReveal, RevealEnds: time.Now().Add(time.Hour)}}
	job := NewJob(NewCollector(&memBus{}, "", 10), loader, nil, JobConfig{}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, job.RunWhenReady(ctx), context.DeadlineExceeded)
}

func TestHTTPLoaderSignsRequests(t *testing.T) {
	admin, err := crypto.GenerateSigner()
	require.NoError(t, err)

	var got domain.InvestorColumns
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		caller, err := crypto.VerifyRequest(r.Header, r.Method, r.URL.Path, r.URL.RawQuery, body, time.Now(), time.Minute)
		if err != nil || caller != admin.Address() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case PathInvestors:
			_ = json.Unmarshal(body, &got)
			w.WriteHeader(http.StatusNoContent)
		case PathVerifyOrder:
			_ = json.NewEncoder(w).Encode(domain.OrderReport{
				Valid:      false,
				Violations: []domain.OrderViolation{{Index: 1, Reason: "out of order"}},
			})
		case PathStatus:
			_ = json.NewEncoder(w).Encode(domain.AuctionStatus{Phase: domain.PhaseClaim, TotalSupply: 10})
		}
	}))
	defer srv.Close()

	loader := NewHTTPLoader(srv.URL+"/", admin)
	ctx := context.Background()

	st, err := loader.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseClaim, st.Phase)
	assert.Equal(t, uint64(10), st.TotalSupply)

	cols := Columns([]domain.RevealedBid{{Seq: 1, Bidder: alice, Timestamp: t0, Shares: 4, Price: uint256.NewInt(7)}})
	require.NoError(t, loader.LoadInvestors(ctx, cols))
	require.Equal(t, 1, got.Len())
	assert.Equal(t, alice, got.Addresses[0])
	assert.Equal(t, "7", got.Prices[0].Dec())
	assert.True(t, got.Timestamps[0].Equal(t0))

	v, err := loader.VerifyOrder(ctx)
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, 1, v[0].Index)
}

func TestHTTPLoaderSurfacesAPIError(t *testing.T) {
	admin, err := crypto.GenerateSigner()
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"shares already distributed"}`))
	}))
	defer srv.Close()

	err = NewHTTPLoader(srv.URL, admin).LoadInvestors(context.Background(), domain.InvestorColumns{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "shares already distributed")
}
