package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

var testStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testBidder struct {
	signer  *crypto.Signer
	cert    domain.Certificate
	authSig []byte
	binding common.Hash
}

func (b testBidder) addr() common.Address { return b.signer.Address() }

type testEnv struct {
	t         *testing.T
	clock     *fakeClock
	journal   *Journal
	reg       *Registry
	auc       *Auction
	owner     common.Address
	auditor   common.Address
	authority *crypto.Signer
	schedule  domain.Schedule
}

func newTestEnv(t *testing.T, supply uint64) *testEnv {
	return newTestEnvWith(t, supply, true)
}

func newTestEnvWith(t *testing.T, supply uint64, enforceOrder bool) *testEnv {
	return newTestEnvOn(t, NewJournal(), supply, enforceOrder)
}

func newTestEnvOn(t *testing.T, journal *Journal, supply uint64, enforceOrder bool) *testEnv {
	t.Helper()
	owner, err := crypto.GenerateSigner()
	require.NoError(t, err)
	auditor, err := crypto.GenerateSigner()
	require.NoError(t, err)
	authority, err := crypto.GenerateSigner()
	require.NoError(t, err)

	clock := &fakeClock{now: testStart.Add(time.Hour)}
	schedule := domain.Schedule{
		Start:   testStart,
		Bidding: 7 * 24 * time.Hour,
		Reveal:  7 * 24 * time.Hour,
		Claim:   7 * 24 * time.Hour,
	}
	reg := NewRegistry(auditor.Address(), journal, clock)
	auc, err := New(Config{
		Owner:                owner.Address(),
		TotalSupply:          supply,
		Schedule:             schedule,
		EnforceInvestorOrder: enforceOrder,
	}, reg, journal, clock)
	require.NoError(t, err)

	require.NoError(t, reg.AddAuthority(auditor.Address(), authority.Address()))

	return &testEnv{
		t:         t,
		clock:     clock,
		journal:   journal,
		reg:       reg,
		auc:       auc,
		owner:     owner.Address(),
		auditor:   auditor.Address(),
		authority: authority,
		schedule:  schedule,
	}
}

// certify issues a certificate for a fresh bidder key from authority.
func certify(t *testing.T, authority *crypto.Signer, expiryYear uint16) testBidder {
	t.Helper()
	s, err := crypto.GenerateSigner()
	require.NoError(t, err)
	possession, err := crypto.SignPossession(s)
	require.NoError(t, err)
	cert, sig, err := crypto.IssueCertificate(authority, s.Address(), expiryYear, possession)
	require.NoError(t, err)
	return testBidder{
		signer:  s,
		cert:    cert,
		authSig: sig,
		binding: crypto.OwnershipBinding(cert, s.Address()),
	}
}

func (e *testEnv) newBidder() testBidder {
	return certify(e.t, e.authority, 2099)
}

func (e *testEnv) place(b testBidder, shares, price uint64) common.Hash {
	e.t.Helper()
	h := crypto.SealBid(shares, uint256.NewInt(price))
	_, err := e.auc.PlaceBid(b.addr(), b.cert, b.authSig, b.binding, h)
	require.NoError(e.t, err)
	return h
}

type bid struct{ shares, price uint64 }

func (e *testEnv) reveal(b testBidder, bids ...bid) []domain.RevealedBid {
	e.t.Helper()
	shares, prices, total := columns(bids)
	out, err := e.auc.Reveal(b.addr(), shares, prices, total)
	require.NoError(e.t, err)
	return out
}

func columns(bids []bid) ([]uint64, []*uint256.Int, *uint256.Int) {
	shares := make([]uint64, len(bids))
	prices := make([]*uint256.Int, len(bids))
	total := new(uint256.Int)
	for i, b := range bids {
		shares[i] = b.shares
		prices[i] = uint256.NewInt(b.price)
		total.Add(total, uint256.NewInt(b.shares*b.price))
	}
	return shares, prices, total
}

func (e *testEnv) toReveal() { e.clock.Set(e.schedule.BiddingEnds().Add(time.Minute)) }
func (e *testEnv) toClaim()  { e.clock.Set(e.schedule.RevealEnds().Add(time.Minute)) }

// loadSorted loads every revealed bid in ranking order, the way the
// indexer does.
func (e *testEnv) loadSorted() {
	e.t.Helper()
	bids := e.auc.RevealedBids()
	SortInvestors(bids)
	require.NoError(e.t, e.loadList(bids))
}

func (e *testEnv) loadList(bids []domain.RevealedBid) error {
	addrs := make([]common.Address, len(bids))
	ts := make([]time.Time, len(bids))
	shares := make([]uint64, len(bids))
	prices := make([]*uint256.Int, len(bids))
	for i, b := range bids {
		addrs[i], ts[i], shares[i], prices[i] = b.Bidder, b.Timestamp, b.Shares, b.Price
	}
	return e.auc.LoadInvestors(e.owner, addrs, ts, shares, prices)
}

// snapshot captures everything a rejected call must leave untouched.
type snapshot struct {
	seq      uint64
	status   domain.AuctionStatus
	escrow   string
	revealed int
}

func (e *testEnv) snap() snapshot {
	st := e.auc.Status()
	st.Now = time.Time{}
	return snapshot{
		seq:      e.journal.LastSeq(),
		status:   st,
		escrow:   e.auc.EscrowBalance().Dec(),
		revealed: len(e.auc.RevealedBids()),
	}
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }
