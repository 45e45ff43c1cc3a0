// Package auction implements the certified sealed-bid share auction: the
// authority registry, certificate verification, commit-reveal bidding,
// ranked allocation, escrow settlement and the share ledger.
//
// Every state-changing call runs under the auction's lock and follows the
// same shape: read the clock, validate against current state, build the
// event batch, append it to the journal, apply it. Applying an event cannot
// fail, so a rejected call leaves state and journal exactly as they were.
package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// Config is the deployment-time configuration of one auction.
type Config struct {
	// Owner is the administrator and the initial holder of every share.
	Owner       common.Address
	TotalSupply uint64
	Schedule    domain.Schedule
	// EnforceInvestorOrder rejects investor lists that break the ranking
	// contract at load time.
	EnforceInvestorOrder bool
}

// Validate reports configuration problems.
func (c Config) Validate() error {
	var errs []error
	if c.Owner == (common.Address{}) {
		errs = append(errs, errors.New("owner address is required"))
	}
	if c.TotalSupply == 0 {
		errs = append(errs, errors.New("total supply must be positive"))
	}
	if c.Schedule.Start.IsZero() {
		errs = append(errs, errors.New("schedule start is required"))
	}
	if c.Schedule.Bidding <= 0 || c.Schedule.Reveal <= 0 || c.Schedule.Claim <= 0 {
		errs = append(errs, errors.New("phase durations must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("auction: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Auction holds the commitment store, revealed bids, allocation state,
// escrow ledger and share ledger of a single auction.
type Auction struct {
	mu       sync.RWMutex
	cfg      Config
	registry TrustSource
	journal  *Journal
	clock    Clock

	commitments map[common.Address][]domain.BidCommitment
	revealed    []domain.RevealedBid
	revealSeq   uint64

	investors   []domain.Investor
	loaded      bool
	allocations []domain.AllocationRecord
	distributed bool

	balances map[common.Address]uint64

	escrow        *uint256.Int
	deposits      map[common.Address]*uint256.Int
	totalDeposits *uint256.Int
	proceeds      *uint256.Int
	proceedsPaid  bool
	refundClaimed map[common.Address]bool
	totalRefunded *uint256.Int
	paidOut       map[common.Address]*uint256.Int
}

// New creates an auction in its initial state: the owner holds the whole
// supply and every ledger is empty.
func New(cfg Config, registry TrustSource, journal *Journal, clock Clock) (*Auction, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Auction{
		cfg:           cfg,
		registry:      registry,
		journal:       journal,
		clock:         clock,
		commitments:   make(map[common.Address][]domain.BidCommitment),
		balances:      map[common.Address]uint64{cfg.Owner: cfg.TotalSupply},
		escrow:        new(uint256.Int),
		deposits:      make(map[common.Address]*uint256.Int),
		totalDeposits: new(uint256.Int),
		proceeds:      new(uint256.Int),
		refundClaimed: make(map[common.Address]bool),
		totalRefunded: new(uint256.Int),
		paidOut:       make(map[common.Address]*uint256.Int),
	}, nil
}

// Owner returns the administrator address.
func (a *Auction) Owner() common.Address { return a.cfg.Owner }

// Schedule returns the configured phase schedule.
func (a *Auction) Schedule() domain.Schedule { return a.cfg.Schedule }

// Phase returns the phase at the current clock reading.
func (a *Auction) Phase() domain.Phase { return PhaseAt(a.clock.Now(), a.cfg.Schedule) }

// Status returns a consistent snapshot of the auction.
func (a *Auction) Status() domain.AuctionStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	now := a.clock.Now()
	s := a.cfg.Schedule
	return domain.AuctionStatus{
		Phase:         PhaseAt(now, s),
		Now:           now,
		BiddingEnds:   s.BiddingEnds(),
		RevealEnds:    s.RevealEnds(),
		ClaimEnds:     s.ClaimEnds(),
		Owner:         a.cfg.Owner,
		TotalSupply:   a.cfg.TotalSupply,
		OwnerBalance:  a.balances[a.cfg.Owner],
		Escrow:        a.escrow.Clone(),
		RevealedBids:  len(a.revealed),
		InvestorCount: len(a.investors),
		Distributed:   a.distributed,
		ProceedsPaid:  a.proceedsPaid,
	}
}

func (a *Auction) requireOwner(op string, caller common.Address) error {
	if caller != a.cfg.Owner {
		return fmt.Errorf("auction: %s: %w", op, domain.ErrForbidden)
	}
	return nil
}

// commit journals the batch and applies it. Callers hold a.mu.
func (a *Auction) commit(actor common.Address, at time.Time, batch []change) error {
	if err := a.journal.append(actor, at, batch); err != nil {
		return err
	}
	for _, c := range batch {
		a.apply(c.payload)
	}
	return nil
}

// apply mutates state for one event. Amounts were checked when the event
// was built, so plain arithmetic is safe here.
func (a *Auction) apply(payload any) {
	switch p := payload.(type) {
	case domain.BidPlaced:
		a.commitments[p.Bidder] = append(a.commitments[p.Bidder], domain.BidCommitment{
			Bidder: p.Bidder,
			Index:  p.Index,
			Hash:   p.Hash,
			Status: domain.CommitmentSealed,
		})

	case domain.BidWithdrawn:
		a.setStatus(p.Bidder, p.Index, domain.CommitmentWithdrawn)

	case domain.BidRevealedPayload:
		a.setStatus(p.Bidder, p.Index, domain.CommitmentRevealed)
		a.revealed = append(a.revealed, p.RevealedBid)
		if p.Seq > a.revealSeq {
			a.revealSeq = p.Seq
		}

	case domain.EscrowDeposited:
		a.escrow.Add(a.escrow, p.Amount)
		a.totalDeposits.Add(a.totalDeposits, p.Amount)
		if d, ok := a.deposits[p.Bidder]; ok {
			d.Add(d, p.Amount)
		} else {
			a.deposits[p.Bidder] = p.Amount.Clone()
		}

	case domain.BidsPurged:
		for bidder, list := range a.commitments {
			for i := range list {
				if list[i].Status == domain.CommitmentSealed {
					list[i].Status = domain.CommitmentPurged
				}
			}
			a.commitments[bidder] = list
		}

	case domain.InvestorsLoaded:
		a.investors = append([]domain.Investor(nil), p.Investors...)
		a.loaded = true

	case domain.SharesAllocated:
		a.balances[a.cfg.Owner] -= p.Allocated
		a.balances[p.Bidder] += p.Allocated
		a.allocations = append(a.allocations, p.AllocationRecord)

	case domain.SharesDistributed:
		a.distributed = true
		a.proceeds = p.Proceeds.Clone()

	case domain.SharesTransferred:
		a.balances[p.From] -= p.Amount
		a.balances[p.To] += p.Amount

	case domain.ProceedsPaid:
		a.escrow.Sub(a.escrow, p.Amount)
		a.credit(p.To, p.Amount)
		a.proceedsPaid = true

	case domain.RefundPaid:
		a.escrow.Sub(a.escrow, p.Amount)
		a.totalRefunded.Add(a.totalRefunded, p.Amount)
		a.credit(p.To, p.Amount)
		a.refundClaimed[p.To] = true
	}
}

func (a *Auction) setStatus(bidder common.Address, index uint64, st domain.CommitmentStatus) {
	list := a.commitments[bidder]
	if index < uint64(len(list)) {
		list[index].Status = st
	}
}

func (a *Auction) credit(to common.Address, amount *uint256.Int) {
	if p, ok := a.paidOut[to]; ok {
		p.Add(p, amount)
		return
	}
	a.paidOut[to] = amount.Clone()
}

// mulPrice returns shares*price, reporting overflow.
func mulPrice(shares uint64, price *uint256.Int) (*uint256.Int, bool) {
	return new(uint256.Int).MulOverflow(uint256.NewInt(shares), price)
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
