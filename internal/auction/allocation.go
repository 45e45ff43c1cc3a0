package auction

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// SortInvestors orders revealed bids by the ranking contract: price
// descending, then reveal time ascending, then reveal sequence ascending.
// The slice is sorted in place.
func SortInvestors(bids []domain.RevealedBid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Price.Cmp(bids[j].Price); c != 0 {
			return c > 0
		}
		if !bids[i].Timestamp.Equal(bids[j].Timestamp) {
			return bids[i].Timestamp.Before(bids[j].Timestamp)
		}
		return bids[i].Seq < bids[j].Seq
	})
}

// CheckOrder returns every adjacent pair of investors that breaks the
// ranking contract. An empty result means the list is valid.
func CheckOrder(list []domain.Investor) []domain.OrderViolation {
	var out []domain.OrderViolation
	for i := 1; i < len(list); i++ {
		prev, cur := list[i-1], list[i]
		switch c := prev.Price.Cmp(cur.Price); {
		case c < 0:
			out = append(out, domain.OrderViolation{
				Index:  i,
				Reason: fmt.Sprintf("price %s ranked below lower price %s", cur.Price.Dec(), prev.Price.Dec()),
			})
		case c == 0 && cur.Timestamp.Before(prev.Timestamp):
			out = append(out, domain.OrderViolation{
				Index:  i,
				Reason: "equal price revealed earlier but ranked later",
			})
		}
	}
	return out
}

// LoadInvestors stores the administrator's ranked investor list, given as
// four parallel columns. Each entry must match a distinct revealed bid.
// Loading again before distribution replaces the previous list.
func (a *Auction) LoadInvestors(caller common.Address, addrs []common.Address, timestamps []time.Time, shares []uint64, prices []*uint256.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwner("load investors", caller); err != nil {
		return err
	}
	now := a.clock.Now()
	if err := requirePhase("load investors", PhaseAt(now, a.cfg.Schedule), domain.PhaseClaim); err != nil {
		return err
	}
	if a.distributed {
		return fmt.Errorf("auction: load investors: %w", domain.ErrAlreadyDistributed)
	}
	n := len(addrs)
	if len(timestamps) != n || len(shares) != n || len(prices) != n {
		return fmt.Errorf("auction: load investors: %w: %d addresses, %d timestamps, %d shares, %d prices",
			domain.ErrLengthMismatch, n, len(timestamps), len(shares), len(prices))
	}

	list := make([]domain.Investor, n)
	for i := range addrs {
		if prices[i] == nil {
			return fmt.Errorf("auction: load investors: %w: missing price at index %d", domain.ErrInvalidArgument, i)
		}
		list[i] = domain.Investor{
			Bidder:    addrs[i],
			Timestamp: timestamps[i].UTC(),
			Shares:    shares[i],
			Price:     prices[i].Clone(),
		}
	}

	if err := a.checkMembership(list); err != nil {
		return err
	}
	if a.cfg.EnforceInvestorOrder {
		if v := CheckOrder(list); len(v) > 0 {
			return fmt.Errorf("auction: load investors: %w at index %d: %s",
				domain.ErrOrderViolation, v[0].Index, v[0].Reason)
		}
	}

	return a.commit(caller, now, []change{{domain.EventInvestorsLoaded, domain.InvestorsLoaded{Investors: list}}})
}

// checkMembership requires the entries to describe every revealed bid
// exactly once.
func (a *Auction) checkMembership(list []domain.Investor) error {
	used := make([]bool, len(a.revealed))
	for i, inv := range list {
		found := false
		for j, b := range a.revealed {
			if !used[j] && inv.Matches(b) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("auction: load investors: %w at index %d", domain.ErrUnknownInvestor, i)
		}
	}
	if len(list) != len(a.revealed) {
		return fmt.Errorf("auction: load investors: %w: %d of %d entries",
			domain.ErrIncompleteList, len(list), len(a.revealed))
	}
	return nil
}

// GetInvestor returns the loaded entry at index.
func (a *Auction) GetInvestor(index int) (domain.Investor, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if index < 0 || index >= len(a.investors) {
		return domain.Investor{}, fmt.Errorf("auction: investor %d: %w", index, domain.ErrNotFound)
	}
	inv := a.investors[index]
	inv.Price = inv.Price.Clone()
	return inv, nil
}

// InvestorCount returns the length of the loaded list.
func (a *Auction) InvestorCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.investors)
}

// VerifyInvestorOrder checks the loaded list against the ranking contract.
func (a *Auction) VerifyInvestorOrder() []domain.OrderViolation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return CheckOrder(a.investors)
}

// DistributeShares walks the loaded list in rank order and allocates
// min(requested, remaining) from the owner's balance to each entry. The
// pool is the owner's balance at distribution time, so shares the owner
// transferred away earlier are not offered. Every entry gets a record,
// including those allocated nothing. It runs once.
func (a *Auction) DistributeShares(caller common.Address) ([]domain.AllocationRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwner("distribute shares", caller); err != nil {
		return nil, err
	}
	now := a.clock.Now()
	if err := requirePhase("distribute shares", PhaseAt(now, a.cfg.Schedule), domain.PhaseClaim); err != nil {
		return nil, err
	}
	if a.distributed {
		return nil, fmt.Errorf("auction: distribute shares: %w", domain.ErrAlreadyDistributed)
	}
	if !a.loaded {
		return nil, fmt.Errorf("auction: distribute shares: %w", domain.ErrNotLoaded)
	}

	pool := a.balances[a.cfg.Owner]
	proceeds := new(uint256.Int)
	var allocated uint64
	records := make([]domain.AllocationRecord, len(a.investors))
	batch := make([]change, 0, len(a.investors)+1)
	for i, inv := range a.investors {
		alloc := min(inv.Shares, pool)
		pool -= alloc
		allocated += alloc

		cost, overflow := mulPrice(alloc, inv.Price)
		if overflow {
			return nil, fmt.Errorf("auction: distribute shares: %w: cost overflow at rank %d", domain.ErrInvalidArgument, i)
		}
		if _, overflow := proceeds.AddOverflow(proceeds, cost); overflow {
			return nil, fmt.Errorf("auction: distribute shares: %w: proceeds overflow", domain.ErrInvalidArgument)
		}

		rec := domain.AllocationRecord{
			Rank:      i,
			Bidder:    inv.Bidder,
			Requested: inv.Shares,
			Allocated: alloc,
			Price:     inv.Price.Clone(),
		}
		records[i] = rec
		batch = append(batch, change{domain.EventSharesAllocated, domain.SharesAllocated{AllocationRecord: rec}})
	}
	batch = append(batch, change{domain.EventSharesDistributed, domain.SharesDistributed{
		Entries:   len(records),
		Allocated: allocated,
		Proceeds:  proceeds,
	}})

	if err := a.commit(caller, now, batch); err != nil {
		return nil, err
	}
	return records, nil
}

// Allocations returns the allocation records in rank order.
func (a *Auction) Allocations() []domain.AllocationRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.AllocationRecord, len(a.allocations))
	for i, r := range a.allocations {
		r.Price = r.Price.Clone()
		out[i] = r
	}
	return out
}

// Distributed reports whether shares have been distributed.
func (a *Auction) Distributed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.distributed
}
