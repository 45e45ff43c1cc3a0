package auction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// TransferPayment pays the owner the escrowed price of every allocated
// share. It pays once.
func (a *Auction) TransferPayment(caller common.Address) (*uint256.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwner("transfer payment", caller); err != nil {
		return nil, err
	}
	now := a.clock.Now()
	if err := requirePhase("transfer payment", PhaseAt(now, a.cfg.Schedule), domain.PhaseClaim); err != nil {
		return nil, err
	}
	if !a.distributed {
		return nil, fmt.Errorf("auction: transfer payment: %w", domain.ErrNotDistributed)
	}
	if a.proceedsPaid {
		return nil, fmt.Errorf("auction: transfer payment: %w", domain.ErrDoubleClaim)
	}
	if a.escrow.Lt(a.proceeds) {
		return nil, fmt.Errorf("auction: transfer payment: escrow %s below proceeds %s", a.escrow.Dec(), a.proceeds.Dec())
	}

	amount := a.proceeds.Clone()
	paid := domain.ProceedsPaid{To: a.cfg.Owner, Amount: amount}
	if err := a.commit(caller, now, []change{{domain.EventProceedsPaid, paid}}); err != nil {
		return nil, err
	}
	return amount.Clone(), nil
}

// ClaimRefund pays caller the part of their deposit not spent on allocated
// shares. A zero refund still succeeds and marks the claim.
func (a *Auction) ClaimRefund(caller common.Address) (*uint256.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.distributed {
		return nil, fmt.Errorf("auction: claim refund: %w", domain.ErrNotDistributed)
	}
	deposit, ok := a.deposits[caller]
	if !ok {
		return nil, fmt.Errorf("auction: claim refund for %s: %w", caller.Hex(), domain.ErrNotFound)
	}
	if a.refundClaimed[caller] {
		return nil, fmt.Errorf("auction: claim refund: %w", domain.ErrDoubleClaim)
	}

	spent := new(uint256.Int)
	for _, r := range a.allocations {
		if r.Bidder != caller {
			continue
		}
		cost, overflow := mulPrice(r.Allocated, r.Price)
		if overflow {
			return nil, fmt.Errorf("auction: claim refund: %w: cost overflow", domain.ErrInvalidArgument)
		}
		spent.Add(spent, cost)
	}
	refund, underflow := new(uint256.Int).SubOverflow(deposit, spent)
	if underflow {
		return nil, fmt.Errorf("auction: claim refund: allocations %s exceed deposit %s", spent.Dec(), deposit.Dec())
	}
	if a.escrow.Lt(refund) {
		return nil, fmt.Errorf("auction: claim refund: escrow %s below refund %s", a.escrow.Dec(), refund.Dec())
	}

	paid := domain.RefundPaid{To: caller, Amount: refund}
	if err := a.commit(caller, a.clock.Now(), []change{{domain.EventRefundPaid, paid}}); err != nil {
		return nil, err
	}
	return refund.Clone(), nil
}

// EscrowBalance returns the payment currently held.
func (a *Auction) EscrowBalance() *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.escrow.Clone()
}

// Deposits returns what bidder paid into escrow.
func (a *Auction) Deposits(bidder common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneOrZero(a.deposits[bidder])
}

// TotalDeposits returns the sum of every deposit ever made.
func (a *Auction) TotalDeposits() *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalDeposits.Clone()
}

// TotalRefunded returns the sum of every refund paid.
func (a *Auction) TotalRefunded() *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.totalRefunded.Clone()
}

// PaidOut returns everything escrow has paid to addr.
func (a *Auction) PaidOut(addr common.Address) *uint256.Int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneOrZero(a.paidOut[addr])
}

// RefundClaimed reports whether bidder has claimed a refund.
func (a *Auction) RefundClaimed(bidder common.Address) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.refundClaimed[bidder]
}

// Proceeds returns the owner's proceeds fixed at distribution and whether
// they have been paid.
func (a *Auction) Proceeds() (*uint256.Int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.proceeds.Clone(), a.proceedsPaid
}
