package auction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// TotalSupply returns the fixed share supply.
func (a *Auction) TotalSupply() uint64 { return a.cfg.TotalSupply }

// BalanceOf returns the shares held by addr.
func (a *Auction) BalanceOf(addr common.Address) uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.balances[addr]
}

// TransferShares moves amount shares from caller to to.
func (a *Auction) TransferShares(caller, to common.Address, amount uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if to == (common.Address{}) {
		return fmt.Errorf("auction: transfer shares: %w: zero recipient", domain.ErrInvalidArgument)
	}
	if bal := a.balances[caller]; amount > bal {
		return fmt.Errorf("auction: transfer shares: %w: balance %d, amount %d",
			domain.ErrInsufficientBalance, bal, amount)
	}

	t := domain.SharesTransferred{From: caller, To: to, Amount: amount}
	return a.commit(caller, a.clock.Now(), []change{{domain.EventSharesTransferred, t}})
}
