package auction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// PlaceBid verifies caller's certificate chain and appends a sealed
// commitment at the bidder's next index.
func (a *Auction) PlaceBid(caller common.Address, cert domain.Certificate, authSig []byte, binding, sealedHash common.Hash) (domain.BidCommitment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if err := requirePhase("place bid", PhaseAt(now, a.cfg.Schedule), domain.PhaseBidding); err != nil {
		return domain.BidCommitment{}, err
	}
	if err := VerifyAndBind(a.registry, now, cert, authSig, binding, caller); err != nil {
		return domain.BidCommitment{}, fmt.Errorf("auction: place bid: %w", err)
	}
	if sealedHash == (common.Hash{}) {
		return domain.BidCommitment{}, fmt.Errorf("auction: place bid: %w: empty commitment", domain.ErrInvalidArgument)
	}

	placed := domain.BidPlaced{
		Bidder: caller,
		Index:  uint64(len(a.commitments[caller])),
		Hash:   sealedHash,
	}
	if err := a.commit(caller, now, []change{{domain.EventBidPlaced, placed}}); err != nil {
		return domain.BidCommitment{}, err
	}
	return a.commitments[caller][placed.Index], nil
}

// WithdrawBid tombstones the caller's first live commitment whose hash is
// sealedHash. The other commitments keep their relative order.
func (a *Auction) WithdrawBid(caller common.Address, cert domain.Certificate, binding, sealedHash common.Hash) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if err := requirePhase("withdraw bid", PhaseAt(now, a.cfg.Schedule), domain.PhaseBidding); err != nil {
		return err
	}
	if err := checkBinding(cert, binding, caller); err != nil {
		return fmt.Errorf("auction: withdraw bid: %w", err)
	}

	for _, c := range a.commitments[caller] {
		if h, ok := c.Sealed(); ok && h == sealedHash {
			w := domain.BidWithdrawn{Bidder: caller, Index: c.Index, Hash: h}
			return a.commit(caller, now, []change{{domain.EventBidWithdrawn, w}})
		}
	}
	return fmt.Errorf("auction: withdraw bid %s: %w", sealedHash.Hex(), domain.ErrNotFound)
}

// RemoveInvalidBids purges every commitment that was never revealed and
// returns how many it purged. A call with nothing to purge changes nothing.
func (a *Auction) RemoveInvalidBids(caller common.Address) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwner("remove invalid bids", caller); err != nil {
		return 0, err
	}
	now := a.clock.Now()
	if err := requirePhase("remove invalid bids", PhaseAt(now, a.cfg.Schedule), domain.PhaseClaim); err != nil {
		return 0, err
	}

	count := 0
	for _, list := range a.commitments {
		for _, c := range list {
			if c.Exists() {
				count++
			}
		}
	}
	if count == 0 {
		return 0, nil
	}
	if err := a.commit(caller, now, []change{{domain.EventBidsPurged, domain.BidsPurged{Count: count}}}); err != nil {
		return 0, err
	}
	return count, nil
}

// Commitments returns every commitment bidder ever placed, with status.
func (a *Auction) Commitments(bidder common.Address) []domain.BidCommitment {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.BidCommitment(nil), a.commitments[bidder]...)
}

// LiveBidCount returns the number of sealed commitments bidder holds.
func (a *Auction) LiveBidCount(bidder common.Address) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.live(bidder))
}

// live returns bidder's sealed commitments in placement order.
func (a *Auction) live(bidder common.Address) []domain.BidCommitment {
	var out []domain.BidCommitment
	for _, c := range a.commitments[bidder] {
		if c.Exists() {
			out = append(out, c)
		}
	}
	return out
}
