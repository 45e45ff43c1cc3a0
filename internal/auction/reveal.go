package auction

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/crypto"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

// Reveal discloses every live commitment of caller at once. shares[i] and
// prices[i] must open the i-th live commitment in placement order and
// payment must equal the total cost exactly. On success the commitments
// are consumed, payment moves into escrow and one revealed bid per index is
// recorded.
func (a *Auction) Reveal(caller common.Address, shares []uint64, prices []*uint256.Int, payment *uint256.Int) ([]domain.RevealedBid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if err := requirePhase("reveal", PhaseAt(now, a.cfg.Schedule), domain.PhaseReveal); err != nil {
		return nil, err
	}

	live := a.live(caller)
	if len(live) == 0 {
		return nil, fmt.Errorf("auction: reveal: %w", domain.ErrNoBids)
	}
	if len(shares) != len(prices) || len(shares) != len(live) {
		return nil, fmt.Errorf("auction: reveal: %w: %d shares, %d prices, %d live bids",
			domain.ErrLengthMismatch, len(shares), len(prices), len(live))
	}
	if payment == nil {
		return nil, fmt.Errorf("auction: reveal: %w: missing payment", domain.ErrInvalidArgument)
	}

	total := new(uint256.Int)
	for i := range live {
		if prices[i] == nil {
			return nil, fmt.Errorf("auction: reveal: %w: missing price at index %d", domain.ErrInvalidArgument, i)
		}
		if crypto.SealBid(shares[i], prices[i]) != live[i].Hash {
			return nil, fmt.Errorf("auction: reveal: %w at index %d", domain.ErrCommitmentMismatch, i)
		}
		cost, overflow := mulPrice(shares[i], prices[i])
		if overflow {
			return nil, fmt.Errorf("auction: reveal: %w: cost overflow at index %d", domain.ErrInvalidArgument, i)
		}
		if _, overflow := total.AddOverflow(total, cost); overflow {
			return nil, fmt.Errorf("auction: reveal: %w: total cost overflow", domain.ErrInvalidArgument)
		}
	}
	if !total.Eq(payment) {
		return nil, fmt.Errorf("auction: reveal: %w: sent %s, bids cost %s",
			domain.ErrPaymentMismatch, payment.Dec(), total.Dec())
	}
	if _, overflow := new(uint256.Int).AddOverflow(a.totalDeposits, payment); overflow {
		return nil, fmt.Errorf("auction: reveal: %w: escrow overflow", domain.ErrInvalidArgument)
	}

	batch := make([]change, 0, len(live)+1)
	out := make([]domain.RevealedBid, len(live))
	for i, c := range live {
		bid := domain.RevealedBid{
			Seq:       a.revealSeq + uint64(i) + 1,
			Bidder:    caller,
			Timestamp: now,
			Shares:    shares[i],
			Price:     prices[i].Clone(),
		}
		out[i] = bid
		batch = append(batch, change{domain.EventBidRevealed, domain.BidRevealedPayload{RevealedBid: bid, Index: c.Index}})
	}
	batch = append(batch, change{domain.EventEscrowDeposited, domain.EscrowDeposited{Bidder: caller, Amount: payment.Clone()}})

	if err := a.commit(caller, now, batch); err != nil {
		return nil, err
	}
	return out, nil
}

// RevealedBids returns every revealed bid in reveal order.
func (a *Auction) RevealedBids() []domain.RevealedBid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.RevealedBid, len(a.revealed))
	for i, b := range a.revealed {
		b.Price = b.Price.Clone()
		out[i] = b
	}
	return out
}

// RevealedBy returns the revealed bids of one bidder.
func (a *Auction) RevealedBy(bidder common.Address) []domain.RevealedBid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []domain.RevealedBid
	for _, b := range a.revealed {
		if b.Bidder == bidder {
			b.Price = b.Price.Clone()
			out = append(out, b)
		}
	}
	return out
}
