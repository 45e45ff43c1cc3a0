package auction

import (
	"fmt"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// Restore rebuilds freshly constructed registry and auction state from a
// persisted journal. Events are applied without re-validation; they were
// validated when first recorded. Both must share the journal being
// restored into, and it must be empty.
func Restore(events []domain.Event, reg *Registry, a *Auction) error {
	if reg.journal != a.journal {
		return fmt.Errorf("auction: restore: registry and auction use different journals")
	}

	type decoded struct {
		event   domain.Event
		payload any
	}
	all := make([]decoded, 0, len(events))
	for _, e := range events {
		p, err := decodePayload(e)
		if err != nil {
			return err
		}
		all = append(all, decoded{e, p})
	}

	if err := a.journal.load(events); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, d := range all {
		switch d.event.Kind {
		case domain.EventAuthorityAdded, domain.EventAuthorityRevoked:
			reg.apply(d.event.At, d.payload)
		default:
			a.apply(d.payload)
		}
	}
	return nil
}

func decodePayload(e domain.Event) (any, error) {
	switch e.Kind {
	case domain.EventAuthorityAdded:
		return decodeAs[domain.AuthorityAdded](e)
	case domain.EventAuthorityRevoked:
		return decodeAs[domain.AuthorityRevoked](e)
	case domain.EventBidPlaced:
		return decodeAs[domain.BidPlaced](e)
	case domain.EventBidWithdrawn:
		return decodeAs[domain.BidWithdrawn](e)
	case domain.EventBidRevealed:
		return decodeAs[domain.BidRevealedPayload](e)
	case domain.EventEscrowDeposited:
		return decodeAs[domain.EscrowDeposited](e)
	case domain.EventBidsPurged:
		return decodeAs[domain.BidsPurged](e)
	case domain.EventInvestorsLoaded:
		return decodeAs[domain.InvestorsLoaded](e)
	case domain.EventSharesAllocated:
		return decodeAs[domain.SharesAllocated](e)
	case domain.EventSharesDistributed:
		return decodeAs[domain.SharesDistributed](e)
	case domain.EventSharesTransferred:
		return decodeAs[domain.SharesTransferred](e)
	case domain.EventProceedsPaid:
		return decodeAs[domain.ProceedsPaid](e)
	case domain.EventRefundPaid:
		return decodeAs[domain.RefundPaid](e)
	default:
		return nil, fmt.Errorf("auction: restore: unknown event kind %q at seq %d", e.Kind, e.Seq)
	}
}

func decodeAs[T any](e domain.Event) (any, error) {
	var v T
	if err := e.Decode(&v); err != nil {
		return nil, fmt.Errorf("auction: restore: %w", err)
	}
	return v, nil
}
