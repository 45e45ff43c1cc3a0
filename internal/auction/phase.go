package auction

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// PhaseAt returns the phase in force at now. The boundaries are half-open:
// the instant bidding ends belongs to the reveal phase.
func PhaseAt(now time.Time, s domain.Schedule) domain.Phase {
	switch {
	case now.Before(s.BiddingEnds()):
		return domain.PhaseBidding
	case now.Before(s.RevealEnds()):
		return domain.PhaseReveal
	default:
		return domain.PhaseClaim
	}
}

func requirePhase(op string, got, want domain.Phase) error {
	if got != want {
		return fmt.Errorf("auction: %s: %w: requires %s, auction is in %s",
			op, domain.ErrPhaseViolation, want, got)
	}
	return nil
}
