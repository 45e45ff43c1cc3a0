package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Phase is one of the three time-gated auction states.
type Phase int

const (
	PhaseBidding Phase = iota
	PhaseReveal
	PhaseClaim
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case PhaseBidding:
		return "bidding"
	case PhaseReveal:
		return "reveal"
	case PhaseClaim:
		return "claim"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "bidding":
		*p = PhaseBidding
	case "reveal":
		*p = PhaseReveal
	case "claim":
		*p = PhaseClaim
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Schedule holds the configured phase durations, counted from Start.
type Schedule struct {
	Start   time.Time
	Bidding time.Duration
	Reveal  time.Duration
	Claim   time.Duration
}

// BiddingEnds is the first instant of the reveal phase.
func (s Schedule) BiddingEnds() time.Time { return s.Start.Add(s.Bidding) }

// RevealEnds is the first instant of the claim phase.
func (s Schedule) RevealEnds() time.Time { return s.BiddingEnds().Add(s.Reveal) }

// ClaimEnds is informational; the claim phase is terminal.
func (s Schedule) ClaimEnds() time.Time { return s.RevealEnds().Add(s.Claim) }

// RegistryEntry records a certifying authority key known to the registry.
type RegistryEntry struct {
	Authority common.Address `json:"authority"`
	Active    bool           `json:"active"`
	AddedAt   time.Time      `json:"added_at"`
}

// Certificate binds a subject address to an identity vetted by an
// authority. PossessionSig is the subject's signature over the possession
// message, collected by the authority before issuing.
type Certificate struct {
	Subject       common.Address `json:"subject"`
	Authority     common.Address `json:"authority"`
	ExpiryYear    uint16         `json:"expiry_year"`
	PossessionSig hexutil.Bytes  `json:"possession_sig"`
}

// CommitmentStatus tracks what happened to a sealed bid.
type CommitmentStatus string

const (
	CommitmentSealed    CommitmentStatus = "sealed"
	CommitmentWithdrawn CommitmentStatus = "withdrawn"
	CommitmentRevealed  CommitmentStatus = "revealed"
	CommitmentPurged    CommitmentStatus = "purged"
)

// BidCommitment is one sealed bid in a bidder's ordered list. Hash is only
// meaningful while the commitment is sealed; use Sealed to read it.
type BidCommitment struct {
	Bidder common.Address   `json:"bidder"`
	Index  uint64           `json:"index"`
	Hash   common.Hash      `json:"-"`
	Status CommitmentStatus `json:"status"`
}

// Exists reports whether the commitment is still live.
func (c BidCommitment) Exists() bool { return c.Status == CommitmentSealed }

// Sealed returns the commitment hash and true while the bid is live.
func (c BidCommitment) Sealed() (common.Hash, bool) {
	if !c.Exists() {
		return common.Hash{}, false
	}
	return c.Hash, true
}

// RevealedBid is one disclosed (shares, price) pair. Seq is the global
// reveal order and breaks exact timestamp ties.
type RevealedBid struct {
	Seq       uint64         `json:"seq"`
	Bidder    common.Address `json:"bidder"`
	Timestamp time.Time      `json:"timestamp"`
	Shares    uint64         `json:"shares"`
	Price     *uint256.Int   `json:"price"`
}

// Investor is one entry of the administrator-submitted ranking.
type Investor struct {
	Bidder    common.Address `json:"bidder"`
	Timestamp time.Time      `json:"timestamp"`
	Shares    uint64         `json:"shares"`
	Price     *uint256.Int   `json:"price"`
}

// Matches reports whether the investor entry describes the revealed bid.
func (i Investor) Matches(b RevealedBid) bool {
	return i.Bidder == b.Bidder &&
		i.Timestamp.Equal(b.Timestamp) &&
		i.Shares == b.Shares &&
		i.Price != nil && b.Price != nil && i.Price.Eq(b.Price)
}

// InvestorColumns is a ranked investor list in the four parallel columns
// LoadInvestors takes.
type InvestorColumns struct {
	Addresses  []common.Address `json:"addresses"`
	Timestamps []time.Time      `json:"timestamps"`
	Shares     []uint64         `json:"shares"`
	Prices     []*uint256.Int   `json:"prices"`
}

// Len returns the number of rows, or -1 when the columns disagree.
func (c InvestorColumns) Len() int {
	n := len(c.Addresses)
	if len(c.Timestamps) != n || len(c.Shares) != n || len(c.Prices) != n {
		return -1
	}
	return n
}

// AllocationRecord is the outcome for one ranked investor entry.
type AllocationRecord struct {
	Rank      int            `json:"rank"`
	Bidder    common.Address `json:"bidder"`
	Requested uint64         `json:"requested"`
	Allocated uint64         `json:"allocated"`
	Price     *uint256.Int   `json:"price"`
}

// OrderViolation describes an adjacent pair of loaded investors that breaks
// the ranking contract.
type OrderViolation struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// OrderReport is the result of re-checking a loaded investor list.
type OrderReport struct {
	Valid      bool             `json:"valid"`
	Violations []OrderViolation `json:"violations"`
}

// AuctionStatus is a read-only snapshot of the auction.
type AuctionStatus struct {
	Phase         Phase          `json:"phase"`
	Now           time.Time      `json:"now"`
	BiddingEnds   time.Time      `json:"bidding_ends"`
	RevealEnds    time.Time      `json:"reveal_ends"`
	ClaimEnds     time.Time      `json:"claim_ends"`
	Owner         common.Address `json:"owner"`
	TotalSupply   uint64         `json:"total_supply"`
	OwnerBalance  uint64         `json:"owner_balance"`
	Escrow        *uint256.Int   `json:"escrow"`
	RevealedBids  int            `json:"revealed_bids"`
	InvestorCount int            `json:"investor_count"`
	Distributed   bool           `json:"distributed"`
	ProceedsPaid  bool           `json:"proceeds_paid"`
}
