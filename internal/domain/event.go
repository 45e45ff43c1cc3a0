package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// EventKind names a journal entry type.
type EventKind string

const (
	EventAuthorityAdded    EventKind = "authority.added"
	EventAuthorityRevoked  EventKind = "authority.revoked"
	EventBidPlaced         EventKind = "bid.placed"
	EventBidWithdrawn      EventKind = "bid.withdrawn"
	EventBidRevealed       EventKind = "bid.revealed"
	EventEscrowDeposited   EventKind = "escrow.deposited"
	EventBidsPurged        EventKind = "bids.purged"
	EventInvestorsLoaded   EventKind = "investors.loaded"
	EventSharesAllocated   EventKind = "shares.allocated"
	EventSharesDistributed EventKind = "shares.distributed"
	EventSharesTransferred EventKind = "shares.transferred"
	EventProceedsPaid      EventKind = "escrow.proceeds_paid"
	EventRefundPaid        EventKind = "escrow.refund_paid"
)

// Event is one entry of the auction journal. Payload holds the JSON
// encoding of the kind-specific struct below.
type Event struct {
	Seq     uint64          `json:"seq"`
	ID      string          `json:"id"`
	Kind    EventKind       `json:"kind"`
	Actor   common.Address  `json:"actor"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s event %d: %w", e.Kind, e.Seq, err)
	}
	return nil
}

type AuthorityAdded struct {
	Authority common.Address `json:"authority"`
}

type AuthorityRevoked struct {
	Authority common.Address `json:"authority"`
}

type BidPlaced struct {
	Bidder common.Address `json:"bidder"`
	Index  uint64         `json:"index"`
	Hash   common.Hash    `json:"hash"`
}

type BidWithdrawn struct {
	Bidder common.Address `json:"bidder"`
	Index  uint64         `json:"index"`
	Hash   common.Hash    `json:"hash"`
}

// BidRevealedPayload is the "bid revealed" notification the off-core
// indexer collects. Index is the commitment it consumed.
type BidRevealedPayload struct {
	RevealedBid
	Index uint64 `json:"index"`
}

type EscrowDeposited struct {
	Bidder common.Address `json:"bidder"`
	Amount *uint256.Int   `json:"amount"`
}

type BidsPurged struct {
	Count int `json:"count"`
}

type InvestorsLoaded struct {
	Investors []Investor `json:"investors"`
}

type SharesAllocated struct {
	AllocationRecord
}

type SharesDistributed struct {
	Entries   int          `json:"entries"`
	Allocated uint64       `json:"allocated"`
	Proceeds  *uint256.Int `json:"proceeds"`
}

type SharesTransferred struct {
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

type ProceedsPaid struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

type RefundPaid struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}
