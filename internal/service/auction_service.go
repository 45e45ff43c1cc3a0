// Package service wraps the auction core for the API: context-aware calls,
// structured logging, audit records, journal relay and report archival.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/auction"
	"github.com/alanyoungcy/shareauction/internal/domain"
)

// BidRequest carries the certificate chain and commitment for a bid.
type BidRequest struct {
	Certificate  domain.Certificate
	AuthoritySig []byte
	Binding      common.Hash
	SealedHash   common.Hash
}

// AuctionService is the single entry point the HTTP layer uses. Every
// accepted mutation is already in the journal, durably when it is backed by
// an event store, and is followed by a relay flush to the stream; stream
// failures are logged and retried by the relay loop.
type AuctionService struct {
	auction  *auction.Auction
	registry *auction.Registry
	journal  *auction.Journal
	relay    *Relay
	archiver domain.ReportArchiver
	reports  domain.BlobReader
	audit    domain.AuditStore
	logger   *slog.Logger
}

// Options holds the optional collaborators of an AuctionService.
type Options struct {
	Archiver domain.ReportArchiver
	Reports  domain.BlobReader
	Audit    domain.AuditStore
}

// NewAuctionService creates an AuctionService.
func NewAuctionService(
	a *auction.Auction,
	reg *auction.Registry,
	journal *auction.Journal,
	relay *Relay,
	opts Options,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auction:  a,
		registry: reg,
		journal:  journal,
		relay:    relay,
		archiver: opts.Archiver,
		reports:  opts.Reports,
		audit:    opts.Audit,
		logger:   logger.With(slog.String("component", "auction_service")),
	}
}

// Status returns the auction snapshot.
func (s *AuctionService) Status(_ context.Context) domain.AuctionStatus {
	return s.auction.Status()
}

// Owner returns the administrator address.
func (s *AuctionService) Owner() common.Address { return s.auction.Owner() }

// Auditor returns the registry auditor address.
func (s *AuctionService) Auditor() common.Address { return s.registry.Auditor() }

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Authorities lists every known authority key.
func (s *AuctionService) Authorities(_ context.Context) []domain.RegistryEntry {
	return s.registry.Authorities()
}

// Authority returns one registry entry.
func (s *AuctionService) Authority(_ context.Context, addr common.Address) (domain.RegistryEntry, error) {
	e, ok := s.registry.Entry(addr)
	if !ok {
		return domain.RegistryEntry{}, fmt.Errorf("service: authority %s: %w", addr.Hex(), domain.ErrNotFound)
	}
	return e, nil
}

// AddAuthority trusts a new authority key. Auditor only.
func (s *AuctionService) AddAuthority(ctx context.Context, caller, authority common.Address) error {
	err := s.registry.AddAuthority(caller, authority)
	if s.done(ctx, "add_authority", caller, err, slog.String("authority", authority.Hex())) {
		s.recordAudit(ctx, "authority.added", caller, map[string]any{"authority": authority.Hex()})
	}
	return err
}

// RevokeAuthority stops trusting an authority key. Auditor only.
func (s *AuctionService) RevokeAuthority(ctx context.Context, caller, authority common.Address) error {
	err := s.registry.RevokeAuthority(caller, authority)
	if s.done(ctx, "revoke_authority", caller, err, slog.String("authority", authority.Hex())) {
		s.recordAudit(ctx, "authority.revoked", caller, map[string]any{"authority": authority.Hex()})
	}
	return err
}

// --------------------------------------------------------------------------
// Bidding
// --------------------------------------------------------------------------

// PlaceBid records a sealed bid for caller.
func (s *AuctionService) PlaceBid(ctx context.Context, caller common.Address, req BidRequest) (domain.BidCommitment, error) {
	c, err := s.auction.PlaceBid(caller, req.Certificate, req.AuthoritySig, req.Binding, req.SealedHash)
	s.done(ctx, "place_bid", caller, err, slog.Uint64("index", c.Index))
	return c, err
}

// WithdrawBid removes one of caller's sealed bids.
func (s *AuctionService) WithdrawBid(ctx context.Context, caller common.Address, cert domain.Certificate, binding, sealed common.Hash) error {
	err := s.auction.WithdrawBid(caller, cert, binding, sealed)
	s.done(ctx, "withdraw_bid", caller, err, slog.String("hash", sealed.Hex()))
	return err
}

// Commitments lists bidder's commitments, including consumed ones.
func (s *AuctionService) Commitments(_ context.Context, bidder common.Address) []domain.BidCommitment {
	return s.auction.Commitments(bidder)
}

// Reveal opens every live commitment of caller and escrows payment.
func (s *AuctionService) Reveal(ctx context.Context, caller common.Address, shares []uint64, prices []*uint256.Int, payment *uint256.Int) ([]domain.RevealedBid, error) {
	bids, err := s.auction.Reveal(caller, shares, prices, payment)
	s.done(ctx, "reveal", caller, err, slog.Int("bids", len(bids)))
	return bids, err
}

// RevealedBy lists the bids bidder has revealed.
func (s *AuctionService) RevealedBy(_ context.Context, bidder common.Address) []domain.RevealedBid {
	return s.auction.RevealedBy(bidder)
}

// RemoveInvalidBids purges every unrevealed commitment. Owner only.
func (s *AuctionService) RemoveInvalidBids(ctx context.Context, caller common.Address) (int, error) {
	n, err := s.auction.RemoveInvalidBids(caller)
	s.done(ctx, "remove_invalid_bids", caller, err, slog.Int("purged", n))
	return n, err
}

// --------------------------------------------------------------------------
// Allocation
// --------------------------------------------------------------------------

// LoadInvestors stores the ranked investor list. Owner only.
func (s *AuctionService) LoadInvestors(ctx context.Context, caller common.Address, cols domain.InvestorColumns) error {
	err := s.auction.LoadInvestors(caller, cols.Addresses, cols.Timestamps, cols.Shares, cols.Prices)
	s.done(ctx, "load_investors", caller, err, slog.Int("investors", len(cols.Addresses)))
	return err
}

// Investor returns the loaded investor at index.
func (s *AuctionService) Investor(_ context.Context, index int) (domain.Investor, error) {
	return s.auction.GetInvestor(index)
}

// VerifyInvestorOrder re-checks the loaded list against the ranking.
func (s *AuctionService) VerifyInvestorOrder(_ context.Context) domain.OrderReport {
	v := s.auction.VerifyInvestorOrder()
	if v == nil {
		v = []domain.OrderViolation{}
	}
	return domain.OrderReport{Valid: len(v) == 0, Violations: v}
}

// DistributeShares allocates shares down the ranked list and archives the
// settlement report. Owner only.
func (s *AuctionService) DistributeShares(ctx context.Context, caller common.Address) ([]domain.AllocationRecord, error) {
	records, err := s.auction.DistributeShares(caller)
	if !s.done(ctx, "distribute_shares", caller, err, slog.Int("entries", len(records))) {
		return nil, err
	}

	proceeds, _ := s.auction.Proceeds()
	s.recordAudit(ctx, "shares.distributed", caller, map[string]any{
		"entries":  len(records),
		"proceeds": proceeds.Dec(),
	})
	s.archiveSettlement(ctx, records, proceeds)
	return records, nil
}

// Allocations returns the allocation records in rank order.
func (s *AuctionService) Allocations(_ context.Context) []domain.AllocationRecord {
	return s.auction.Allocations()
}

// --------------------------------------------------------------------------
// Settlement
// --------------------------------------------------------------------------

// TransferPayment pays the owner the allocation proceeds and exports the
// journal. Owner only.
func (s *AuctionService) TransferPayment(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	amount, err := s.auction.TransferPayment(caller)
	var amountAttr slog.Attr
	if amount != nil {
		amountAttr = slog.String("amount", amount.Dec())
	}
	if !s.done(ctx, "transfer_payment", caller, err, amountAttr) {
		return nil, err
	}
	s.recordAudit(ctx, "escrow.proceeds_paid", caller, map[string]any{"amount": amount.Dec()})
	s.archiveJournal(ctx)
	return amount, nil
}

// ClaimRefund pays caller the unspent part of their deposit.
func (s *AuctionService) ClaimRefund(ctx context.Context, caller common.Address) (*uint256.Int, error) {
	amount, err := s.auction.ClaimRefund(caller)
	var amountAttr slog.Attr
	if amount != nil {
		amountAttr = slog.String("amount", amount.Dec())
	}
	s.done(ctx, "claim_refund", caller, err, amountAttr)
	return amount, err
}

// EscrowSummary reports escrow totals for one address.
type EscrowSummary struct {
	Deposit       *uint256.Int `json:"deposit"`
	PaidOut       *uint256.Int `json:"paid_out"`
	RefundClaimed bool         `json:"refund_claimed"`
}

// Escrow returns the escrow position of addr.
func (s *AuctionService) Escrow(_ context.Context, addr common.Address) EscrowSummary {
	return EscrowSummary{
		Deposit:       s.auction.Deposits(addr),
		PaidOut:       s.auction.PaidOut(addr),
		RefundClaimed: s.auction.RefundClaimed(addr),
	}
}

// --------------------------------------------------------------------------
// Shares
// --------------------------------------------------------------------------

// BalanceOf returns the share balance of addr.
func (s *AuctionService) BalanceOf(_ context.Context, addr common.Address) uint64 {
	return s.auction.BalanceOf(addr)
}

// TransferShares moves shares from caller to to.
func (s *AuctionService) TransferShares(ctx context.Context, caller, to common.Address, amount uint64) error {
	err := s.auction.TransferShares(caller, to, amount)
	s.done(ctx, "transfer_shares", caller, err, slog.String("to", to.Hex()), slog.Uint64("amount", amount))
	return err
}

// --------------------------------------------------------------------------
// Journal & reports
// --------------------------------------------------------------------------

// Events returns up to limit journal events after seq.
func (s *AuctionService) Events(_ context.Context, after uint64, limit int) []domain.Event {
	events := s.journal.Since(after)
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events
}

// Reports lists archived settlement reports. It returns ErrNotFound when
// blob storage is not configured.
func (s *AuctionService) Reports(ctx context.Context) ([]domain.BlobInfo, error) {
	if s.reports == nil {
		return nil, fmt.Errorf("service: report storage: %w", domain.ErrNotFound)
	}
	return s.reports.List(ctx, domain.SettlementReportPrefix)
}

// AuditLog lists audit entries, newest first. Only the owner and the
// auditor may read it.
func (s *AuctionService) AuditLog(ctx context.Context, caller common.Address, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if caller != s.auction.Owner() && caller != s.registry.Auditor() {
		return nil, fmt.Errorf("service: audit log: %w", domain.ErrForbidden)
	}
	if s.audit == nil {
		return nil, fmt.Errorf("service: audit log: %w", domain.ErrNotFound)
	}
	return s.audit.List(ctx, opts)
}

// Report opens one archived settlement report by file name.
func (s *AuctionService) Report(ctx context.Context, name string) (io.ReadCloser, error) {
	if s.reports == nil {
		return nil, fmt.Errorf("service: report storage: %w", domain.ErrNotFound)
	}
	if name == "" || name != path.Base(name) || !strings.HasSuffix(name, ".json") {
		return nil, fmt.Errorf("service: report %q: %w", name, domain.ErrInvalidArgument)
	}
	return s.reports.Get(ctx, domain.SettlementReportPrefix+name)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// done logs the outcome of a mutation and flushes the relay on success.
// It reports whether the operation succeeded.
func (s *AuctionService) done(ctx context.Context, op string, caller common.Address, err error, attrs ...slog.Attr) bool {
	args := make([]any, 0, len(attrs)+3)
	args = append(args, slog.String("op", op), slog.String("caller", caller.Hex()))
	for _, a := range attrs {
		if a.Key != "" {
			args = append(args, a)
		}
	}

	if err != nil {
		args = append(args, slog.String("error", err.Error()))
		s.logger.WarnContext(ctx, "auction_service: rejected", args...)
		return false
	}
	s.logger.InfoContext(ctx, "auction_service: accepted", args...)

	if s.relay != nil {
		if _, ferr := s.relay.Flush(ctx); ferr != nil {
			s.logger.WarnContext(ctx, "auction_service: relay flush failed",
				slog.String("op", op),
				slog.String("error", ferr.Error()),
			)
		}
	}
	return true
}

func (s *AuctionService) recordAudit(ctx context.Context, event string, caller common.Address, detail map[string]any) {
	if s.audit == nil {
		return
	}
	detail["caller"] = caller.Hex()
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "auction_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuctionService) archiveSettlement(ctx context.Context, records []domain.AllocationRecord, proceeds *uint256.Int) {
	if s.archiver == nil {
		return
	}
	st := s.auction.Status()
	report := domain.SettlementReport{
		GeneratedAt:  st.Now,
		TotalSupply:  st.TotalSupply,
		OwnerBalance: st.OwnerBalance,
		Proceeds:     proceeds,
		Escrow:       st.Escrow,
		Allocations:  records,
	}
	p, err := s.archiver.ArchiveSettlement(ctx, report)
	if err != nil {
		s.logger.WarnContext(ctx, "auction_service: archive settlement report failed", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "auction_service: settlement report archived", slog.String("path", p))
}

func (s *AuctionService) archiveJournal(ctx context.Context) {
	if s.archiver == nil {
		return
	}
	p, err := s.archiver.ArchiveJournal(ctx, s.journal.Since(0), s.auction.Status().Now)
	if err != nil {
		s.logger.WarnContext(ctx, "auction_service: archive journal failed", slog.String("error", err.Error()))
		return
	}
	s.logger.InfoContext(ctx, "auction_service: journal archived", slog.String("path", p))
}
