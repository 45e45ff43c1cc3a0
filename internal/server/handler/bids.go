package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/domain"
	"github.com/alanyoungcy/shareauction/internal/service"
)

// BidService defines the bidding operations the handler requires.
type BidService interface {
	PlaceBid(ctx context.Context, caller common.Address, req service.BidRequest) (domain.BidCommitment, error)
	WithdrawBid(ctx context.Context, caller common.Address, cert domain.Certificate, binding, sealed common.Hash) error
	Commitments(ctx context.Context, bidder common.Address) []domain.BidCommitment
	RevealedBy(ctx context.Context, bidder common.Address) []domain.RevealedBid
	Reveal(ctx context.Context, caller common.Address, shares []uint64, prices []*uint256.Int, payment *uint256.Int) ([]domain.RevealedBid, error)
	RemoveInvalidBids(ctx context.Context, caller common.Address) (int, error)
}

// BidHandler serves sealed bids and reveals.
type BidHandler struct {
	svc    BidService
	logger *slog.Logger
}

// NewBidHandler creates a BidHandler.
func NewBidHandler(svc BidService, logger *slog.Logger) *BidHandler {
	return &BidHandler{svc: svc, logger: logger}
}

type placeBidRequest struct {
	Certificate  domain.Certificate `json:"certificate"`
	AuthoritySig hexutil.Bytes      `json:"authority_sig"`
	Binding      common.Hash        `json:"binding"`
	SealedHash   common.Hash        `json:"sealed_hash"`
}

type withdrawBidRequest struct {
	Certificate domain.Certificate `json:"certificate"`
	Binding     common.Hash        `json:"binding"`
	SealedHash  common.Hash        `json:"sealed_hash"`
}

type bidderResponse struct {
	Bidder      common.Address         `json:"bidder"`
	Commitments []domain.BidCommitment `json:"commitments"`
	Revealed    []domain.RevealedBid   `json:"revealed"`
}

type revealRequest struct {
	Shares  []uint64       `json:"shares"`
	Prices  []*uint256.Int `json:"prices"`
	Payment *uint256.Int   `json:"payment"`
}

type revealResponse struct {
	Revealed []domain.RevealedBid `json:"revealed"`
}

// PlaceBid records a sealed bid for the signed caller.
// POST /api/bids
func (h *BidHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req placeBidRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	c, err := h.svc.PlaceBid(r.Context(), caller, service.BidRequest{
		Certificate:  req.Certificate,
		AuthoritySig: req.AuthoritySig,
		Binding:      req.Binding,
		SealedHash:   req.SealedHash,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// WithdrawBid removes one of the caller's sealed bids.
// POST /api/bids/withdraw
func (h *BidHandler) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req withdrawBidRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := h.svc.WithdrawBid(r.Context(), caller, req.Certificate, req.Binding, req.SealedHash); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBids returns a bidder's commitments and revealed bids. Sealed hashes
// are never exposed.
// GET /api/bids/{address}
func (h *BidHandler) GetBids(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	resp := bidderResponse{
		Bidder:      addr,
		Commitments: h.svc.Commitments(r.Context(), addr),
		Revealed:    h.svc.RevealedBy(r.Context(), addr),
	}
	if resp.Commitments == nil {
		resp.Commitments = []domain.BidCommitment{}
	}
	if resp.Revealed == nil {
		resp.Revealed = []domain.RevealedBid{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reveal opens every live commitment of the caller.
// POST /api/reveal
func (h *BidHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req revealRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	bids, err := h.svc.Reveal(r.Context(), caller, req.Shares, req.Prices, req.Payment)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, revealResponse{Revealed: bids})
}

// PurgeBids removes every unrevealed commitment. Owner only.
// POST /api/admin/bids/purge
func (h *BidHandler) PurgeBids(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	n, err := h.svc.RemoveInvalidBids(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}
