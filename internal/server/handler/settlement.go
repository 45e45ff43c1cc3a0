package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/shareauction/internal/service"
)

// SettlementService defines the escrow and share ledger operations the
// handler requires.
type SettlementService interface {
	TransferPayment(ctx context.Context, caller common.Address) (*uint256.Int, error)
	ClaimRefund(ctx context.Context, caller common.Address) (*uint256.Int, error)
	Escrow(ctx context.Context, addr common.Address) service.EscrowSummary
	BalanceOf(ctx context.Context, addr common.Address) uint64
	TransferShares(ctx context.Context, caller, to common.Address, amount uint64) error
}

// SettlementHandler serves payouts, refunds and share transfers.
type SettlementHandler struct {
	svc    SettlementService
	logger *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(svc SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{svc: svc, logger: logger}
}

type amountResponse struct {
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

type balanceResponse struct {
	Address common.Address `json:"address"`
	Balance uint64         `json:"balance"`
}

type transferSharesRequest struct {
	To     common.Address `json:"to"`
	Amount uint64         `json:"amount"`
}

// TransferPayment pays the owner the allocation proceeds. Owner only.
// POST /api/admin/payment
func (h *SettlementHandler) TransferPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	amount, err := h.svc.TransferPayment(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{To: caller, Amount: amount})
}

// ClaimRefund pays the caller the unspent part of their deposit.
// POST /api/refunds
func (h *SettlementHandler) ClaimRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	amount, err := h.svc.ClaimRefund(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, amountResponse{To: caller, Amount: amount})
}

// GetEscrow returns the escrow position of an address.
// GET /api/escrow/{address}
func (h *SettlementHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Escrow(r.Context(), addr))
}

// GetBalance returns the share balance of an address.
// GET /api/shares/{address}
func (h *SettlementHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: h.svc.BalanceOf(r.Context(), addr)})
}

// TransferShares moves shares from the caller.
// POST /api/shares/transfer
func (h *SettlementHandler) TransferShares(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req transferSharesRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := h.svc.TransferShares(r.Context(), caller, req.To, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
