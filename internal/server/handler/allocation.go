package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// AllocationService defines the allocation operations the handler requires.
type AllocationService interface {
	LoadInvestors(ctx context.Context, caller common.Address, cols domain.InvestorColumns) error
	Investor(ctx context.Context, index int) (domain.Investor, error)
	VerifyInvestorOrder(ctx context.Context) domain.OrderReport
	DistributeShares(ctx context.Context, caller common.Address) ([]domain.AllocationRecord, error)
	Allocations(ctx context.Context) []domain.AllocationRecord
}

// AllocationHandler serves the investor list and share distribution.
type AllocationHandler struct {
	svc    AllocationService
	logger *slog.Logger
}

// NewAllocationHandler creates an AllocationHandler.
func NewAllocationHandler(svc AllocationService, logger *slog.Logger) *AllocationHandler {
	return &AllocationHandler{svc: svc, logger: logger}
}

type allocationsResponse struct {
	Allocations []domain.AllocationRecord `json:"allocations"`
}

// LoadInvestors stores the ranked investor list. Owner only.
// POST /api/admin/investors
func (h *AllocationHandler) LoadInvestors(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var cols domain.InvestorColumns
	if err := decodeJSON(r, &cols); err != nil {
		badRequest(w, err)
		return
	}
	if err := h.svc.LoadInvestors(r.Context(), caller, cols); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetInvestor returns the loaded investor at a rank.
// GET /api/investors/{index}
func (h *AllocationHandler) GetInvestor(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid investor index")
		return
	}
	inv, err := h.svc.Investor(r.Context(), index)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// VerifyOrder re-checks the loaded list against the ranking.
// GET /api/investors/verify
func (h *AllocationHandler) VerifyOrder(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.VerifyInvestorOrder(r.Context()))
}

// Distribute allocates shares down the ranked list. Owner only.
// POST /api/admin/distribute
func (h *AllocationHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	records, err := h.svc.DistributeShares(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, allocationsResponse{Allocations: records})
}

// ListAllocations returns the allocation records in rank order.
// GET /api/allocations
func (h *AllocationHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	records := h.svc.Allocations(r.Context())
	if records == nil {
		records = []domain.AllocationRecord{}
	}
	writeJSON(w, http.StatusOK, allocationsResponse{Allocations: records})
}
