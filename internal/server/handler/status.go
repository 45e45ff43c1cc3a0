package handler

import (
	"context"
	"net/http"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// StatusService is what the status handler needs.
type StatusService interface {
	Status(ctx context.Context) domain.AuctionStatus
}

// StatusHandler serves the auction snapshot.
type StatusHandler struct {
	svc StatusService
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(svc StatusService) *StatusHandler {
	return &StatusHandler{svc: svc}
}

// GetStatus responds with phase, deadlines, supply, escrow and flags.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}
