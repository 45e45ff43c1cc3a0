package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// RegistryService defines the registry operations the handler requires.
type RegistryService interface {
	Authorities(ctx context.Context) []domain.RegistryEntry
	Authority(ctx context.Context, addr common.Address) (domain.RegistryEntry, error)
	AddAuthority(ctx context.Context, caller, authority common.Address) error
	RevokeAuthority(ctx context.Context, caller, authority common.Address) error
}

// RegistryHandler serves the authority registry.
type RegistryHandler struct {
	svc    RegistryService
	logger *slog.Logger
}

// NewRegistryHandler creates a RegistryHandler.
func NewRegistryHandler(svc RegistryService, logger *slog.Logger) *RegistryHandler {
	return &RegistryHandler{svc: svc, logger: logger}
}

type authoritiesResponse struct {
	Authorities []domain.RegistryEntry `json:"authorities"`
}

type addAuthorityRequest struct {
	Authority common.Address `json:"authority"`
}

// ListAuthorities returns every known authority key.
// GET /api/registry/authorities
func (h *RegistryHandler) ListAuthorities(w http.ResponseWriter, r *http.Request) {
	list := h.svc.Authorities(r.Context())
	if list == nil {
		list = []domain.RegistryEntry{}
	}
	writeJSON(w, http.StatusOK, authoritiesResponse{Authorities: list})
}

// GetAuthority returns one registry entry.
// GET /api/registry/authorities/{address}
func (h *RegistryHandler) GetAuthority(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	entry, err := h.svc.Authority(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// AddAuthority trusts a new authority key. Auditor only.
// POST /api/registry/authorities
func (h *RegistryHandler) AddAuthority(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req addAuthorityRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err)
		return
	}
	if err := h.svc.AddAuthority(r.Context(), caller, req.Authority); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	entry, err := h.svc.Authority(r.Context(), req.Authority)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RevokeAuthority stops trusting an authority key. Auditor only.
// DELETE /api/registry/authorities/{address}
func (h *RegistryHandler) RevokeAuthority(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	addr, ok := addressParam(w, r, "address")
	if !ok {
		return
	}
	if err := h.svc.RevokeAuthority(r.Context(), caller, addr); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
