package auction

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// TrustSource answers whether an authority key may currently sign
// certificates.
type TrustSource interface {
	IsTrusted(authority common.Address) bool
}

// Registry is the auditor-controlled set of certifying authority keys.
type Registry struct {
	mu      sync.RWMutex
	auditor common.Address
	entries map[common.Address]domain.RegistryEntry
	journal *Journal
	clock   Clock
}

// NewRegistry creates an empty registry administered by auditor.
func NewRegistry(auditor common.Address, journal *Journal, clock Clock) *Registry {
	return &Registry{
		auditor: auditor,
		entries: make(map[common.Address]domain.RegistryEntry),
		journal: journal,
		clock:   clock,
	}
}

// Auditor returns the registry administrator.
func (r *Registry) Auditor() common.Address { return r.auditor }

// AddAuthority trusts authority for future certificate verifications.
// Adding a key that is already active does nothing.
func (r *Registry) AddAuthority(caller, authority common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.auditor {
		return fmt.Errorf("auction: add authority: %w", domain.ErrForbidden)
	}
	if authority == (common.Address{}) {
		return fmt.Errorf("auction: add authority: %w: zero address", domain.ErrInvalidArgument)
	}
	if e, ok := r.entries[authority]; ok && e.Active {
		return nil
	}
	return r.commit(caller, change{domain.EventAuthorityAdded, domain.AuthorityAdded{Authority: authority}})
}

// RevokeAuthority stops trusting authority. Commitments already placed
// under its certificates are unaffected.
func (r *Registry) RevokeAuthority(caller, authority common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.auditor {
		return fmt.Errorf("auction: revoke authority: %w", domain.ErrForbidden)
	}
	if e, ok := r.entries[authority]; !ok || !e.Active {
		return fmt.Errorf("auction: revoke authority %s: %w", authority.Hex(), domain.ErrNotFound)
	}
	return r.commit(caller, change{domain.EventAuthorityRevoked, domain.AuthorityRevoked{Authority: authority}})
}

// IsTrusted reports whether authority is an active entry.
func (r *Registry) IsTrusted(authority common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[authority].Active
}

// Entry returns the registry entry for authority, if one was ever added.
func (r *Registry) Entry(authority common.Address) (domain.RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[authority]
	return e, ok
}

// Authorities lists every entry, active or revoked, ordered by address.
func (r *Registry) Authorities() []domain.RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Authority.Bytes(), out[j].Authority.Bytes()) < 0
	})
	return out
}

func (r *Registry) commit(actor common.Address, c change) error {
	now := r.clock.Now()
	if err := r.journal.append(actor, now, []change{c}); err != nil {
		return err
	}
	r.apply(now, c.payload)
	return nil
}

func (r *Registry) apply(at time.Time, payload any) {
	switch p := payload.(type) {
	case domain.AuthorityAdded:
		r.entries[p.Authority] = domain.RegistryEntry{Authority: p.Authority, Active: true, AddedAt: at}
	case domain.AuthorityRevoked:
		e := r.entries[p.Authority]
		e.Active = false
		r.entries[p.Authority] = e
	}
}
