package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// sweepEvery is how many claims pass between expiry sweeps.
const sweepEvery = 256

// MemoryNonces is a process-local domain.NonceStore for daemons running
// without Redis.
type MemoryNonces struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	claims int
	now    func() time.Time
}

// NewMemoryNonces returns an empty in-memory nonce store.
func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{seen: make(map[string]time.Time), now: time.Now}
}

// Claim records key until ttl elapses and reports whether it was new.
func (m *MemoryNonces) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.claims++
	if m.claims%sweepEvery == 0 {
		for k, exp := range m.seen {
			if !now.Before(exp) {
				delete(m.seen, k)
			}
		}
	}
	if exp, ok := m.seen[key]; ok && now.Before(exp) {
		return false, nil
	}
	m.seen[key] = now.Add(ttl)
	return true, nil
}

var _ domain.NonceStore = (*MemoryNonces)(nil)
