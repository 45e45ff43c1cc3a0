package auction

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/shareauction/internal/domain"
)

// Journal is the append-only event log of the registry and the auction. It
// doubles as the outbox: the service layer relays entries past its cursor
// to subscribers.
type Journal struct {
	mu      sync.RWMutex
	events  []domain.Event
	persist PersistFunc
}

// PersistFunc durably stores a batch of numbered events.
type PersistFunc func(events []domain.Event) error

// NewJournal returns an empty in-memory journal.
func NewJournal() *Journal {
	return &Journal{}
}

// NewDurableJournal returns an empty journal that writes every batch
// through persist before accepting it. A failed write rejects the batch
// with domain.ErrPersist, so the operation that produced it has no effect.
func NewDurableJournal(persist PersistFunc) *Journal {
	return &Journal{persist: persist}
}

// change is an event under construction: the typed payload is applied to
// in-memory state once the encoded event is in the journal.
type change struct {
	kind    domain.EventKind
	payload any
}

// append encodes and stores a batch. Nothing is stored if any payload fails
// to encode.
func (j *Journal) append(actor common.Address, at time.Time, batch []change) error {
	encoded := make([]domain.Event, len(batch))
	for i, c := range batch {
		raw, err := json.Marshal(c.payload)
		if err != nil {
			return fmt.Errorf("auction: encode %s event: %w", c.kind, err)
		}
		encoded[i] = domain.Event{
			ID:      uuid.NewString(),
			Kind:    c.kind,
			Actor:   actor,
			At:      at,
			Payload: raw,
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	next := uint64(len(j.events)) + 1
	for i := range encoded {
		encoded[i].Seq = next + uint64(i)
	}
	if j.persist != nil {
		if err := j.persist(encoded); err != nil {
			return fmt.Errorf("auction: %w: %w", domain.ErrPersist, err)
		}
	}
	j.events = append(j.events, encoded...)
	return nil
}

// Since returns a copy of every event with Seq > seq.
func (j *Journal) Since(seq uint64) []domain.Event {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if seq >= uint64(len(j.events)) {
		return nil
	}
	out := make([]domain.Event, len(j.events)-int(seq))
	copy(out, j.events[seq:])
	return out
}

// LastSeq returns the sequence number of the newest event, or 0.
func (j *Journal) LastSeq() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return uint64(len(j.events))
}

func (j *Journal) load(events []domain.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.events) != 0 {
		return fmt.Errorf("auction: restore into non-empty journal")
	}
	for i, e := range events {
		if e.Seq != uint64(i)+1 {
			return fmt.Errorf("auction: restore: event %d has seq %d", i+1, e.Seq)
		}
	}
	j.events = append(j.events, events...)
	return nil
}
