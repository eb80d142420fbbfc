// Package election hands out P4Runtime election ids. Each device has its own
// monotonically increasing counter; a client that takes the next id becomes
// the preferred primary for that device.
package election

import (
	"context"
	"fmt"
	"sync"
	"time"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
)

// Record is the last election id handed out for a device.
type Record struct {
	ID      *p4v1.Uint128
	Holder  string
	Updated time.Time
}

// Store allocates election ids.
type Store interface {
	// Next returns an id strictly greater than every id previously
	// returned for deviceID.
	Next(ctx context.Context, deviceID string) (*p4v1.Uint128, error)

	// Current returns the last id handed out for deviceID, or nil if none.
	Current(ctx context.Context, deviceID string) (*Record, error)
}

// Key returns the store key of a device's election counter.
func Key(deviceID string) string {
	return fmt.Sprintf("P4RT_ELECTION|%s", deviceID)
}

// MemoryStore is a Store for a single process.
type MemoryStore struct {
	holder string

	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty store. holder is recorded with every id.
func NewMemoryStore(holder string) *MemoryStore {
	return &MemoryStore{
		holder:  holder,
		records: make(map[string]Record),
	}
}

// Next implements Store.
func (s *MemoryStore) Next(_ context.Context, deviceID string) (*p4v1.Uint128, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var low uint64 = 1
	if r, ok := s.records[deviceID]; ok {
		low = r.ID.GetLow() + 1
	}
	id := &p4v1.Uint128{Low: low}
	s.records[deviceID] = Record{ID: id, Holder: s.holder, Updated: time.Now().UTC()}
	return id, nil
}

// Current implements Store.
func (s *MemoryStore) Current(_ context.Context, deviceID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[deviceID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}
