// Package ledger defines the interfaces for the completion ledger that
// makes archive runs resumable. Every successfully archived address is
// recorded durably; the next run subtracts the recorded set from its
// worklist and continues where the previous run stopped.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/seumter-tools/registry-archiver/internal/address"
)

// Provider is the common interface for ledger backends.
//
// MarkDone must not return until the record is durable: a process killed
// right after MarkDone returns may not archive that address twice.
type Provider interface {
	// Completed returns the set of normalized addresses already recorded.
	Completed(ctx context.Context) (map[string]struct{}, error)

	// MarkDone records an address as archived. Recording the same address
	// again is a no-op.
	MarkDone(ctx context.Context, addr string) error

	// Close releases the backend.
	Close() error
}

// MemoryProvider keeps the ledger in process memory. Nothing survives a
// restart, which makes it suitable only for tests and throwaway runs.
type MemoryProvider struct {
	mu   sync.Mutex
	done map[string]struct{}
}

// NewMemoryProvider creates an empty in-memory ledger.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{done: make(map[string]struct{})}
}

// Completed returns a copy of the recorded set.
func (m *MemoryProvider) Completed(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.done))
	for k := range m.done {
		out[k] = struct{}{}
	}
	return out, nil
}

// MarkDone records the normalized address.
func (m *MemoryProvider) MarkDone(ctx context.Context, addr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := address.Normalize(addr)
	if key == "" {
		return fmt.Errorf("refusing to record blank address")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[key] = struct{}{}
	return nil
}

// Close does nothing.
func (m *MemoryProvider) Close() error { return nil }
