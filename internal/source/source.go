// Package source defines the interfaces for loading the address worklist
// that drives an archive run. The abstraction keeps the run logic
// independent of where the worklist lives (an xlsx workbook today, anything
// else tomorrow).
package source

import (
	"context"
	"errors"

	"github.com/seumter-tools/registry-archiver/internal/address"
)

// ErrUnavailable marks a worklist that cannot be opened or parsed. Runs
// abort before touching the portal when the worklist is unreadable.
var ErrUnavailable = errors.New("address source unavailable")

// Provider yields the ordered address worklist for a run.
type Provider interface {
	// Load returns every address in worklist order, normalized and with
	// duplicates removed. First occurrence wins the ordering.
	Load(ctx context.Context) ([]string, error)
}

// Static is a fixed in-memory worklist. It is useful for tests and for
// dry runs that feed a handful of addresses by hand.
type Static []string

// Load normalizes and deduplicates the static list.
func (s Static) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return normalizeList(s), nil
}

func normalizeList(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		addr := address.Normalize(r)
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
