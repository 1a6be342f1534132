package ledger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/seumter-tools/registry-archiver/internal/address"
)

// FileProvider is the default ledger backend: a plain text file with one
// completed address per line. The format is deliberately boring so an
// operator can inspect or repair it with a text editor.
type FileProvider struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	known map[string]struct{}
}

// NewFileProvider opens (or creates) the ledger file at path and loads the
// recorded set. The file handle stays open in append mode for the life of
// the provider.
func NewFileProvider(path string) (*FileProvider, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	known, err := readEntries(f)
	if err != nil {
		f.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("load ledger %s: %w", path, err)
	}

	return &FileProvider{f: f, path: path, known: known}, nil
}

func readEntries(r io.Reader) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		addr := address.Normalize(scanner.Text())
		if addr == "" {
			continue
		}
		known[addr] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return known, nil
}

// Completed returns a copy of the recorded set.
func (p *FileProvider) Completed(ctx context.Context) (map[string]struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]struct{}, len(p.known))
	for k := range p.known {
		out[k] = struct{}{}
	}
	return out, nil
}

// MarkDone appends the address and fsyncs before returning. An address
// already present in the ledger is skipped without touching the file.
func (p *FileProvider) MarkDone(ctx context.Context, addr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := address.Normalize(addr)
	if key == "" {
		return fmt.Errorf("refusing to record blank address")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.known[key]; ok {
		return nil
	}
	if _, err := p.f.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("append ledger %s: %w", p.path, err)
	}
	if err := p.f.Sync(); err != nil {
		return fmt.Errorf("sync ledger %s: %w", p.path, err)
	}
	p.known[key] = struct{}{}
	return nil
}

// Close closes the underlying file.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.f.Close(); err != nil {
		return fmt.Errorf("close ledger %s: %w", p.path, err)
	}
	return nil
}
