package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestFileProviderCreatesEmptyLedger(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.txt")
	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close() //nolint:errcheck

	done, err := p.Completed(context.Background())
	if err != nil {
		t.Fatalf("Completed() error = %v", err)
	}
	if len(done) != 0 {
		t.Fatalf("expected empty ledger, got %v", done)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected ledger file to exist: %v", err)
	}
}

func TestFileProviderLoadsExistingEntries(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.txt")
	seed := strings.Join([]string{
		"서울특별시 강남구 압구정동 369-1",
		"",
		"  서울특별시 강남구   압구정동 430  ",
		norm.NFD.String("서울특별시 강남구 압구정동 454"),
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("seed ledger: %v", err)
	}

	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close() //nolint:errcheck

	done, err := p.Completed(context.Background())
	if err != nil {
		t.Fatalf("Completed() error = %v", err)
	}
	for _, want := range []string{
		"서울특별시 강남구 압구정동 369-1",
		"서울특별시 강남구 압구정동 430",
		"서울특별시 강남구 압구정동 454",
	} {
		if _, ok := done[want]; !ok {
			t.Fatalf("expected %q in ledger, got %v", want, done)
		}
	}
	if len(done) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(done))
	}
}

func TestFileProviderMarkDoneDurable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.txt")
	p, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	addr := "서울특별시 강남구 압구정동 369-1"
	if err := p.MarkDone(context.Background(), addr); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}
	// Repeat recordings must not duplicate the line.
	if err := p.MarkDone(context.Background(), "  "+addr+"  "); err != nil {
		t.Fatalf("MarkDone() repeat error = %v", err)
	}

	// The record is visible on disk before Close.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if got := string(data); got != addr+"\n" {
		t.Fatalf("ledger content = %q, want single line %q", got, addr+"\n")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestFileProviderResumesAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "processed.txt")
	first, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	if err := first.MarkDone(context.Background(), "압구정동 369-1"); err != nil {
		t.Fatalf("MarkDone() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer second.Close() //nolint:errcheck

	done, err := second.Completed(context.Background())
	if err != nil {
		t.Fatalf("Completed() error = %v", err)
	}
	if _, ok := done["압구정동 369-1"]; !ok {
		t.Fatalf("expected entry to survive reopen, got %v", done)
	}

	// Recording the same address in the new process is still a no-op.
	if err := second.MarkDone(context.Background(), "압구정동 369-1"); err != nil {
		t.Fatalf("MarkDone() after reopen error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 1 {
		t.Fatalf("expected 1 ledger line after reopen, got %d: %q", lines, string(data))
	}
}

func TestFileProviderRejectsBlank(t *testing.T) {
	t.Parallel()

	p, err := NewFileProvider(filepath.Join(t.TempDir(), "processed.txt"))
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}
	defer p.Close() //nolint:errcheck

	if err := p.MarkDone(context.Background(), "   \t"); err == nil {
		t.Fatal("expected error recording blank address")
	}
}
