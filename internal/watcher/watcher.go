// Package watcher observes the browser's download directory and reports
// files that land between two points in time. The browser gives no direct
// signal for finished downloads, so completion is inferred from directory
// diffs, the way the archive workflow has always done it.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const defaultPoll = 250 * time.Millisecond

// Chrome writes in-flight downloads under these suffixes and renames them
// on completion.
var partialSuffixes = []string{".crdownload", ".tmp"}

// DirWatcher diffs a single download directory.
type DirWatcher struct {
	dir  string
	poll time.Duration
}

// New creates a watcher for dir.
func New(dir string) *DirWatcher {
	return &DirWatcher{dir: dir, poll: defaultPoll}
}

// Dir returns the watched directory.
func (w *DirWatcher) Dir() string {
	return w.dir
}

// Ensure creates the download directory if it does not exist yet.
func (w *DirWatcher) Ensure() error {
	return os.MkdirAll(w.dir, 0o755)
}

// Snapshot returns the names of the settled files currently present.
// Partial downloads are excluded so a file mid-flight at snapshot time is
// still attributed to the current address once it completes.
func (w *DirWatcher) Snapshot() (map[string]struct{}, error) {
	names, _, err := w.scan()
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Collect returns the full paths of files that appeared since the given
// snapshot. It polls until a new settled file exists with no partials in
// flight, or until settle elapses; whatever settled by then is returned.
// An empty slice with a nil error means the address produced no files.
func (w *DirWatcher) Collect(ctx context.Context, before map[string]struct{}, settle time.Duration) ([]string, error) {
	deadline := time.Now().Add(settle)
	for {
		settled, partials, err := w.scan()
		if err != nil {
			return nil, err
		}
		fresh := diff(settled, before)
		if len(fresh) > 0 && partials == 0 {
			return w.paths(fresh), nil
		}
		if time.Now().After(deadline) {
			return w.paths(fresh), nil
		}

		wait := w.poll
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// scan lists the directory once, splitting entries into settled file names
// and a count of in-flight partials.
func (w *DirWatcher) scan() (map[string]struct{}, int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, 0, err
	}
	settled := make(map[string]struct{}, len(entries))
	partials := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isPartial(e.Name()) {
			partials++
			continue
		}
		settled[e.Name()] = struct{}{}
	}
	return settled, partials, nil
}

func (w *DirWatcher) paths(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, filepath.Join(w.dir, n))
	}
	return out
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func diff(after, before map[string]struct{}) []string {
	var fresh []string
	for name := range after {
		if _, ok := before[name]; !ok {
			fresh = append(fresh, name)
		}
	}
	sort.Strings(fresh)
	return fresh
}
