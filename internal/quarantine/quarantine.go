// Package quarantine implements spec §7's "intentional descriptor leaks for
// forensics": when a close() retry loop exhausts its attempts, the
// descriptor is not freed, but tracked in a tagged pool for post-mortem
// reporting, per spec §9's re-architecture note.
package quarantine

import (
	"fmt"
	"sync"
	"time"
)

// Entry describes one leaked resource.
type Entry struct {
	FD     int
	Source string
	At     time.Time
}

// String renders the entry using the broken_fd(%d:%s) format spec §7 names.
func (e Entry) String() string {
	return fmt.Sprintf("broken_fd(%d:%s)", e.FD, e.Source)
}

// Pool collects quarantined entries for the lifetime of one terminal
// context.
type Pool struct {
	mu      sync.Mutex
	entries []Entry
}

// Add records a leaked descriptor. It never closes fd.
func (p *Pool) Add(fd int, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, Entry{FD: fd, Source: source, At: time.Now()})
}

// Entries returns a snapshot of all quarantined resources.
func (p *Pool) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// CloseRetrying attempts closer up to maxAttempts times (spec §7: "retry up
// to 10 times"). On persistent failure it quarantines fd under source
// instead of returning the error to the caller, matching the "leak
// intentionally" policy.
func CloseRetrying(p *Pool, fd int, source string, maxAttempts int, closer func() error) {
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = closer(); err == nil {
			return
		}
	}
	p.Add(fd, source)
}
