package clock

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// TickLog is an optional, non-authoritative append-only record of
// committed chain entries, for operator debugging only. The in-memory
// ring below remains the sole source of truth per spec (no persistence
// is required for correctness); a TickLog failure never aborts an
// Append/ReplaceAll.
type TickLog interface {
	LogEntry(entry ChainEntry) error
}

// ChainStore is a bounded FIFO of selected ChainEntries. It is never
// empty: the genesis entry is installed on construction (invariant 1).
type ChainStore struct {
	mu       sync.RWMutex
	maxLen   int
	entries  []ChainEntry
	ancestry *lru.Cache // this_tick -> height, across ring history
	log      TickLog
}

// NewChainStore returns a genesis-seeded ChainStore with the given ring
// capacity. log may be nil, in which case committed entries are not
// mirrored anywhere durable.
func NewChainStore(maxLen int, log TickLog) (*ChainStore, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("clock: chain_max_length must be positive, got %d", maxLen)
	}
	cache, err := lru.New(maxLen * 8)
	if err != nil {
		return nil, fmt.Errorf("clock: build ancestry cache: %w", err)
	}
	cs := &ChainStore{
		maxLen:   maxLen,
		entries:  []ChainEntry{GenesisEntry()},
		ancestry: cache,
		log:      log,
	}
	for ref, t := range cs.entries[0] {
		cs.ancestry.Add(ref, t.Height)
	}
	return cs, nil
}

// Append adds entry, atomically dropping the oldest entry if the ring is
// full. No partial state is ever visible to concurrent readers.
func (c *ChainStore) Append(entry ChainEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(entry)
}

func (c *ChainStore) appendLocked(entry ChainEntry) {
	if len(c.entries) >= c.maxLen {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, entry)
	for ref, t := range entry {
		c.ancestry.Add(ref, t.Height)
	}
	if c.log != nil {
		if err := c.log.LogEntry(entry); err != nil {
			// Best-effort only; the ring is authoritative.
			_ = err
		}
	}
}

// Tip returns the most recently appended entry.
func (c *ChainStore) Tip() ChainEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[len(c.entries)-1]
}

// Height returns the maximum height among the tip's ticks.
func (c *ChainStore) Height() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maxHeight(c.entries[len(c.entries)-1])
}

func maxHeight(e ChainEntry) int64 {
	var h int64 = -1
	for _, t := range e {
		if t.Height > h {
			h = t.Height
		}
	}
	return h
}

// Snapshot returns a copy of the current ring, oldest first.
func (c *ChainStore) Snapshot() []ChainEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChainEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Known reports whether ref names a tick this store has committed in its
// recent history (not just the current tip) — an O(1) ancestry lookup
// instead of scanning every entry's keys. The index is an LRU holding up to
// eight times the ring capacity; older refs fall out of it, and ReplaceAll
// rebuilds it from the new ring only.
func (c *ChainStore) Known(ref string) bool {
	_, ok := c.ancestry.Get(ref)
	return ok
}

// Len returns the number of entries currently in the ring.
func (c *ChainStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ReplaceAll clears the ring and reinstalls seq in order, used only by
// ForkResolver under the cycle lock. It enforces invariant (2) — every
// non-genesis entry's ticks must link to a key in the previous entry at
// height+1 — and fails with ErrStoreReplace (leaving the store unchanged)
// if any entry violates it.
func (c *ChainStore) ReplaceAll(seq []ChainEntry) error {
	if len(seq) == 0 {
		return fmt.Errorf("%w: empty replacement sequence", ErrStoreReplace)
	}
	for i := 1; i < len(seq); i++ {
		prev, cur := seq[i-1], seq[i]
		for ref, t := range cur {
			if _, ok := prev[t.PrevTick]; !ok {
				return fmt.Errorf("%w: entry %d tick %s prev_tick %s not in previous entry",
					ErrStoreReplace, i, ref, t.PrevTick)
			}
			if t.Height != maxHeight(prev)+1 {
				return fmt.Errorf("%w: entry %d tick %s height %d != %d",
					ErrStoreReplace, i, ref, t.Height, maxHeight(prev)+1)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	start := 0
	if len(seq) > c.maxLen {
		start = len(seq) - c.maxLen
	}
	trimmed := make([]ChainEntry, len(seq)-start)
	copy(trimmed, seq[start:])
	c.entries = trimmed
	c.ancestry.Purge()
	for _, e := range c.entries {
		for ref, t := range e {
			c.ancestry.Add(ref, t.Height)
		}
	}
	if c.log != nil {
		for _, e := range c.entries {
			if err := c.log.LogEntry(e); err != nil {
				_ = err
			}
		}
	}
	return nil
}
