package clock

import (
	"sync"
	"time"
)

// Networker is the fork-resolution slice of the Networker contract (spec
// §6): resolving a peer address to a fetchable chain.
type Networker interface {
	// FetchChain blocks until peerAddr's full chain is retrieved, or
	// returns an error (a FetchError per spec §7).
	FetchChain(peerAddr string) ([]ChainEntry, error)
}

// Validator validates a candidate replacement chain (spec §6).
type Validator interface {
	ValidateChain(chain []ChainEntry) bool
}

// ForkResolver detects a minority-fork condition and, if so, resyncs the
// local chain from a majority peer (spec §4.G).
type ForkResolver struct {
	networker Networker
	validator Validator
	grace     time.Duration

	// cycleLock is the single exclusive flag from spec §5: held across the
	// whole resync sequence, tested by every worker at the head of its
	// loop. No other code acquires it.
	cycleLock *sync.Mutex
}

// NewForkResolver returns a ForkResolver. grace is the pre-fetch sleep
// (spec §4.G step 6, resync_grace, default ~5s).
func NewForkResolver(networker Networker, validator Validator, grace time.Duration, cycleLock *sync.Mutex) *ForkResolver {
	return &ForkResolver{networker: networker, validator: validator, grace: grace, cycleLock: cycleLock}
}

// NeedsResync reports whether more peers are voting on a different
// prev-tick than on ours, per spec §4.G: |fork_pool| > |tick_pool|.
func NeedsResync(pools *Pools) bool {
	return pools.ForkPoolSize() > pools.TickPoolSize()
}

// majorityPrevTick picks the mode of the fork pool's prev_tick multiset,
// ties broken by first-seen (spec §4.G step 4). order preserves first-seen
// iteration order since Go map iteration is randomized.
func majorityPrevTick(forkPool map[string]Tick, order []string) (string, bool) {
	if len(forkPool) == 0 {
		return "", false
	}
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, peer := range order {
		t, ok := forkPool[peer]
		if !ok {
			continue
		}
		if _, seen := firstSeen[t.PrevTick]; !seen {
			firstSeen[t.PrevTick] = i
		}
		counts[t.PrevTick]++
	}
	best := ""
	bestCount := -1
	bestFirst := len(order) + 1
	for ref, c := range counts {
		if c > bestCount || (c == bestCount && firstSeen[ref] < bestFirst) {
			best, bestCount, bestFirst = ref, c, firstSeen[ref]
		}
	}
	return best, true
}

// Resync runs the full fork-recovery protocol (spec §4.G): acquire the
// cycle lock, find the fork pool's majority prev_tick, sleep the grace
// period, fetch+validate+replace from a majority peer, re-admit surviving
// fork ticks into the tick pool, clear the fork pool. Returns whether a
// resync was performed successfully; on any failure the chain and pools
// are left unchanged and the next cycle retries (spec §7 ForkResolver
// failure handling).
func (f *ForkResolver) Resync(pools *Pools, store *ChainStore) (bool, error) {
	f.cycleLock.Lock()
	defer f.cycleLock.Unlock()

	forkPool := pools.ForkPool()
	insertionOrder := pools.ForkOrder()
	majorityPrev, ok := majorityPrevTick(forkPool, insertionOrder)
	if !ok {
		return false, ErrNoResyncTarget
	}

	var majorityPeers []string
	for _, peer := range insertionOrder {
		if t, ok := forkPool[peer]; ok && t.PrevTick == majorityPrev {
			majorityPeers = append(majorityPeers, peer)
		}
	}

	time.Sleep(f.grace)

	synced := false
	for len(majorityPeers) > 0 && !synced {
		next := majorityPeers[len(majorityPeers)-1]
		majorityPeers = majorityPeers[:len(majorityPeers)-1]
		chain, err := f.networker.FetchChain(next)
		if err != nil {
			continue
		}
		if !f.validator.ValidateChain(chain) {
			continue
		}
		if err := store.ReplaceAll(chain); err != nil {
			continue
		}
		synced = true
	}

	if !synced {
		return false, nil
	}

	pools.RestartCycle()
	for _, t := range forkPool {
		if t.PrevTick == majorityPrev {
			pools.AddTick(t.ThisTick, t, store.Snapshot(), DefaultContinuityWindow)
		}
	}
	return true, nil
}
