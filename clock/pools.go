package clock

import (
	"container/heap"
	"sync"
	"time"
)

// tickItem is one entry of the tick pool's priority ordering: highest
// cumulative continuity first, ties broken by insertion order (earliest
// wins) — the (-score, seq, tick) tuple from spec §4.E, translated to a
// min-heap over negated score.
type tickItem struct {
	negScore int64
	seq      uint64
	tick     Tick
	ref      string
}

// tickHeap is a container/heap implementation of the informational
// continuity-ordered priority queue the original source built on Python's
// PriorityQueue. The authoritative selection reduction (Selector) does not
// consult this ordering; it is kept only so ActiveTick() can still offer a
// "best so far" peek, per spec §9.
type tickHeap []tickItem

func (h tickHeap) Len() int { return len(h) }
func (h tickHeap) Less(i, j int) bool {
	if h[i].negScore != h[j].negScore {
		return h[i].negScore < h[j].negScore
	}
	return h[i].seq < h[j].seq
}
func (h tickHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tickHeap) Push(x any)         { *h = append(*h, x.(tickItem)) }
func (h *tickHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Pools holds the four in-memory tables driving one consensus cycle:
// ping_pool, tick_pool, vote_pool, fork_pool (spec §3/§4.E). ping_pool
// persists across RestartCycle calls; the other three are cleared.
type Pools struct {
	mu sync.Mutex

	pingPool map[string]Ping // addr -> ping
	votePool map[string]string // voter addr -> voted reference
	forkPool map[string]Tick // peer addr -> fork-candidate tick
	forkOrder []string // peer addrs in first-seen order, for ForkResolver's tiebreak

	tickPool tickHeap
	seq      uint64

	pingAdded *sync.Cond // broadcast when a ping is admitted
	tickAdded *sync.Cond // broadcast when a tick is admitted
}

// NewPools returns an empty Pools (ping pool included).
func NewPools() *Pools {
	p := &Pools{
		pingPool: make(map[string]Ping),
		votePool: make(map[string]string),
		forkPool: make(map[string]Tick),
	}
	p.pingAdded = sync.NewCond(&p.mu)
	p.tickAdded = sync.NewCond(&p.mu)
	return p
}

// AddPing upserts ping by addr(pubkey): a second ping from the same
// address in the same cycle replaces the prior one (invariant 4).
func (p *Pools) AddPing(addr string, ping Ping) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingPool[addr] = ping
	p.pingAdded.Broadcast()
}

// PingPool returns a snapshot of the current ping pool.
func (p *Pools) PingPool() map[string]Ping {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Ping, len(p.pingPool))
	for k, v := range p.pingPool {
		out[k] = v
	}
	return out
}

// PingPoolSize returns the number of pings currently pooled.
func (p *Pools) PingPoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pingPool)
}

// ClearPingPool empties the ping pool (called by the tick builder once its
// contents have been folded into a tick, or on full cycle restart).
func (p *Pools) ClearPingPool() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingPool = make(map[string]Ping)
}

// AddVote stores addr -> v.Reference (spec §4.E add_vote).
func (p *Pools) AddVote(addr string, v Vote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votePool[addr] = v.Reference
}

// VoteCounts aggregates the vote pool by reference.
func (p *Pools) VoteCounts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int)
	for _, ref := range p.votePool {
		counts[ref]++
	}
	return counts
}

// AddFork upserts a peer-origin tick whose prev_tick disagrees with our
// chain tip, keyed by peer address (spec §4.E add_fork).
func (p *Pools) AddFork(peerAddr string, t Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, seen := p.forkPool[peerAddr]; !seen {
		p.forkOrder = append(p.forkOrder, peerAddr)
	}
	p.forkPool[peerAddr] = t
}

// ForkOrder returns the peer addresses currently in the fork pool, in the
// order they were first admitted this cycle (ForkResolver's first-seen
// tiebreak, spec §4.G step 4).
func (p *Pools) ForkOrder() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.forkOrder))
	for _, addr := range p.forkOrder {
		if _, ok := p.forkPool[addr]; ok {
			out = append(out, addr)
		}
	}
	return out
}

// ForkPool returns a snapshot of the fork pool.
func (p *Pools) ForkPool() map[string]Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]Tick, len(p.forkPool))
	for k, v := range p.forkPool {
		out[k] = v
	}
	return out
}

// ForkPoolSize returns the number of peer addresses in the fork pool.
func (p *Pools) ForkPoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.forkPool)
}

// AddTick computes the tick's continuity score against chainSnapshot and
// pushes (-score, seq, tick) onto the tick pool, seq being a monotonically
// increasing insertion counter ensuring FIFO tie-break (spec §4.E add_tick).
func (p *Pools) AddTick(ref string, t Tick, chainSnapshot []ChainEntry, continuityK int) {
	score := measureContinuity(t, chainSnapshot, continuityK)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	heap.Push(&p.tickPool, tickItem{negScore: -score, seq: p.seq, tick: t, ref: ref})
	p.tickAdded.Broadcast()
}

// TickPoolSize returns the number of candidate ticks pooled this round.
func (p *Pools) TickPoolSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tickPool)
}

// ActiveTick returns the head of the continuity-ordered tick pool (the
// informational "best so far" peek), or false if the pool is empty.
func (p *Pools) ActiveTick() (Tick, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tickPool) == 0 {
		return Tick{}, false
	}
	return p.tickPool[0].tick, true
}

// AllTicks returns every (ref, tick) pair currently in the tick pool, in
// no particular order — the set Selector.Select reduces over.
func (p *Pools) AllTicks() []tickItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tickItem, len(p.tickPool))
	copy(out, p.tickPool)
	return out
}

// TicksByRef returns every pooled tick whose reference is in refs.
func (p *Pools) TicksByRef(refs map[string]bool) []Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Tick
	for _, item := range p.tickPool {
		if refs[item.ref] {
			out = append(out, item.tick)
		}
	}
	return out
}

// RestartCycle clears tick_pool, vote_pool, and fork_pool. ping_pool is
// deliberately left untouched: faster peers may already have emitted
// next-round pings before we finish selecting (spec §4.E).
func (p *Pools) RestartCycle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickPool = nil
	p.votePool = make(map[string]string)
	p.forkPool = make(map[string]Tick)
	p.forkOrder = nil
}

// WaitForPing blocks until the ping pool is non-empty or timeout elapses,
// replacing the source's busy-wait `while ping is None: sleep(0.1)` with a
// condition-variable wait (spec §9 design note). Returns false on timeout.
func (p *Pools) WaitForPing(timeout time.Duration) bool {
	timer := time.AfterFunc(timeout, p.pingAdded.Broadcast)
	defer timer.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := time.Now().Add(timeout)
	for len(p.pingPool) == 0 {
		if time.Now().After(deadline) {
			return false
		}
		p.pingAdded.Wait()
	}
	return true
}

// WaitForTick blocks until the tick pool is non-empty or timeout elapses.
// Returns false on timeout.
func (p *Pools) WaitForTick(timeout time.Duration) bool {
	timer := time.AfterFunc(timeout, p.tickAdded.Broadcast)
	defer timer.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	deadline := time.Now().Add(timeout)
	for len(p.tickPool) == 0 {
		if time.Now().After(deadline) {
			return false
		}
		p.tickAdded.Wait()
	}
	return true
}
