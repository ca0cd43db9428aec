package clock

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeNetworker struct {
	chains map[string][]ChainEntry // peer -> chain to return
	fail   map[string]bool         // peer -> force FetchChain error
}

func (f *fakeNetworker) FetchChain(peerAddr string) ([]ChainEntry, error) {
	if f.fail[peerAddr] {
		return nil, fmt.Errorf("fake: malformed response from %s", peerAddr)
	}
	chain, ok := f.chains[peerAddr]
	if !ok {
		return nil, fmt.Errorf("fake: unknown peer %s", peerAddr)
	}
	return chain, nil
}

type fakeValidator struct{ valid bool }

func (f fakeValidator) ValidateChain(chain []ChainEntry) bool { return f.valid }

// S4 — Fork detection & resync.
func TestForkResolver_ResyncOnMajorityFork(t *testing.T) {
	store, err := NewChainStore(10, nil)
	if err != nil {
		t.Fatalf("NewChainStore: %v", err)
	}
	genesisRef := GenesisTick().ThisTick
	resyncedChain := []ChainEntry{
		GenesisEntry(),
		{"X": {PrevTick: genesisRef, Height: 1}},
	}

	pools := NewPools()
	pools.AddFork("peer1", Tick{PrevTick: "X", ThisTick: "fork-1"})
	pools.AddFork("peer2", Tick{PrevTick: "X", ThisTick: "fork-2"})
	pools.AddFork("peer3", Tick{PrevTick: "X", ThisTick: "fork-3"})
	pools.AddFork("peer4", Tick{PrevTick: "X", ThisTick: "fork-4"})
	pools.AddTick("ref-our", Tick{PrevTick: "Y", Height: 1}, nil, DefaultContinuityWindow)

	if !NeedsResync(pools) {
		t.Fatal("needs_resync should be true: 4 fork votes > 1 tick pool entry")
	}

	net := &fakeNetworker{chains: map[string][]ChainEntry{
		"peer1": resyncedChain, "peer2": resyncedChain,
		"peer3": resyncedChain, "peer4": resyncedChain,
	}}
	var lock sync.Mutex
	resolver := NewForkResolver(net, fakeValidator{valid: true}, 0, &lock)

	synced, err := resolver.Resync(pools, store)
	if err != nil {
		t.Fatalf("Resync: %v", err)
	}
	if !synced {
		t.Fatal("Resync should report success")
	}

	tip := store.Tip()
	if _, ok := tip["X"]; !ok {
		t.Fatalf("tip after resync = %v, want key X", tip)
	}
	if got := pools.ForkPoolSize(); got != 0 {
		t.Fatalf("fork pool after resync = %d entries, want 0", got)
	}
	if got := pools.TickPoolSize(); got != 4 {
		t.Fatalf("tick pool after resync = %d entries, want 4 (re-admitted fork ticks)", got)
	}
}

// S5 — Resync: all peers fail.
func TestForkResolver_ResyncAllPeersFail(t *testing.T) {
	store, err := NewChainStore(10, nil)
	if err != nil {
		t.Fatalf("NewChainStore: %v", err)
	}
	before := store.Snapshot()

	pools := NewPools()
	pools.AddFork("peer1", Tick{PrevTick: "X"})
	pools.AddFork("peer2", Tick{PrevTick: "X"})
	pools.AddFork("peer3", Tick{PrevTick: "X"})
	pools.AddFork("peer4", Tick{PrevTick: "X"})
	pools.AddTick("ref-our", Tick{PrevTick: "Y", Height: 1}, nil, DefaultContinuityWindow)

	net := &fakeNetworker{fail: map[string]bool{
		"peer1": true, "peer2": true, "peer3": true, "peer4": true,
	}}
	var lock sync.Mutex
	resolver := NewForkResolver(net, fakeValidator{valid: true}, 0, &lock)

	synced, err := resolver.Resync(pools, store)
	if err != nil {
		t.Fatalf("Resync returned an error instead of false: %v", err)
	}
	if synced {
		t.Fatal("Resync should report failure when every peer fetch fails")
	}

	after := store.Snapshot()
	if len(before) != len(after) {
		t.Fatalf("chain changed despite total resync failure: %d -> %d entries", len(before), len(after))
	}

	if !lock.TryLock() {
		t.Fatal("cycle_lock was not released after Resync")
	}
	lock.Unlock()

	// Give a would-be deadlocked goroutine a moment to surface, since
	// TryLock alone can't distinguish "released" from "never acquired".
	done := make(chan struct{})
	go func() {
		lock.Lock()
		lock.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cycle_lock appears still held a second after Resync returned")
	}
}
