package clock

import (
	"sort"

	"github.com/holiman/uint256"
)

// Hasher is the canonical-encoding/hashing capability consumed by Selector
// (spec §6 Hasher contract). Crypto/PoW/address-derivation concerns beyond
// hashing are out of this package's scope.
type Hasher interface {
	// Hash returns the hex-encoded digest of the canonical encoding of obj.
	Hash(obj any) (string, error)
}

// Mode selects which reduction Selector.Select performs. The source's
// three variants disagree on whether voting is used at all (spec §9); both
// paths are implemented, gated by this switch.
type Mode int

const (
	// ModePingCount is the authoritative reduction from spec §4.F steps
	// 3-5: largest ping count, then largest hash_diff, then a deterministic
	// tiebreak.
	ModePingCount Mode = iota
	// ModeVoteCount instead picks among the tick(s) with the most votes in
	// the vote pool, per original clockchain.py's
	// select_highest_voted_to_chain.
	ModeVoteCount
)

// Selector picks one winning tick per round and commits it to a
// ChainStore (spec §4.F).
type Selector struct {
	hasher Hasher
	mode   Mode
}

// NewSelector returns a Selector using hasher for the hash_diff tiebreak.
func NewSelector(hasher Hasher, mode Mode) *Selector {
	return &Selector{hasher: hasher, mode: mode}
}

// Select reduces the pool's candidate ticks to a winner (or, if a tie
// survives every reduction, a multi-entry fork ChainEntry), appends it to
// store, and restarts the cycle. Returns ErrEmptyCycle on an empty pool,
// in which case chain and pools are left unchanged.
func (s *Selector) Select(pools *Pools, store *ChainStore) error {
	candidates := pools.AllTicks()
	if len(candidates) == 0 {
		return ErrEmptyCycle
	}

	var winners []tickItem
	switch s.mode {
	case ModeVoteCount:
		winners = s.reduceByVotes(pools, candidates)
	default:
		winners = s.reducePingCount(candidates)
		if len(winners) > 1 {
			winners = s.reduceHashDiff(winners)
		}
	}
	if len(winners) == 0 {
		return ErrEmptyCycle
	}

	entry := make(ChainEntry, len(winners))
	for _, w := range winners {
		entry[w.ref] = w.tick
	}
	store.Append(entry)
	pools.RestartCycle()
	return nil
}

// reducePingCount keeps only the candidates tied at the maximum list size
// (spec §4.F step 3).
func (s *Selector) reducePingCount(candidates []tickItem) []tickItem {
	var max int
	for _, c := range candidates {
		if n := len(c.tick.List); n > max {
			max = n
		}
	}
	var out []tickItem
	for _, c := range candidates {
		if len(c.tick.List) == max {
			out = append(out, c)
		}
	}
	return out
}

// reduceHashDiff keeps only the candidates tied at the maximum hash_diff
// (spec §4.F step 4); if hashing fails for a candidate it is dropped from
// contention rather than aborting the whole reduction (a ValidationError-
// class failure, non-fatal per spec §7).
func (s *Selector) reduceHashDiff(candidates []tickItem) []tickItem {
	type scored struct {
		item tickItem
		diff uint64
	}
	var scoredItems []scored
	for _, c := range candidates {
		diff, err := s.hashDiff(c.tick)
		if err != nil {
			continue
		}
		scoredItems = append(scoredItems, scored{c, diff})
	}
	if len(scoredItems) == 0 {
		// All candidates failed to hash; fall back to the full set so the
		// round still produces a (deterministic, if arbitrary) winner.
		return s.deterministicTiebreak(candidates)
	}
	var max uint64
	for _, si := range scoredItems {
		if si.diff > max {
			max = si.diff
		}
	}
	var out []tickItem
	for _, si := range scoredItems {
		if si.diff == max {
			out = append(out, si.item)
		}
	}
	// A tie surviving both reductions is committed as a multi-entry fork
	// ChainEntry (spec §4.F step 5) rather than forced to a single winner;
	// callers that need exactly one winner use deterministicTiebreak
	// directly.
	return out
}

// deterministicTiebreak breaks any surviving tie by lexicographically
// smallest reference (spec §4.F step 5: "any deterministic choice").
// Callers MAY instead commit the full surviving set as a multi-entry fork
// ChainEntry (see Select); this helper is used when a single winner is
// still required (e.g. the hash reduction itself failed for everyone).
func (s *Selector) deterministicTiebreak(candidates []tickItem) []tickItem {
	sorted := append([]tickItem(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ref < sorted[j].ref })
	if len(sorted) == 0 {
		return nil
	}
	return []tickItem{sorted[0]}
}

// hashDiff computes |int16(hash(pubkey) ∥ hash(prev_tick)) - int16(hash(prev_tick))|
// per spec §4.F step 4, taking "int16" as the most-significant 16 bits of
// each 256-bit digest (see DESIGN.md for why the low-order reading is
// degenerate).
func (s *Selector) hashDiff(t Tick) (uint64, error) {
	h1, err := s.hasher.Hash(map[string]string{"0": t.PubKey})
	if err != nil {
		return 0, err
	}
	h2, err := s.hasher.Hash(map[string]string{"0": t.PrevTick})
	if err != nil {
		return 0, err
	}
	a, err := top16(h1)
	if err != nil {
		return 0, err
	}
	b, err := top16(h2)
	if err != nil {
		return 0, err
	}
	ai, bi := int64(a), int64(b)
	d := ai - bi
	if d < 0 {
		d = -d
	}
	return uint64(d), nil
}

// top16 parses hexDigest as a 256-bit unsigned integer and returns its
// top (most-significant) 16 bits.
func top16(hexDigest string) (uint16, error) {
	v, err := uint256.FromHex("0x" + hexDigest)
	if err != nil {
		return 0, err
	}
	shifted := new(uint256.Int).Rsh(v, 240)
	return uint16(shifted.Uint64()), nil
}

// reduceByVotes implements original clockchain.py's
// select_highest_voted_to_chain: pick the tick(s) in the pool whose
// reference has the most votes in the vote pool.
func (s *Selector) reduceByVotes(pools *Pools, candidates []tickItem) []tickItem {
	counts := pools.VoteCounts()
	if len(counts) == 0 {
		return nil
	}
	var topScore int
	for _, c := range counts {
		if c > topScore {
			topScore = c
		}
	}
	topRefs := make(map[string]bool)
	for ref, c := range counts {
		if c == topScore {
			topRefs[ref] = true
		}
	}
	var out []tickItem
	for _, c := range candidates {
		if topRefs[c.ref] {
			out = append(out, c)
		}
	}
	return out
}
