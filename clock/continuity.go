package clock

// DefaultContinuityWindow is the default number of trailing chain entries
// measureContinuity scans (spec §4.sub: "the last K chain entries").
const DefaultContinuityWindow = 5

// measureContinuity scores how well candidate extends recent chain history
// by its ping set: the number of pings in candidate.List whose PubKey also
// appears in the ping lists of the last k entries of chain. It is a
// deterministic, total-orderable function of (candidate, chain snapshot)
// per spec §4.sub; the exact formula (measure_tick_continuity) is left
// unspecified by the source, so the simplest faithful reading is used.
//
// This score only orders the informational tick-pool priority queue
// (Pools.ActiveTick); it is not consulted by Selector's authoritative
// reduction (spec §4.F, §9).
func measureContinuity(candidate Tick, chain []ChainEntry, k int) int64 {
	if k <= 0 {
		k = DefaultContinuityWindow
	}
	recentPubKeys := make(map[string]bool)
	start := 0
	if len(chain) > k {
		start = len(chain) - k
	}
	for _, entry := range chain[start:] {
		for _, t := range entry {
			for _, p := range t.List {
				recentPubKeys[p.PubKey] = true
			}
		}
	}
	var score int64
	for _, p := range candidate.List {
		if recentPubKeys[p.PubKey] {
			score++
		}
	}
	return score
}
