package clock

import "testing"

// invariant (4): add_ping is idempotent under same-address resubmission.
func TestPools_AddPingIdempotent(t *testing.T) {
	p := NewPools()
	p.AddPing("addr1", Ping{PubKey: "addr1", Timestamp: 1})
	p.AddPing("addr1", Ping{PubKey: "addr1", Timestamp: 2})
	if got := p.PingPoolSize(); got != 1 {
		t.Fatalf("ping pool size = %d, want 1", got)
	}
	pool := p.PingPool()
	if pool["addr1"].Timestamp != 2 {
		t.Fatalf("resubmission did not replace the prior ping: %+v", pool["addr1"])
	}
}

// invariant (3): restart_cycle leaves tick_pool/vote_pool/fork_pool empty
// and ping_pool unchanged.
func TestPools_RestartCycle(t *testing.T) {
	p := NewPools()
	p.AddPing("addr1", Ping{PubKey: "addr1"})
	p.AddVote("voter1", Vote{VoterAddress: "voter1", Reference: "ref1"})
	p.AddFork("peer1", Tick{PrevTick: "x"})
	p.AddTick("tick1", Tick{List: []Ping{{PubKey: "addr1"}}}, nil, DefaultContinuityWindow)

	p.RestartCycle()

	if got := p.PingPoolSize(); got != 1 {
		t.Fatalf("ping pool size after restart = %d, want 1 (unchanged)", got)
	}
	if got := p.TickPoolSize(); got != 0 {
		t.Fatalf("tick pool size after restart = %d, want 0", got)
	}
	if got := len(p.VoteCounts()); got != 0 {
		t.Fatalf("vote pool size after restart = %d, want 0", got)
	}
	if got := p.ForkPoolSize(); got != 0 {
		t.Fatalf("fork pool size after restart = %d, want 0", got)
	}
	if got := len(p.ForkOrder()); got != 0 {
		t.Fatalf("fork order after restart = %v, want empty", p.ForkOrder())
	}
}

func TestPools_ForkOrderTracksFirstSeen(t *testing.T) {
	p := NewPools()
	p.AddFork("peerB", Tick{PrevTick: "x"})
	p.AddFork("peerA", Tick{PrevTick: "y"})
	p.AddFork("peerB", Tick{PrevTick: "z"}) // resubmission must not move peerB later

	order := p.ForkOrder()
	if len(order) != 2 || order[0] != "peerB" || order[1] != "peerA" {
		t.Fatalf("fork order = %v, want [peerB peerA]", order)
	}
}
