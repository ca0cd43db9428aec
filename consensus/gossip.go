package consensus

import (
	"encoding/json"
	"log"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/network"
)

// RegisterGossipHandlers wires inbound ping/tick messages from node into
// Scheduler's pools, admitting to ping_pool/tick_pool or, for a tick whose
// prev_tick disagrees with our own tip, fork_pool (spec.md §4.H tick_worker
// "tick_worker also ingests peer-built ticks into tick_pool ... or
// fork_pool if their prev_tick disagrees with ours").
func (s *Scheduler) RegisterGossipHandlers(node *network.Node) {
	node.Handle(network.MsgPing, s.handleInboundPing)
	node.Handle(network.MsgTick, s.handleInboundTick)
}

func (s *Scheduler) handleInboundPing(_ *network.Peer, msg network.Message) {
	var p clock.Ping
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		log.Printf("[consensus] unmarshal inbound ping: %v", err)
		return
	}
	if !s.validate.ValidatePing(p, true) {
		return
	}
	s.pools.AddPing(p.PubKey, p)
}

func (s *Scheduler) handleInboundTick(_ *network.Peer, msg network.Message) {
	var t clock.Tick
	if err := json.Unmarshal(msg.Payload, &t); err != nil {
		log.Printf("[consensus] unmarshal inbound tick: %v", err)
		return
	}
	ourPrev := s.tipRef()
	if t.PrevTick != ourPrev {
		// A prev_tick we don't recognize at all, anywhere in our ring
		// history, is a genuine fork signal. A prev_tick we do recognize
		// further back is just a late-arriving tick built on a tip we've
		// since moved past — not evidence of divergence, so it's dropped
		// rather than counted as a fork vote.
		if !s.store.Known(t.PrevTick) {
			s.pools.AddFork(msg.Origin, t)
		}
		return
	}
	if !s.validate.ValidateTick(t, ourPrev) {
		return
	}
	s.pools.AddTick(t.ThisTick, t, s.store.Snapshot(), clock.DefaultContinuityWindow)
}
