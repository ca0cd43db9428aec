// Package consensus drives the three cooperating workers that carry a
// node through PING → TICK → SELECT every round (spec.md §4.H), grounded
// on original timeminer.py's Timeminer, which ran the same three phases
// as three threading.Threads. Go translates each Python thread to a
// goroutine and the racy `lock = False` flag to a real *sync.Mutex
// (spec.md §9 "a proper mutex or read-write lock").
package consensus

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/wallet"
)

// Validator is the validation surface Scheduler needs: pings and ticks
// before admitting them. Whole-chain validation during a resync is done by
// the clock.Validator held by ForkResolver, not through this interface.
type Validator interface {
	ValidatePing(p clock.Ping, requireSignature bool) bool
	ValidateTick(t clock.Tick, prevTick string) bool
}

// Networker is the transport surface Scheduler drives (spec.md §6).
type Networker interface {
	Ready() bool
	Stage() string
	SetStage(s string)
	Forward(payload []byte, route network.MsgType, origin string, redistribute int)
}

// Scheduler runs the three workers. Construct with New, then Run.
type Scheduler struct {
	pools    *clock.Pools
	store    *clock.ChainStore
	selector *clock.Selector
	resolver *clock.ForkResolver
	net      Networker
	validate Validator
	wallet   *wallet.Wallet
	emitter  *events.Emitter
	target   crypto.DifficultyTarget

	tickPeriod  time.Duration
	selectGrace time.Duration

	// cycleLock is spec.md §5's single exclusive flag, also held by
	// ForkResolver.Resync across its whole sequence. Workers TryLock and
	// idle (never block) when contended.
	cycleLock *sync.Mutex

	mu        sync.Mutex
	addedPing bool

	stopCh chan struct{}
}

// New builds a Scheduler. cycleLock must be the same *sync.Mutex passed to
// resolver's construction, so both sides observe the same contention.
func New(
	pools *clock.Pools,
	store *clock.ChainStore,
	selector *clock.Selector,
	resolver *clock.ForkResolver,
	net Networker,
	validate Validator,
	w *wallet.Wallet,
	emitter *events.Emitter,
	target crypto.DifficultyTarget,
	tickPeriod, selectGrace time.Duration,
	cycleLock *sync.Mutex,
) *Scheduler {
	return &Scheduler{
		pools: pools, store: store, selector: selector, resolver: resolver,
		net: net, validate: validate, wallet: w, emitter: emitter, target: target,
		tickPeriod: tickPeriod, selectGrace: selectGrace,
		cycleLock: cycleLock, stopCh: make(chan struct{}),
	}
}

// Run starts all three workers and blocks until Stop is called.
func (s *Scheduler) Run() {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.pingWorker() }()
	go func() { defer wg.Done(); s.tickWorker() }()
	go func() { defer wg.Done(); s.selectWorker() }()
	wg.Wait()
}

// Stop signals all workers to exit after their current iteration.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) locked() bool {
	if s.cycleLock.TryLock() {
		s.cycleLock.Unlock()
		return false
	}
	return true
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// pingWorker implements spec.md §4.H ping_worker: while running, if the
// network is ready, we haven't pinged this cycle, stage isn't SELECT, and
// the cycle isn't locked, build+mine+sign+admit+broadcast one ping. Else
// sleep ~1s. The stage check mirrors original timeminer.py's
// `not self.networker.stage == 'select'`: without it, a ping mined between
// buildAndBroadcastTick clearing addedPing and select_worker's grace sleep
// starting would be admitted mid-SELECT.
func (s *Scheduler) pingWorker() {
	for !s.stopped() {
		s.mu.Lock()
		already := s.addedPing
		s.mu.Unlock()

		if s.net.Ready() && !already && s.net.Stage() != "SELECT" && !s.locked() {
			if err := s.buildAndBroadcastPing(); err != nil {
				log.Printf("[consensus] ping_worker: %v", err)
			} else {
				s.mu.Lock()
				s.addedPing = true
				s.mu.Unlock()
			}
		} else {
			time.Sleep(time.Second)
		}
	}
}

func (s *Scheduler) buildAndBroadcastPing() error {
	s.net.SetStage("PING")
	ref := s.tipRef()
	ctx, cancel := context.WithTimeout(context.Background(), s.tickPeriod)
	defer cancel()
	p, err := s.wallet.NewPing(ctx, time.Now().Unix(), ref, s.target)
	if err != nil {
		return err
	}
	if !s.validate.ValidatePing(p, true) {
		return nil
	}
	addr := p.PubKey
	s.pools.AddPing(addr, p)

	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.net.Forward(payload, network.MsgPing, s.wallet.PubKey(), 1)
	s.emitter.Emit(events.Event{Type: events.EventPingAdmitted, Data: map[string]any{"pubkey": p.PubKey}})
	return nil
}

// tickWorker implements spec.md §4.H tick_worker: every ~tickPeriod, if
// ready, unlocked, and the ping pool is non-empty, fold it into a tick.
func (s *Scheduler) tickWorker() {
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.net.Ready() && !s.locked() && s.pools.PingPoolSize() > 0 {
				if err := s.buildAndBroadcastTick(); err != nil {
					log.Printf("[consensus] tick_worker: %v", err)
				}
			}
		}
	}
}

func (s *Scheduler) buildAndBroadcastTick() error {
	pingPool := s.pools.PingPool()
	list := make([]clock.Ping, 0, len(pingPool))
	for _, p := range pingPool {
		list = append(list, p)
	}

	ref, height := s.tipRefAndHeight()
	ctx, cancel := context.WithTimeout(context.Background(), s.tickPeriod)
	defer cancel()
	t, err := s.wallet.NewTick(ctx, ref, height+1, list, s.target)
	if err != nil {
		return err
	}
	if !s.validate.ValidateTick(t, ref) {
		return nil
	}
	s.pools.AddTick(t.ThisTick, t, s.store.Snapshot(), clock.DefaultContinuityWindow)

	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.net.Forward(payload, network.MsgTick, s.wallet.PubKey(), 1)

	s.pools.ClearPingPool()
	s.mu.Lock()
	s.addedPing = false
	s.mu.Unlock()
	s.net.SetStage("SELECT")
	s.emitter.Emit(events.Event{Type: events.EventTickBuilt, Data: map[string]any{"this_tick": t.ThisTick, "height": t.Height}})
	return nil
}

// selectWorker implements spec.md §4.H select_worker: every ~tickPeriod,
// if the tick pool is non-empty and unlocked, wait the select grace for
// stragglers, try a resync if needed, then commit a winner.
func (s *Scheduler) selectWorker() {
	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.pools.TickPoolSize() > 0 && !s.locked() {
				s.runSelectRound()
			}
		}
	}
}

func (s *Scheduler) runSelectRound() {
	s.net.SetStage("SELECT")
	time.Sleep(s.selectGrace)

	if clock.NeedsResync(s.pools) {
		s.emitter.Emit(events.Event{Type: events.EventForkDetected})
		synced, err := s.resolver.Resync(s.pools, s.store)
		if err != nil {
			log.Printf("[consensus] resync: %v", err)
		}
		if synced {
			s.emitter.Emit(events.Event{Type: events.EventResyncSucceeded})
		} else {
			s.emitter.Emit(events.Event{Type: events.EventResyncFailed})
		}
	}

	if err := s.selector.Select(s.pools, s.store); err != nil {
		if err != clock.ErrEmptyCycle {
			log.Printf("[consensus] select: %v", err)
		}
	} else {
		s.emitter.Emit(events.Event{Type: events.EventTickSelected, Data: map[string]any{"height": s.store.Height()}})
	}
	s.net.SetStage("PING")
}

func (s *Scheduler) tipRef() string {
	ref, _ := s.tipRefAndHeight()
	return ref
}

// tipRefAndHeight picks a deterministic single ref out of the (usually
// one-entry, occasionally multi-entry) chain tip: the lexicographically
// smallest key, matching clock.Selector's own tiebreak convention.
func (s *Scheduler) tipRefAndHeight() (string, int64) {
	tip := s.store.Tip()
	var ref string
	var height int64
	for k, t := range tip {
		if ref == "" || k < ref {
			ref = k
			height = t.Height
		}
	}
	return ref, height
}
