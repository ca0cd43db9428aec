// Package validator implements the shape, signature, PoW, and invariant
// checks the clock package consumes as an external Validator contract
// (spec §6), grounded on the teacher's consensus.PoA.ValidateBlock:
// structural checks first, then cryptographic ones, with every failure
// returned as a plain bool rather than propagated — validation failures are
// non-fatal per spec §7.
package validator

import (
	"fmt"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/crypto"
)

// Config carries the tunables the Validator needs to check PoW and the
// genesis-placeholder exception.
type Config struct {
	DifficultyTarget crypto.DifficultyTarget
	// BootstrapMode permits non-genesis ticks to reference the genesis
	// placeholder prev_tick ("prev_tick"). Spec.md §9 requires rejecting
	// this in normal operation; it exists only for test harnesses seeding
	// a chain by hand.
	BootstrapMode bool
}

// Validator checks pings, ticks, and whole chains against shape, signature,
// PoW, and the chain invariants of spec §3.
type Validator struct {
	cfg Config
}

// New returns a Validator configured with the node's difficulty target.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidatePing checks a ping's shape, PoW, and (unless it's the local
// node's own unsigned-draft ping mid-construction) its signature.
func (v *Validator) ValidatePing(p clock.Ping, requireSignature bool) bool {
	if p.PubKey == "" || p.Timestamp <= 0 {
		return false
	}
	if requireSignature {
		pub, err := crypto.PubKeyFromHex(p.PubKey)
		if err != nil {
			return false
		}
		buf, err := p.Encode()
		if err != nil {
			return false
		}
		if err := crypto.Verify(pub, buf, p.Signature); err != nil {
			return false
		}
	}
	buf, err := p.Encode()
	if err != nil {
		return false
	}
	digest := crypto.Hash(buf)
	return v.cfg.DifficultyTarget.Satisfied(digest)
}

// ValidateTick checks a tick's shape, that every ping in its list
// references prevTick, signature, and PoW (spec §3 Tick, §6
// validate_tick). Genesis (height 0) is accepted unconditionally: it is
// identical and trusted on every node (spec §9).
func (v *Validator) ValidateTick(t clock.Tick, prevTick string) bool {
	if t.Height == 0 {
		return true
	}
	if t.PrevTick == clock.PlaceholderPrevTick && !v.cfg.BootstrapMode {
		return false
	}
	if t.PrevTick != prevTick {
		return false
	}
	if len(t.List) == 0 {
		return false
	}
	for _, p := range t.List {
		if p.Reference != prevTick {
			return false
		}
	}
	pub, err := crypto.PubKeyFromHex(t.PubKey)
	if err != nil {
		return false
	}
	body, err := t.Encode()
	if err != nil {
		return false
	}
	if err := crypto.Verify(pub, body, t.Signature); err != nil {
		return false
	}
	digest := crypto.Hash(body)
	return v.cfg.DifficultyTarget.Satisfied(digest)
}

// ValidateChain enforces invariants (1)-(2) plus per-tick signature/PoW
// validity across a full candidate chain (spec §4.G step 7, §6
// validate_clockchain). An empty chain is invalid: invariant (1) requires
// a non-empty store at all times.
func (v *Validator) ValidateChain(chain []clock.ChainEntry) bool {
	if len(chain) == 0 {
		return false
	}
	for i := 1; i < len(chain); i++ {
		prev, cur := chain[i-1], chain[i]
		var prevHeight int64 = -1
		for _, t := range prev {
			if t.Height > prevHeight {
				prevHeight = t.Height
			}
		}
		for ref, t := range cur {
			if _, ok := prev[t.PrevTick]; !ok {
				return false
			}
			if t.Height != prevHeight+1 {
				return false
			}
			if !v.ValidateTick(t, t.PrevTick) {
				return false
			}
			if computedRef, err := hashTick(t); err != nil || computedRef != ref {
				return false
			}
		}
	}
	return true
}

// hashTick recomputes a tick's reference the way wallet.NewTick does, for
// ValidateChain's self-consistency check that stored keys match their
// bodies.
func hashTick(t clock.Tick) (string, error) {
	buf, err := t.Encode()
	if err != nil {
		return "", fmt.Errorf("encode tick: %w", err)
	}
	return crypto.Hash(buf), nil
}
