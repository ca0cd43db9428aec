// Package clock implements the consensus core of a clock-chain node: the
// ping/tick/vote/fork pools, the tick-selection reduction, the bounded
// chain store, and fork-recovery. Cryptography, networking, and shape
// validation are external collaborators consumed through interfaces.
package clock

import (
	"encoding/json"
)

// Ping is a signed liveness beacon pointing at a chain tip (or, if used as
// a vote, at a tick in the tick pool).
type Ping struct {
	PubKey    string `json:"pubkey"`
	Timestamp int64  `json:"timestamp"`
	Reference string `json:"reference"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature,omitempty"`
}

// unsigned returns the ping with Signature cleared, for canonical encoding.
func (p Ping) unsigned() Ping {
	p.Signature = ""
	return p
}

// Encode returns the canonical (signature-free) JSON encoding of the ping,
// the byte form that is hashed, signed, and mined over.
func (p Ping) Encode() ([]byte, error) {
	return json.Marshal(p.unsigned())
}

// EncodeWithNonce returns the canonical encoding of p as if its Nonce were
// n, satisfying crypto.Encodable for PoW mining.
func (p Ping) EncodeWithNonce(n uint64) ([]byte, error) {
	p.Nonce = n
	return p.Encode()
}

// Tick is a signed batch of pings forming one step of the shared clock.
type Tick struct {
	PubKey    string `json:"pubkey"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature,omitempty"`
	PrevTick  string `json:"prev_tick"`
	Height    int64  `json:"height"`
	List      []Ping `json:"list"`
	// ThisTick is a memoized content hash. It is not authoritative: callers
	// that need the reference should recompute it via a Hasher rather than
	// trust this field, per spec (it is debug info, not schema).
	ThisTick string `json:"this_tick,omitempty"`
}

// body is the part of a tick that is hashed/signed: everything except
// Signature and the memoized ThisTick.
type body struct {
	PubKey   string `json:"pubkey"`
	Nonce    uint64 `json:"nonce"`
	PrevTick string `json:"prev_tick"`
	Height   int64  `json:"height"`
	List     []Ping `json:"list"`
}

// Encode returns the canonical encoding of the tick's body (sans Signature
// and ThisTick), the byte form hashed to produce the tick's reference.
func (t Tick) Encode() ([]byte, error) {
	return json.Marshal(body{
		PubKey:   t.PubKey,
		Nonce:    t.Nonce,
		PrevTick: t.PrevTick,
		Height:   t.Height,
		List:     t.List,
	})
}

// EncodeWithNonce returns the canonical body encoding of t as if its Nonce
// were n, satisfying crypto.Encodable for PoW mining.
func (t Tick) EncodeWithNonce(n uint64) ([]byte, error) {
	t.Nonce = n
	return t.Encode()
}

// ChainEntry maps a tick's reference (hash) to its body. It usually holds
// exactly one entry; it holds more than one only when the select stage
// could not break a tie between candidates of equal height (a fork entry).
type ChainEntry map[string]Tick

// Vote is a ping whose Reference names a tick-in-flight (a candidate in
// the tick pool) rather than the current chain tip.
type Vote struct {
	VoterAddress string
	Reference    string
}

// PlaceholderPrevTick is the genesis tick's placeholder prev_tick value.
// Non-genesis ticks referencing it are rejected outside of bootstrap mode.
const PlaceholderPrevTick = "prev_tick"

// GenesisTick is the canonical, identical-on-every-node first tick.
func GenesisTick() Tick {
	return Tick{
		PubKey:   "pubkey",
		Nonce:    68696043434,
		PrevTick: PlaceholderPrevTick,
		Height:   0,
		List:     []Ping{{Timestamp: 0, PubKey: "pubkey"}},
		ThisTick: "55f5b323471532d860b11d4fc079ba38819567aa0915d83d4636d12e498a8f3e",
	}
}

// GenesisEntry returns the ChainEntry a fresh ChainStore is seeded with.
func GenesisEntry() ChainEntry {
	g := GenesisTick()
	return ChainEntry{g.ThisTick: g}
}
