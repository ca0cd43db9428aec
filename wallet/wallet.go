package wallet

import (
	"context"
	"fmt"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/crypto"
)

// Wallet holds a key pair and provides ping/tick-building helpers, mirroring
// original timeminer.py's generate_and_process_ping/
// generate_and_process_tick (init → mine → sign ordering).
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key.
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address.
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewPing builds, mines, and signs a ping pointing at reference (the
// current chain tip). The nonce is mined before the signature is computed
// because the signature covers the mined nonce, per original
// timeminer.py's "1) Init 2) Mine+nonce 3) Add signature" ordering (spec
// §3 Ping).
func (w *Wallet) NewPing(ctx context.Context, timestamp int64, reference string, target crypto.DifficultyTarget) (clock.Ping, error) {
	p := clock.Ping{
		PubKey:    w.pub.Hex(),
		Timestamp: timestamp,
		Reference: reference,
	}
	_, nonce, err := crypto.Mine(ctx, p, target)
	if err != nil {
		return clock.Ping{}, fmt.Errorf("mine ping: %w", err)
	}
	p.Nonce = nonce

	buf, err := p.Encode()
	if err != nil {
		return clock.Ping{}, fmt.Errorf("encode ping: %w", err)
	}
	p.Signature = crypto.Sign(w.priv, buf)
	return p, nil
}

// NewTick builds, mines, and signs a tick batching list atop prevTick.
func (w *Wallet) NewTick(ctx context.Context, prevTick string, height int64, list []clock.Ping, target crypto.DifficultyTarget) (clock.Tick, error) {
	t := clock.Tick{
		PubKey:   w.pub.Hex(),
		PrevTick: prevTick,
		Height:   height,
		List:     list,
	}
	_, nonce, err := crypto.Mine(ctx, t, target)
	if err != nil {
		return clock.Tick{}, fmt.Errorf("mine tick: %w", err)
	}
	t.Nonce = nonce

	body, err := t.Encode()
	if err != nil {
		return clock.Tick{}, fmt.Errorf("encode tick: %w", err)
	}
	t.Signature = crypto.Sign(w.priv, body)
	t.ThisTick = crypto.Hash(body)
	return t, nil
}
