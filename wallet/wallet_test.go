package wallet

import (
	"context"
	"strings"
	"testing"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/crypto"
)

func permissiveTarget(t *testing.T) crypto.DifficultyTarget {
	t.Helper()
	target, err := crypto.NewDifficultyTarget(strings.Repeat("f", 64))
	if err != nil {
		t.Fatalf("NewDifficultyTarget: %v", err)
	}
	return target
}

func TestGenerate_RoundTrip(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	reloaded := New(w.PrivKey())
	if reloaded.PubKey() != w.PubKey() {
		t.Fatalf("PubKey changed across New(PrivKey()) round trip: %s vs %s", reloaded.PubKey(), w.PubKey())
	}
	if reloaded.Address() != w.Address() {
		t.Fatalf("Address changed across New(PrivKey()) round trip: %s vs %s", reloaded.Address(), w.Address())
	}
}

func TestNewPing_MinedAndSigned(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	target := permissiveTarget(t)

	p, err := w.NewPing(context.Background(), 1000, "ref-tip", target)
	if err != nil {
		t.Fatalf("NewPing: %v", err)
	}
	if p.PubKey != w.PubKey() {
		t.Fatalf("ping pubkey = %s, want %s", p.PubKey, w.PubKey())
	}
	if p.Reference != "ref-tip" {
		t.Fatalf("ping reference = %s, want ref-tip", p.Reference)
	}
	if p.Signature == "" {
		t.Fatal("ping was not signed")
	}

	buf, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	pub, err := crypto.PubKeyFromHex(p.PubKey)
	if err != nil {
		t.Fatalf("PubKeyFromHex: %v", err)
	}
	if err := crypto.Verify(pub, buf, p.Signature); err != nil {
		t.Fatalf("signature does not verify over the encoded ping body: %v", err)
	}

	digest := crypto.Hash(buf)
	if !target.Satisfied(digest) {
		t.Fatalf("mined ping digest %s does not satisfy its own target", digest)
	}
}

func TestNewTick_MinedSignedAndHashed(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	target := permissiveTarget(t)

	list := []clock.Ping{{PubKey: "a", Timestamp: 1}, {PubKey: "b", Timestamp: 2}}
	tick, err := w.NewTick(context.Background(), "prev-ref", 7, list, target)
	if err != nil {
		t.Fatalf("NewTick: %v", err)
	}
	if tick.PrevTick != "prev-ref" || tick.Height != 7 {
		t.Fatalf("tick header = %+v, want PrevTick=prev-ref Height=7", tick)
	}
	if tick.Signature == "" {
		t.Fatal("tick was not signed")
	}
	if tick.ThisTick == "" {
		t.Fatal("tick.ThisTick was not populated")
	}

	body, err := tick.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	pub, err := crypto.PubKeyFromHex(tick.PubKey)
	if err != nil {
		t.Fatalf("PubKeyFromHex: %v", err)
	}
	if err := crypto.Verify(pub, body, tick.Signature); err != nil {
		t.Fatalf("signature does not verify over the encoded tick body: %v", err)
	}
	if got := crypto.Hash(body); got != tick.ThisTick {
		t.Fatalf("ThisTick = %s, want hash(body) = %s", tick.ThisTick, got)
	}
	if !target.Satisfied(tick.ThisTick) {
		t.Fatalf("mined tick digest %s does not satisfy its own target", tick.ThisTick)
	}
}
