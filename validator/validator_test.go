package validator

import (
	"context"
	"strings"
	"testing"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/wallet"
)

func permissiveTarget(t *testing.T) crypto.DifficultyTarget {
	t.Helper()
	target, err := crypto.NewDifficultyTarget(strings.Repeat("f", 64))
	if err != nil {
		t.Fatalf("NewDifficultyTarget: %v", err)
	}
	return target
}

func TestValidatePing_AcceptsWellFormed(t *testing.T) {
	target := permissiveTarget(t)
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p, err := w.NewPing(context.Background(), 1000, "ref", target)
	if err != nil {
		t.Fatalf("NewPing: %v", err)
	}
	v := New(Config{DifficultyTarget: target})
	if !v.ValidatePing(p, true) {
		t.Fatal("well-formed signed ping was rejected")
	}
}

func TestValidatePing_RejectsTamperedSignature(t *testing.T) {
	target := permissiveTarget(t)
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p, err := w.NewPing(context.Background(), 1000, "ref", target)
	if err != nil {
		t.Fatalf("NewPing: %v", err)
	}
	p.Timestamp = 9999 // tamper after signing
	v := New(Config{DifficultyTarget: target})
	if v.ValidatePing(p, true) {
		t.Fatal("tampered ping should fail signature verification")
	}
}

func TestValidatePing_RejectsUnmetDifficulty(t *testing.T) {
	permissive := permissiveTarget(t)
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p, err := w.NewPing(context.Background(), 1000, "ref", permissive)
	if err != nil {
		t.Fatalf("NewPing: %v", err)
	}
	strict, err := crypto.NewDifficultyTarget(strings.Repeat("0", 64))
	if err != nil {
		t.Fatalf("NewDifficultyTarget: %v", err)
	}
	v := New(Config{DifficultyTarget: strict})
	if v.ValidatePing(p, true) {
		t.Fatal("ping mined against a permissive target should fail a near-zero target")
	}
}

func buildSignedTick(t *testing.T, target crypto.DifficultyTarget, prevTick string, height int64) (*wallet.Wallet, clock.Tick) {
	t.Helper()
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	list := []clock.Ping{{PubKey: "p1", Reference: prevTick, Timestamp: 1}}
	tick, err := w.NewTick(context.Background(), prevTick, height, list, target)
	if err != nil {
		t.Fatalf("NewTick: %v", err)
	}
	return w, tick
}

func TestValidateTick_AcceptsWellFormed(t *testing.T) {
	target := permissiveTarget(t)
	_, tick := buildSignedTick(t, target, "prev-ref", 1)
	v := New(Config{DifficultyTarget: target})
	if !v.ValidateTick(tick, "prev-ref") {
		t.Fatal("well-formed signed tick was rejected")
	}
}

func TestValidateTick_RejectsMismatchedPingReference(t *testing.T) {
	target := permissiveTarget(t)
	w, err := wallet.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	list := []clock.Ping{{PubKey: "p1", Reference: "wrong-ref", Timestamp: 1}}
	tick, err := w.NewTick(context.Background(), "prev-ref", 1, list, target)
	if err != nil {
		t.Fatalf("NewTick: %v", err)
	}
	v := New(Config{DifficultyTarget: target})
	if v.ValidateTick(tick, "prev-ref") {
		t.Fatal("tick whose ping list references the wrong tip should be rejected")
	}
}

func TestValidateTick_GenesisAcceptedUnconditionally(t *testing.T) {
	v := New(Config{DifficultyTarget: permissiveTarget(t)})
	if !v.ValidateTick(clock.GenesisTick(), "anything") {
		t.Fatal("genesis tick must be accepted regardless of prevTick")
	}
}

func TestValidateTick_BootstrapModeGatesPlaceholderPrevTick(t *testing.T) {
	target := permissiveTarget(t)
	_, tick := buildSignedTick(t, target, clock.PlaceholderPrevTick, 1)

	strict := New(Config{DifficultyTarget: target, BootstrapMode: false})
	if strict.ValidateTick(tick, clock.PlaceholderPrevTick) {
		t.Fatal("a non-genesis tick referencing the genesis placeholder must be rejected outside bootstrap mode")
	}

	bootstrap := New(Config{DifficultyTarget: target, BootstrapMode: true})
	if !bootstrap.ValidateTick(tick, clock.PlaceholderPrevTick) {
		t.Fatal("bootstrap mode should permit referencing the genesis placeholder")
	}
}

func TestValidateChain_AcceptsGenesisOnly(t *testing.T) {
	v := New(Config{DifficultyTarget: permissiveTarget(t)})
	if !v.ValidateChain([]clock.ChainEntry{clock.GenesisEntry()}) {
		t.Fatal("a lone genesis entry should be a valid chain")
	}
}

func TestValidateChain_RejectsEmptyChain(t *testing.T) {
	v := New(Config{DifficultyTarget: permissiveTarget(t)})
	if v.ValidateChain(nil) {
		t.Fatal("an empty chain violates invariant (1) and must be rejected")
	}
}

func TestValidateChain_RejectsHeightGap(t *testing.T) {
	target := permissiveTarget(t)
	genesis := clock.GenesisTick()
	_, tick := buildSignedTick(t, target, genesis.ThisTick, 2) // should be height 1, not 2

	v := New(Config{DifficultyTarget: target})
	ref, err := hashTick(tick)
	if err != nil {
		t.Fatalf("hashTick: %v", err)
	}
	chain := []clock.ChainEntry{clock.GenesisEntry(), {ref: tick}}
	if v.ValidateChain(chain) {
		t.Fatal("a tick whose height skips ahead of its parent should be rejected")
	}
}

func TestValidateChain_AcceptsTwoLinkedEntries(t *testing.T) {
	target := permissiveTarget(t)
	genesis := clock.GenesisTick()
	_, tick := buildSignedTick(t, target, genesis.ThisTick, 1)

	v := New(Config{DifficultyTarget: target})
	ref, err := hashTick(tick)
	if err != nil {
		t.Fatalf("hashTick: %v", err)
	}
	chain := []clock.ChainEntry{clock.GenesisEntry(), {ref: tick}}
	if !v.ValidateChain(chain) {
		t.Fatal("a correctly linked two-entry chain should validate")
	}
}
