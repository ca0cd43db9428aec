package crypto

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeObj struct {
	tag string
}

func (f fakeObj) EncodeWithNonce(n uint64) ([]byte, error) {
	return []byte(fmt.Sprintf("%s:%d", f.tag, n)), nil
}

func TestMine_FindsNonceSatisfyingTarget(t *testing.T) {
	// An all-Fs target accepts on the very first nonce tried.
	target, err := NewDifficultyTarget(strings.Repeat("f", 64))
	if err != nil {
		t.Fatalf("NewDifficultyTarget: %v", err)
	}
	digest, nonce, err := Mine(context.Background(), fakeObj{tag: "x"}, target)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	if nonce != 0 {
		t.Fatalf("nonce = %d, want 0 against a maximal target", nonce)
	}
	if !target.Satisfied(digest) {
		t.Fatalf("mined digest %s does not satisfy its own target", digest)
	}
}

func TestMine_RespectsContextCancellation(t *testing.T) {
	// A zero target is never satisfiable; Mine must stop once ctx expires
	// rather than loop forever.
	target, err := NewDifficultyTarget("0000000000000000000000000000000000000000000000000000000000000000")
	if err != nil {
		t.Fatalf("NewDifficultyTarget: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = Mine(ctx, fakeObj{tag: "y"}, target)
	if err != context.DeadlineExceeded {
		t.Fatalf("Mine err = %v, want context.DeadlineExceeded", err)
	}
}

func TestDifficultyTarget_SatisfiedBoundary(t *testing.T) {
	target, err := NewDifficultyTarget("0000000000000000000000000000000000000000000000000000000000000010")
	if err != nil {
		t.Fatalf("NewDifficultyTarget: %v", err)
	}
	if !target.Satisfied("0000000000000000000000000000000000000000000000000000000000000010") {
		t.Fatal("a digest exactly equal to the target should satisfy it")
	}
	if target.Satisfied("0000000000000000000000000000000000000000000000000000000000000011") {
		t.Fatal("a digest one above the target should not satisfy it")
	}
}

func TestMustHexDigest(t *testing.T) {
	if err := MustHexDigest(Hash([]byte("hello"))); err != nil {
		t.Fatalf("MustHexDigest on a real sha256 digest: %v", err)
	}
	if err := MustHexDigest("not-hex"); err == nil {
		t.Fatal("expected an error for non-hex input")
	}
	if err := MustHexDigest("ab"); err == nil {
		t.Fatal("expected an error for a too-short digest")
	}
}
