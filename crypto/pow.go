package crypto

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

// DifficultyTarget is a 256-bit threshold: a candidate digest is admissible
// only if its big-endian integer value is <= the target. Smaller targets
// mean more work.
type DifficultyTarget struct {
	value *uint256.Int
}

// NewDifficultyTarget parses a hex-encoded (no 0x prefix required) 256-bit
// threshold.
func NewDifficultyTarget(hexTarget string) (DifficultyTarget, error) {
	v, err := uint256.FromHex(ensureHexPrefix(hexTarget))
	if err != nil {
		return DifficultyTarget{}, fmt.Errorf("invalid difficulty target: %w", err)
	}
	return DifficultyTarget{value: v}, nil
}

func ensureHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s
	}
	return "0x" + s
}

// Satisfied reports whether digestHex (a hex-encoded SHA-256 digest) meets
// the target.
func (d DifficultyTarget) Satisfied(digestHex string) bool {
	v, err := uint256.FromHex(ensureHexPrefix(digestHex))
	if err != nil {
		return false
	}
	return v.Cmp(d.value) <= 0
}

// Encodable is anything Mine can encode canonically and re-encode with a
// different nonce. clock.Ping and clock.Tick satisfy it via their
// EncodeWithNonce methods.
type Encodable interface {
	// EncodeWithNonce returns the canonical bytes of the object as if its
	// nonce field were set to n.
	EncodeWithNonce(n uint64) ([]byte, error)
}

// Mine searches for a nonce such that Hash(obj.EncodeWithNonce(nonce))
// satisfies target, per spec §6's Hasher/PoW contract: mine(obj) →
// (digest, nonce). It returns ctx.Err() if ctx is cancelled first.
func Mine(ctx context.Context, obj Encodable, target DifficultyTarget) (digest string, nonce uint64, err error) {
	for n := uint64(0); ; n++ {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		default:
		}
		buf, encErr := obj.EncodeWithNonce(n)
		if encErr != nil {
			return "", 0, encErr
		}
		h := Hash(buf)
		if target.Satisfied(h) {
			return h, n, nil
		}
	}
}

// MustHexDigest validates that s decodes as hex of the expected SHA-256
// digest length (32 bytes), for shape-validation call sites.
func MustHexDigest(s string) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("digest must be 32 bytes, got %d", len(b))
	}
	return nil
}
