package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// JSONHasher implements clock.Hasher over plain JSON encoding. The
// structured domain types (clock.Ping, clock.Tick) define their own
// Encode for canonical, field-order-stable hashing; JSONHasher exists
// for the selector's scratch hash_diff inputs (single-key maps), where
// encoding/json's alphabetical key order is deterministic on its own.
type JSONHasher struct{}

// Hash returns the hex digest of obj's JSON encoding.
func (JSONHasher) Hash(obj any) (string, error) {
	buf, err := json.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("hash: marshal: %w", err)
	}
	return Hash(buf), nil
}
