package encryptor

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// KeyedHash returns "blake2b:" followed by the hex BLAKE2b-256 MAC of value
// under key. Equal inputs hash equally, so redacted values can still be
// compared across events. Keys longer than 64 bytes are rejected.
func KeyedHash(value string, key []byte) (string, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("failed to create blake2b hash: %w", err)
	}
	h.Write([]byte(value))
	return "blake2b:" + hex.EncodeToString(h.Sum(nil)), nil
}
