package license

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// KeyLength is the length of a generated license key in hex characters.
const KeyLength = 32

// GenerateKey produces an opaque, unpredictable license key: SHA-256 over
// the current timestamp plus 16 CSPRNG bytes, truncated to 32 hex chars.
// No uniqueness check is made here; the store's unique constraint on
// license_key is the defense of record against an exact collision.
func GenerateKey() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%d", time.Now().UnixNano())
	h.Write(nonce)

	return hex.EncodeToString(h.Sum(nil))[:KeyLength], nil
}
