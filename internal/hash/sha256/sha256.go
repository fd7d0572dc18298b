// Package sha256 derives image cache keys from upstream URLs.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// Hasher maps URLs to stable blob keys.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Key returns prefix joined with the hex digest of rawURL. The digest alone
// is returned when prefix is empty.
func (*Hasher) Key(prefix, rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	digest := hex.EncodeToString(sum[:])
	if prefix == "" {
		return digest
	}
	return path.Join(prefix, digest)
}
