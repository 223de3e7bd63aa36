package ledger

import (
	"crypto/sha256"
	"encoding/base64"
)

// HashToken returns the deterministic digest under which a refresh secret is
// stored and looked up. Storing hashes only means a database dump yields no
// usable bearer secrets.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.StdEncoding.EncodeToString(sum[:])
}
