// Package checksum fingerprints catalog documents and snapshots.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortLen is the prefix length shown in logs and tables.
const shortLen = 12

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short abbreviates a digest returned by Sum.
func Short(sum string) string {
	if len(sum) <= shortLen {
		return sum
	}
	return sum[:shortLen]
}
