// Package checksum fingerprints document content recorded in the publish journal.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/starford/dispatch/internal/drift"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Body returns the digest of a document's normalized body. Header edits and
// whitespace-only changes keep the same fingerprint, matching drift detection.
func Body(content string) string {
	return Sum([]byte(strings.Join(drift.Normalize(content), "\n")))
}

// Short truncates a digest for log lines.
func Short(sum string) string {
	if len(sum) <= 12 {
		return sum
	}
	return sum[:12]
}
