// Package checksum fingerprints file content for change detection and
// optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns the quoted entity tag for data.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Matches reports whether want names data. want may be a bare digest or an
// entity tag, weak or strong; an empty want matches anything.
func Matches(data []byte, want string) bool {
	want = strings.TrimPrefix(strings.TrimSpace(want), "W/")
	want = strings.Trim(want, `"`)
	return want == "" || want == "*" || want == Sum(data)
}
