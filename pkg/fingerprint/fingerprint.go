// Package fingerprint derives the stable SHA-256 identifiers used as primary
// keys across the data model.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/user/legalcode-service/pkg/utils"
)

// Fingerprint hashes an ordered list of fields into a 64-character hex digest.
// Each part is length-prefixed so ("ab", "c") and ("a", "bc") never collide.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// QueryHash identifies the query for a location, datapoint and platform.
func QueryHash(locationID, datapointID, platform string) string {
	return Fingerprint("query", locationID, datapointID, platform)
}

// URLHash hashes the normalized form of rawURL. URLs that cannot be normalized
// are hashed verbatim.
func URLHash(rawURL string) string {
	normalized, err := utils.NormalizeURL(rawURL)
	if err != nil {
		normalized = rawURL
	}
	return ContentHash([]byte(normalized))
}

// ContentHash is the plain SHA-256 of raw bytes.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// UnitKey identifies a (location, datapoint) pair, used for lock names.
func UnitKey(locationID, datapointID string) string {
	return Fingerprint("unit", locationID, datapointID)
}
