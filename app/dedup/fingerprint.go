package dedup

import (
	"strconv"
	"strings"
)

// fingerprintWindow is the number of leading characters of normalized text
// the fingerprint is computed over.
const fingerprintWindow = 200

// Fingerprint reduces the leading window of lowercased normalized text to a
// fixed-width hash, used as a cheap content-identity signal. Collisions are
// treated as probable duplicates and are expected to be rare; the hash is an
// internal matching key, not a public format.
//
// The hash is the classic h = h*31 + code accumulator over Unicode code
// points, computed in uint32 arithmetic (wrap-around is explicit, not
// host-dependent), reinterpreted as a signed 32-bit value and reported as the
// absolute value in decimal. The window counts runes, not bytes.
func Fingerprint(normalized string) string {
	runes := []rune(strings.ToLower(normalized))
	if len(runes) > fingerprintWindow {
		runes = runes[:fingerprintWindow]
	}

	var h uint32
	for _, r := range runes {
		h = h*31 + uint32(r)
	}

	v := int64(int32(h))
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 10)
}
