// Package fingerprint derives short, non-reversible identifiers for secret
// material so log lines can correlate token usage without ever containing a
// raw token.
package fingerprint

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Token returns a 16-hex-character fingerprint of the given secret. Safe to
// log; the raw value must never appear in log output.
func Token(secret string) string {
	sum := xxhash.Sum64String(secret)
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(buf[:])
}
