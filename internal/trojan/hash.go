// Package trojan implements the wire framing for the trojan protocol: the
// password hash, the TCP request header, and the UDP packet header.
package trojan

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashLen is the fixed length of a hashed password as it appears on the
// wire: 56 lowercase hex characters, the textual encoding of a SHA-224 sum.
const HashLen = 56

// HashPassword renders password's SHA-224 digest as 56 lowercase hex
// characters, the form the trojan request header carries instead of the
// password itself.
func HashPassword(password string) string {
	sum := sha256.Sum224([]byte(password))
	return hex.EncodeToString(sum[:])
}
