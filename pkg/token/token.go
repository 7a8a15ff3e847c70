// Package token generates the random values the billing engine hands out:
// invoice access tokens and the numeric tail of invoice numbers.
package token

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// tokenBytes gives 256 bits of entropy per access token.
const tokenBytes = 32

// New returns a fresh hex-encoded access token.
func New() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Digits4 returns a random number in [0, 10000), used as the invoice-number
// tail. Collisions are expected occasionally and handled by the caller via
// the unique index.
func Digits4() int {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable for the process.
		panic(fmt.Sprintf("token: read random: %v", err))
	}
	return int(binary.BigEndian.Uint32(b[:]) % 10000)
}
