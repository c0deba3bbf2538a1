// Package ordernum generates short human-readable order numbers.
package ordernum

import (
	"crypto/rand"
	"fmt"
)

// alphabet excludes characters that read ambiguously on receipts and over
// the phone: 0/O, 1/I/L, and lowercase entirely.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// Length is the number of random characters after the prefix.
const Length = 8

// Prefix marks gromart order numbers.
const Prefix = "GM-"

// New returns a fresh order number, e.g. "GM-7KQ2MXWR". Collisions are
// possible at this length; callers must check uniqueness against storage
// and regenerate on a hit.
func New() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return Prefix + string(out), nil
}
