// Package macgen synthesizes locally-administered MAC addresses for
// Firecracker tap devices. Cryptographic strength is not required (that's an
// explicit Non-goal); the only contract is a well-formed, locally
// administered unicast address with low collision odds within one host.
package macgen

import (
	"crypto/rand"
	"fmt"
)

const hexDigits = "0123456789ABCDEF"

// Generate returns an upper-case, 17-character MAC address string of the
// form "XX:XX:XX:XX:XX:XX". The first octet's low nibble (the second hex
// digit) is fixed to "2", marking the address as locally administered and
// unicast per IEEE 802; every other nibble is drawn uniformly at random.
func Generate() string {
	var nibbles [12]byte
	nibbles[1] = '2'

	idx := []int{0, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	buf := make([]byte, len(idx))
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is
		// unavailable; fall back to a fixed pattern rather than panic.
		for i := range buf {
			buf[i] = byte(i * 7)
		}
	}
	for i, pos := range idx {
		nibbles[pos] = hexDigits[buf[i]%16]
	}

	return fmt.Sprintf("%c%c:%c%c:%c%c:%c%c:%c%c:%c%c",
		nibbles[0], nibbles[1], nibbles[2], nibbles[3], nibbles[4], nibbles[5],
		nibbles[6], nibbles[7], nibbles[8], nibbles[9], nibbles[10], nibbles[11])
}
