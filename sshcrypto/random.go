package sshcrypto

import "crypto/rand"

// Fill sources len(buf) cryptographically secure random bytes into buf,
// the narrow random contract of spec.md §4.2. The other packages of this
// module (packet padding, DH exponents, known_hosts salts, KEXINIT
// cookies) read crypto/rand directly rather than through Fill.
func Fill(buf []byte) error {
	_, err := rand.Read(buf)
	return err
}
