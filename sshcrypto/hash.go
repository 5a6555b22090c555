package sshcrypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"hash"
)

// ErrUnknownHash is returned by HashByName for an unrecognised name.
var ErrUnknownHash = errors.New("sshcrypto: unknown hash algorithm")

// HashByName returns a constructor for the exchange-hash function named by
// a KEX algorithm's suffix ("sha1" or "sha256").
func HashByName(name string) (func() hash.Hash, error) {
	switch name {
	case "sha1":
		return sha1.New, nil
	case "sha256":
		return sha256.New, nil
	}
	return nil, ErrUnknownHash
}
