// Package dh implements the Diffie-Hellman engine spec.md §4.3 describes:
// given a group (p, g), generate a private exponent, compute e = g^x mod
// p, accept the peer's f, and derive the shared secret K = f^x mod p.
//
// Grounded on the dhGroup/diffieHellman pairing in
// massiveart-go.crypto/ssh/common.go, generalized from two fixed groups
// to any (g, p) pair (needed for group-exchange, spec.md §4.4).
package dh

import (
	"crypto/rand"
	"errors"
	"math/big"

	"blitter.com/go/sshx/wire"
)

// ErrOutOfRange is returned when a peer's public value f (or e, on the
// server role this client never plays) falls outside [1, p-1].
var ErrOutOfRange = errors.New("dh: peer public value out of range")

// Group is a multiplicative group suitable for Diffie-Hellman key
// agreement: a generator g and a modulus p.
type Group struct {
	G, P *big.Int
}

// Engine holds one side's ephemeral exponent for a single key exchange.
// It is not reusable across KEX attempts: a fresh Engine (and thus a
// fresh x) must be created for every rekey, per spec.md §4.3/§8.
type Engine struct {
	group Group
	x     *big.Int // private exponent
	e     *big.Int // public value g^x mod p
}

// NewEngine generates a private exponent and the corresponding public
// value e = g^x mod p for the given group.
func NewEngine(group Group) (*Engine, error) {
	x, err := randExponent(group.P)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).Exp(group.G, x, group.P)
	return &Engine{group: group, x: x, e: e}, nil
}

// randExponent generates a private exponent x uniformly in [2, p-2] via
// rejection sampling on a full-width random value, matching common SSH
// client practice of using a full-width exponent rather than a minimal
// one (the modexp cost is dominated by p's size either way).
func randExponent(p *big.Int) (*big.Int, error) {
	upper := new(big.Int).Sub(p, big.NewInt(4)) // x-2 ranges over [0, p-4]
	buf := make([]byte, (p.BitLen()+7)/8)
	for {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		x := new(big.Int).SetBytes(buf)
		if x.Cmp(upper) > 0 {
			continue
		}
		return x.Add(x, big.NewInt(2)), nil
	}
}

// PublicValue returns e = g^x mod p to be sent to the peer.
func (eng *Engine) PublicValue() *big.Int { return eng.e }

// SharedSecret validates the peer's public value f against [1, p-1] and
// returns K = f^x mod p.
func (eng *Engine) SharedSecret(f *big.Int) (*big.Int, error) {
	if f.Sign() <= 0 || f.Cmp(eng.group.P) >= 0 {
		return nil, ErrOutOfRange
	}
	return new(big.Int).Exp(f, eng.x, eng.group.P), nil
}

// EncodeSharedSecret returns the SSH mpint content octets of K (with the
// 0x00 sign-pad byte when the high bit of the first octet is set), per
// spec.md §4.3, without the uint32 length prefix. The exchange hash H and
// the key derivation function both hash K as these octets behind that
// length prefix (wire.Buffer.WriteMPInt).
func EncodeSharedSecret(k *big.Int) []byte {
	return wire.MarshalMPInt(k)
}
