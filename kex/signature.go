package kex

import (
	"crypto"
	"crypto/dsa"
	"crypto/rsa"
	"crypto/sha1"
	"math/big"

	"blitter.com/go/sshx/wire"
)

// HostKeyTypeRSA, HostKeyTypeDSA, HostKeyTypeUnknown are the three
// host-key type values spec.md §3 names for a Host-key record.
const (
	HostKeyTypeRSA     = "ssh-rsa"
	HostKeyTypeDSA     = "ssh-dss"
	HostKeyTypeUnknown = "unknown"
)

// HostKeyType returns the key type named by the host-key blob K_S
// ("ssh-rsa", "ssh-dss", or "unknown" for anything else), without fully
// parsing or validating the key-specific fields.
func HostKeyType(blob []byte) string {
	b := wire.NewFromBytes(blob)
	name, err := b.ReadStringVal()
	if err != nil {
		return HostKeyTypeUnknown
	}
	switch name {
	case HostKeyTypeRSA, HostKeyTypeDSA:
		return name
	default:
		return HostKeyTypeUnknown
	}
}

// VerifyHostKeySignature decodes K_S as (name, key_params...) per RFC
// 4253 §6.6, picks RSA or DSS accordingly, and verifies sig over h.
func VerifyHostKeySignature(hostKeyBlob, h, sigBlob []byte) error {
	keyType := HostKeyType(hostKeyBlob)
	switch keyType {
	case HostKeyTypeRSA:
		return verifyRSA(hostKeyBlob, h, sigBlob)
	case HostKeyTypeDSA:
		return verifyDSA(hostKeyBlob, h, sigBlob)
	default:
		return ErrMalformedHostKey
	}
}

func verifyRSA(hostKeyBlob, h, sigBlob []byte) error {
	b := wire.NewFromBytes(hostKeyBlob)
	if _, err := b.ReadStringVal(); err != nil { // "ssh-rsa"
		return ErrMalformedHostKey
	}
	e, err := b.ReadMPInt()
	if err != nil {
		return ErrMalformedHostKey
	}
	n, err := b.ReadMPInt()
	if err != nil {
		return ErrMalformedHostKey
	}
	pub := &rsa.PublicKey{N: n, E: int(e.Int64())}

	sb := wire.NewFromBytes(sigBlob)
	format, err := sb.ReadStringVal()
	if err != nil || format != HostKeyTypeRSA {
		return ErrMalformedHostKey
	}
	sig, err := sb.ReadString()
	if err != nil {
		return ErrMalformedHostKey
	}
	digest := sha1.Sum(h)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], sig); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}

func verifyDSA(hostKeyBlob, h, sigBlob []byte) error {
	b := wire.NewFromBytes(hostKeyBlob)
	if _, err := b.ReadStringVal(); err != nil { // "ssh-dss"
		return ErrMalformedHostKey
	}
	p, err := b.ReadMPInt()
	if err != nil {
		return ErrMalformedHostKey
	}
	q, err := b.ReadMPInt()
	if err != nil {
		return ErrMalformedHostKey
	}
	g, err := b.ReadMPInt()
	if err != nil {
		return ErrMalformedHostKey
	}
	y, err := b.ReadMPInt()
	if err != nil {
		return ErrMalformedHostKey
	}
	pub := &dsa.PublicKey{
		Parameters: dsa.Parameters{P: p, Q: q, G: g},
		Y:          y,
	}

	sb := wire.NewFromBytes(sigBlob)
	format, err := sb.ReadStringVal()
	if err != nil || format != HostKeyTypeDSA {
		return ErrMalformedHostKey
	}
	blob, err := sb.ReadString()
	if err != nil || len(blob) != 40 {
		return ErrMalformedHostKey
	}
	r := new(big.Int).SetBytes(blob[:20])
	s := new(big.Int).SetBytes(blob[20:])

	digest := sha1.Sum(h)
	if !dsa.Verify(pub, digest[:], r, s) {
		return ErrSignatureInvalid
	}
	return nil
}
