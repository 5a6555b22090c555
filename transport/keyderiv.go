package transport

import (
	"hash"
	"math/big"

	"blitter.com/go/sshx/wire"
)

// Key-derivation letters, RFC 4253 §7.2: initial IV client-to-server,
// initial IV server-to-client, encryption key client-to-server,
// encryption key server-to-client, integrity key client-to-server,
// integrity key server-to-client.
const (
	LetterIVClientToServer     byte = 'A'
	LetterIVServerToClient     byte = 'B'
	LetterEncKeyClientToServer byte = 'C'
	LetterEncKeyServerToClient byte = 'D'
	LetterIntegKeyClientToServer byte = 'E'
	LetterIntegKeyServerToClient byte = 'F'
)

// DeriveKey computes the key-derivation function of RFC 4253 §7.2:
//
//	K1      = HASH(K || H || letter || session_id)
//	Kn+1    = HASH(K || H || K1 || K2 || ... || Kn)
//
// expanding until at least length bytes are available, then truncating.
// K is hashed in its mpint wire encoding, matching the encoding the KEX
// exchange hash itself uses for K (spec.md §4.3).
func DeriveKey(hashNew func() hash.Hash, k *big.Int, h []byte, letter byte, sessionID []byte, length int) []byte {
	kBytes := wire.New(len(h) + 64)
	kBytes.WriteMPInt(k)
	kEncoded := kBytes.All()

	hsh := hashNew()
	hsh.Write(kEncoded)
	hsh.Write(h)
	hsh.Write([]byte{letter})
	hsh.Write(sessionID)
	out := hsh.Sum(nil)

	for len(out) < length {
		hsh.Reset()
		hsh.Write(kEncoded)
		hsh.Write(h)
		hsh.Write(out)
		out = append(out, hsh.Sum(nil)...)
	}
	return out[:length]
}
