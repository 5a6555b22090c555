package kex

import (
	"errors"
	"hash"
	"math/big"
)

// Outcome reports the result of feeding one inbound packet to an
// Algorithm's Next method, per spec.md §4.4.
type Outcome int

const (
	// Continue means more packets are expected before the exchange
	// completes.
	Continue Outcome = iota
	// Done means the exchange succeeded; Result() is now valid.
	Done
	// Failed means the exchange cannot proceed (signature verification
	// failure, out-of-range DH value, malformed message, ...).
	Failed
)

// Context carries the values every KEX algorithm needs to compute its
// exchange hash H, per spec.md Glossary: V_C, V_S, I_C, I_S.
type Context struct {
	ClientVersion []byte // V_C, CR/LF stripped
	ServerVersion []byte // V_S, CR/LF stripped
	ClientKexInit []byte // I_C: payload of the client's SSH_MSG_KEXINIT
	ServerKexInit []byte // I_S: payload of the server's SSH_MSG_KEXINIT
}

// Result is what a completed Algorithm yields to the transport state
// machine: the shared secret, the exchange hash, the raw host-key blob,
// and the hash function used to compute H (needed again at rekey and by
// the public-key auth layer's session binding, spec.md §6).
type Result struct {
	K          *big.Int
	H          []byte
	HostKeyBlob []byte
	HashNewFn  func() hash.Hash
}

// Algorithm drives one key-exchange attempt end to end. A fresh Algorithm
// must be constructed for every KEX/rekey (spec.md §8: session_id is
// fixed at the *first* KEX only, but each KEX — initial or rekey — uses
// its own ephemeral DH exponent).
type Algorithm interface {
	// Init may return an outbound packet to send immediately (e.g.
	// SSH_MSG_KEXDH_INIT for fixed groups, SSH_MSG_KEX_DH_GEX_REQUEST
	// for group-exchange).
	Init(ctx *Context) (send []byte, err error)
	// Next consumes one inbound KEX packet (message number included) and
	// may produce one outbound packet. Next is never called again once
	// Done or Failed is returned.
	Next(ctx *Context, in []byte) (send []byte, outcome Outcome, err error)
	// Result returns the completed exchange's output; valid only after
	// Next has returned Done.
	Result() Result
}

// ErrSignatureInvalid is returned when a host key's signature over H does
// not verify.
var ErrSignatureInvalid = errors.New("kex: host key signature invalid")

// ErrMalformedHostKey is returned when K_S cannot be parsed as a
// recognised host-key type.
var ErrMalformedHostKey = errors.New("kex: malformed host key blob")
