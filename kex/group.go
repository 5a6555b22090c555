package kex

import (
	"hash"
	"math/big"

	"blitter.com/go/sshx/dh"
	"blitter.com/go/sshx/wire"
)

// groupState is FixedGroup's internal progress marker, spec.md §4.4.
type groupState int

const (
	groupStateInit groupState = iota
	groupStateWaitReply
	groupStateDone
	groupStateFailed
)

// FixedGroup drives "diffie-hellman-group1-sha1" and
// "diffie-hellman-group14-sha1"/"...-sha256": one round trip over a
// built-in MODP group (spec.md §4.4). Construct a fresh FixedGroup per
// exchange.
type FixedGroup struct {
	group   dh.Group
	hashNew func() hash.Hash

	state  groupState
	engine *dh.Engine
	result Result
}

// NewFixedGroup returns a FixedGroup bound to group (Group1 or Group14)
// and the hash function its name selects (sha1 for both group1 and the
// "-sha1" group14 variant, sha256 for "diffie-hellman-group14-sha256").
func NewFixedGroup(group dh.Group, hashNew func() hash.Hash) *FixedGroup {
	return &FixedGroup{group: group, hashNew: hashNew}
}

// Init generates this side's ephemeral exponent and returns the
// SSH_MSG_KEXDH_INIT payload carrying e.
func (g *FixedGroup) Init(ctx *Context) ([]byte, error) {
	eng, err := dh.NewEngine(g.group)
	if err != nil {
		g.state = groupStateFailed
		return nil, err
	}
	g.engine = eng
	g.state = groupStateWaitReply

	b := wire.New(256)
	b.WriteByte(MsgKexDHInit)
	b.WriteMPInt(eng.PublicValue())
	return b.All(), nil
}

// Next consumes the server's SSH_MSG_KEXDH_REPLY: K_S, f, and the
// signature of H over K_S||e||f||K.
func (g *FixedGroup) Next(ctx *Context, in []byte) ([]byte, Outcome, error) {
	if g.state != groupStateWaitReply {
		g.state = groupStateFailed
		return nil, Failed, ErrUnexpectedMessage
	}

	b := wire.NewFromBytes(in)
	msgType, err := b.ReadByte()
	if err != nil {
		g.state = groupStateFailed
		return nil, Failed, err
	}
	if msgType != MsgKexDHReply {
		g.state = groupStateFailed
		return nil, Failed, ErrUnexpectedMessage
	}

	hostKeyBlob, err := b.ReadString()
	if err != nil {
		g.state = groupStateFailed
		return nil, Failed, err
	}
	f, err := b.ReadMPInt()
	if err != nil {
		g.state = groupStateFailed
		return nil, Failed, err
	}
	sigBlob, err := b.ReadString()
	if err != nil {
		g.state = groupStateFailed
		return nil, Failed, err
	}

	k, err := g.engine.SharedSecret(f)
	if err != nil {
		g.state = groupStateFailed
		return nil, Failed, err
	}

	h := computeFixedGroupHash(g.hashNew, ctx, hostKeyBlob, g.engine.PublicValue(), f, k)

	if err := VerifyHostKeySignature(hostKeyBlob, h, sigBlob); err != nil {
		g.state = groupStateFailed
		return nil, Failed, err
	}

	g.result = Result{
		K:           k,
		H:           h,
		HostKeyBlob: hostKeyBlob,
		HashNewFn:   g.hashNew,
	}
	g.state = groupStateDone
	return nil, Done, nil
}

// Result returns the completed exchange's output. Valid only once Next
// has returned Done.
func (g *FixedGroup) Result() Result { return g.result }

// computeFixedGroupHash builds H = hash(V_C || V_S || I_C || I_S || K_S
// || e || f || K) per RFC 4253 §8.
func computeFixedGroupHash(hashNew func() hash.Hash, ctx *Context, hostKeyBlob []byte, e, f, k *big.Int) []byte {
	b := wire.New(512)
	b.WriteStringVal(string(ctx.ClientVersion))
	b.WriteStringVal(string(ctx.ServerVersion))
	b.WriteString(ctx.ClientKexInit)
	b.WriteString(ctx.ServerKexInit)
	b.WriteString(hostKeyBlob)
	b.WriteMPInt(e)
	b.WriteMPInt(f)
	b.WriteMPInt(k)

	h := hashNew()
	h.Write(b.All())
	return h.Sum(nil)
}
