package kex

import (
	"hash"
	"math/big"

	"blitter.com/go/sshx/dh"
	"blitter.com/go/sshx/wire"
)

// Recommended min/n/max bit lengths for SSH_MSG_KEX_DH_GEX_REQUEST.
// RFC 4419 §3 leaves the choice to the client; the implementation this
// port replaces sent a degenerate 1024/1024/1024 triple that gives
// the server no range to pick a stronger group from (spec.md §9 flags
// this explicitly). 2048 is picked as n so a negotiated group-exchange
// KEX is at least as strong as group14.
const (
	GexMinBits = 1024
	GexPreferredBits = 2048
	GexMaxBits = 8192
)

type gexState int

const (
	gexStateRequestSent gexState = iota
	gexStateWaitGroup
	gexStateWaitReply
	gexStateDone
	gexStateFailed
)

// GroupExchange drives "diffie-hellman-group-exchange-sha1"/"-sha256":
// the server picks p, g to fit a client-requested bit-length range
// (spec.md §4.4). Construct a fresh GroupExchange per exchange.
type GroupExchange struct {
	hashNew  func() hash.Hash
	min, n, max uint32

	state  gexState
	group  dh.Group
	engine *dh.Engine
	result Result
}

// NewGroupExchange returns a GroupExchange that will request a group
// sized between min and max bits, preferring n.
func NewGroupExchange(hashNew func() hash.Hash, min, n, max uint32) *GroupExchange {
	return &GroupExchange{hashNew: hashNew, min: min, n: n, max: max}
}

// Init sends SSH_MSG_KEX_DH_GEX_REQUEST with this side's min/n/max.
func (g *GroupExchange) Init(ctx *Context) ([]byte, error) {
	g.state = gexStateWaitGroup
	b := wire.New(32)
	b.WriteByte(MsgKexDHGexRequest)
	b.WriteUint32(g.min)
	b.WriteUint32(g.n)
	b.WriteUint32(g.max)
	return b.All(), nil
}

// Next consumes SSH_MSG_KEX_DH_GEX_GROUP (p, g), to which it replies
// with SSH_MSG_KEX_DH_GEX_INIT (e); then consumes
// SSH_MSG_KEX_DH_GEX_REPLY (K_S, f, signature) to complete the exchange.
func (g *GroupExchange) Next(ctx *Context, in []byte) ([]byte, Outcome, error) {
	switch g.state {
	case gexStateWaitGroup:
		return g.nextGroup(in)
	case gexStateWaitReply:
		return g.nextReply(ctx, in)
	default:
		g.state = gexStateFailed
		return nil, Failed, ErrUnexpectedMessage
	}
}

func (g *GroupExchange) nextGroup(in []byte) ([]byte, Outcome, error) {
	b := wire.NewFromBytes(in)
	msgType, err := b.ReadByte()
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}
	if msgType != MsgKexDHGexGroup {
		g.state = gexStateFailed
		return nil, Failed, ErrUnexpectedMessage
	}
	p, err := b.ReadMPInt()
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}
	gen, err := b.ReadMPInt()
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}
	g.group = dh.Group{G: gen, P: p}

	eng, err := dh.NewEngine(g.group)
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}
	g.engine = eng
	g.state = gexStateWaitReply

	out := wire.New(256)
	out.WriteByte(MsgKexDHGexInit)
	out.WriteMPInt(eng.PublicValue())
	return out.All(), Continue, nil
}

func (g *GroupExchange) nextReply(ctx *Context, in []byte) ([]byte, Outcome, error) {
	b := wire.NewFromBytes(in)
	msgType, err := b.ReadByte()
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}
	if msgType != MsgKexDHGexReply {
		g.state = gexStateFailed
		return nil, Failed, ErrUnexpectedMessage
	}
	hostKeyBlob, err := b.ReadString()
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}
	f, err := b.ReadMPInt()
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}
	sigBlob, err := b.ReadString()
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}

	k, err := g.engine.SharedSecret(f)
	if err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}

	h := computeGexHash(g.hashNew, ctx, hostKeyBlob, g.min, g.n, g.max, g.group.P, g.group.G, g.engine.PublicValue(), f, k)

	if err := VerifyHostKeySignature(hostKeyBlob, h, sigBlob); err != nil {
		g.state = gexStateFailed
		return nil, Failed, err
	}

	g.result = Result{
		K:           k,
		H:           h,
		HostKeyBlob: hostKeyBlob,
		HashNewFn:   g.hashNew,
	}
	g.state = gexStateDone
	return nil, Done, nil
}

// Result returns the completed exchange's output. Valid only once Next
// has returned Done.
func (g *GroupExchange) Result() Result { return g.result }

// computeGexHash builds H = hash(V_C || V_S || I_C || I_S || K_S ||
// min || n || max || p || g || e || f || K) per RFC 4419 §3.
func computeGexHash(hashNew func() hash.Hash, ctx *Context, hostKeyBlob []byte, min, n, max uint32, p, gen, e, f, k *big.Int) []byte {
	b := wire.New(512)
	b.WriteStringVal(string(ctx.ClientVersion))
	b.WriteStringVal(string(ctx.ServerVersion))
	b.WriteString(ctx.ClientKexInit)
	b.WriteString(ctx.ServerKexInit)
	b.WriteString(hostKeyBlob)
	b.WriteUint32(min)
	b.WriteUint32(n)
	b.WriteUint32(max)
	b.WriteMPInt(p)
	b.WriteMPInt(gen)
	b.WriteMPInt(e)
	b.WriteMPInt(f)
	b.WriteMPInt(k)

	h := hashNew()
	h.Write(b.All())
	return h.Sum(nil)
}
