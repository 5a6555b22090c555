// Package kex implements the SSH-2 key-exchange state machines (DH group1/
// group14/group-exchange, spec.md §4.4), the ten-category KEXINIT
// proposal negotiator (spec.md §4.5), and host-key signature verification.
//
// Grounded on findCommonAlgorithm/findAgreedAlgorithms in
// massiveart-go.crypto/ssh/common.go for the negotiation shape, and on
// dhGroup/dhGroup1/dhGroup14 in the same file for the fixed-group
// constants — generalized here into the full DH group1/14/group-exchange
// set spec.md §4.4 requires, with the Herradura/Kyber/NEWHOPE KEX drivers
// blitter.com/go/xs used instead replaced outright (see SPEC_FULL.md §4).
package kex

import "blitter.com/go/sshx/wire"

// SSH message numbers this package's state machines send or receive.
// RFC 4253 §7, RFC 4419 §3. SSH_MSG_KEX_DH_GEX_GROUP and
// SSH_MSG_KEXDH_REPLY legitimately share the value 31 (spec.md §9):
// callers MUST dispatch incoming messages by current state, never by
// message number alone.
const (
	MsgKexInit = 20
	MsgNewKeys = 21

	MsgKexDHInit  = 30
	MsgKexDHReply = 31

	MsgKexDHGexRequestOld = 30
	MsgKexDHGexGroup      = 31
	MsgKexDHGexInit       = 32
	MsgKexDHGexReply      = 33
	MsgKexDHGexRequest    = 34
)

// NumCategories is the number of name-lists a KEXINIT payload carries.
const NumCategories = 10

// Category indexes a KexInit's ten algorithm name-lists, per spec.md §3.
type Category int

const (
	CatKex Category = iota
	CatHostKey
	CatCipherC2S
	CatCipherS2C
	CatMacC2S
	CatMacS2C
	CatCompC2S
	CatCompS2C
	CatLangC2S
	CatLangS2C
)

// categoryNames gives each Category a stable label for proposal maps and
// error messages.
var categoryNames = [NumCategories]string{
	CatKex:       "kex",
	CatHostKey:   "host_key",
	CatCipherC2S: "cipher_c2s",
	CatCipherS2C: "cipher_s2c",
	CatMacC2S:    "mac_c2s",
	CatMacS2C:    "mac_s2c",
	CatCompC2S:   "comp_c2s",
	CatCompS2C:   "comp_s2c",
	CatLangC2S:   "lang_c2s",
	CatLangS2C:   "lang_s2c",
}

// optional reports whether a category may be left without a mutual
// algorithm (only the two language categories, per spec.md §4.5).
func (c Category) optional() bool {
	return c == CatLangC2S || c == CatLangS2C
}

// KexInit is the parsed form of an SSH_MSG_KEXINIT payload, spec.md §4.5:
//
//	SSH_MSG_KEXINIT(20) || 16 random bytes || 10 x name-list ||
//	boolean first_kex_packet_follows || uint32 reserved(0)
type KexInit struct {
	Cookie                 [16]byte
	Lists                  [NumCategories][]string
	FirstKexPacketFollows  bool
	Reserved               uint32
	// Raw is the exact payload bytes (including the leading message
	// number), preserved verbatim for use as I_C/I_S in the exchange
	// hash. Parsing never re-serializes this; callers that construct a
	// KexInit to send must keep the bytes they wrote, not a
	// re-marshaled copy, since whitespace-free name-list joins are
	// deterministic but future fields are not guaranteed to be.
	Raw []byte
}

// Marshal serializes k into a fresh SSH_MSG_KEXINIT payload and also
// stores the result as k.Raw.
func (k *KexInit) Marshal() []byte {
	b := wire.New(256)
	b.WriteByte(MsgKexInit)
	b.WriteRaw(k.Cookie[:])
	for i := 0; i < NumCategories; i++ {
		b.WriteNameList(k.Lists[i])
	}
	b.WriteBool(k.FirstKexPacketFollows)
	b.WriteUint32(k.Reserved)
	k.Raw = append([]byte(nil), b.All()...)
	return k.Raw
}

// ParseKexInit decodes an SSH_MSG_KEXINIT payload (message number
// included).
func ParseKexInit(payload []byte) (*KexInit, error) {
	b := wire.NewFromBytes(payload)
	msgType, err := b.ReadByte()
	if err != nil {
		return nil, err
	}
	if msgType != MsgKexInit {
		return nil, ErrUnexpectedMessage
	}
	k := &KexInit{}
	cookie, err := b.ReadRaw(16)
	if err != nil {
		return nil, err
	}
	copy(k.Cookie[:], cookie)
	for i := 0; i < NumCategories; i++ {
		list, err := b.ReadNameList()
		if err != nil {
			return nil, err
		}
		k.Lists[i] = list
	}
	k.FirstKexPacketFollows, err = b.ReadBool()
	if err != nil {
		return nil, err
	}
	k.Reserved, err = b.ReadUint32()
	if err != nil {
		return nil, err
	}
	k.Raw = append([]byte(nil), payload...)
	return k, nil
}
