package sshcrypto

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"
)

// ErrUnknownMAC is returned by MACByName for an unrecognised name.
var ErrUnknownMAC = errors.New("sshcrypto: unknown mac algorithm")

// MACSpec describes one negotiable SSH MAC algorithm.
type MACSpec struct {
	Name     string
	KeySize  int
	// Size is the number of bytes actually transmitted, which for the
	// "-96" variants is 12 even though the underlying HMAC produces more.
	Size int
	newFn func() hash.Hash
}

// MACState is the per-direction instance of a MAC: init(key) happened at
// construction, update(seq) and update(payload) feed the MAC input in
// order, and Sum finalizes one packet's MAC and resets the state for the
// next packet. The transport constructs one MACState per outbound/inbound
// direction and reuses the underlying key across packets, matching RFC
// 4253 §6.4's "HMAC(key, sequence_number || unencrypted_packet)".
type MACState struct {
	spec MACSpec
	mac  hash.Hash
}

// New returns a MACState bound to key. key must be at least KeySize
// bytes; longer keymat is truncated to KeySize here, per spec.md §4.8.
func (m MACSpec) New(key []byte) (*MACState, error) {
	if len(key) < m.KeySize {
		return nil, errors.New("sshcrypto: short mac key for " + m.Name)
	}
	return &MACState{spec: m, mac: hmac.New(m.newFn, key[:m.KeySize])}, nil
}

// WriteSeq feeds the 4-octet big-endian sequence number into the MAC.
func (s *MACState) WriteSeq(seq uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], seq)
	s.mac.Write(b[:])
}

// Write feeds packet bytes (packet_length || padding_length || payload ||
// padding) into the MAC.
func (s *MACState) Write(p []byte) {
	s.mac.Write(p)
}

// Sum finalizes the MAC over everything written since constructions (or
// since the last Sum, which resets the underlying hash.Hash state for the
// next packet) and returns exactly spec.Size bytes.
func (s *MACState) Sum() []byte {
	full := s.mac.Sum(nil)
	s.mac.Reset()
	return full[:s.spec.Size]
}

var macRegistry = map[string]MACSpec{}

func registerMAC(spec MACSpec) { macRegistry[spec.Name] = spec }

func init() {
	registerMAC(MACSpec{Name: "hmac-md5", KeySize: 16, Size: 16, newFn: md5.New})
	registerMAC(MACSpec{Name: "hmac-sha1", KeySize: 20, Size: 20, newFn: sha1.New})
	registerMAC(MACSpec{Name: "hmac-sha1-96", KeySize: 20, Size: 12, newFn: sha1.New})
	registerMAC(MACSpec{Name: "hmac-sha2-256", KeySize: 32, Size: 32, newFn: sha256.New})
	registerMAC(MACSpec{Name: "hmac-sha2-256-96", KeySize: 32, Size: 12, newFn: sha256.New})
	registerMAC(MACSpec{Name: "none", KeySize: 0, Size: 0, newFn: nil})
}

// MACByName looks up a registered MACSpec.
func MACByName(name string) (MACSpec, error) {
	spec, ok := macRegistry[name]
	if !ok {
		return MACSpec{}, ErrUnknownMAC
	}
	return spec, nil
}

// SupportedMACs returns the default client proposal order.
func SupportedMACs() []string {
	return []string{"hmac-sha2-256", "hmac-sha2-256-96", "hmac-sha1", "hmac-sha1-96", "hmac-md5"}
}

// noneMAC.New would construct an hmac.New(nil, ...) which panics, so "none"
// is special-cased by the transport: it never calls MACSpec.New on the
// "none" entry, it just skips MAC computation entirely. MACByName still
// resolves the name so KEXINIT negotiation and the §4.7 pre-auth "none"
// rejection can see it was chosen.
