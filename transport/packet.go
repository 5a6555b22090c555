// Package transport implements the binary packet protocol (RFC 4253 §6)
// and the connection state machine that drives version exchange, key
// exchange, and rekeying on top of it (spec.md §4.7, §4.8).
//
// Grounded on xsnet.Conn's Read/WritePacket pairing in blitter.com/go/xs
// (length-prefixed, HMAC-checked, padded framing over a plain net.Conn)
// generalized from xsnet's fixed leading-control-byte/truncated-HMAC
// framing to RFC 4253's packet_length/padding_length/payload/padding/mac
// layout, with cipher and MAC selected per negotiated algorithm rather
// than hardcoded.
package transport

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	"blitter.com/go/sshx/sshcrypto"
	"blitter.com/go/sshx/wire"
)

// directionState tracks the cipher, MAC, and sequence number for one
// direction (client-to-server or server-to-client) of a Session, spec.md
// §4.7.
type directionState struct {
	cipher     sshcrypto.Stream
	cipherSpec sshcrypto.CipherSpec
	mac        *sshcrypto.MACState
	macSpec    sshcrypto.MACSpec
	seq        uint32

	// maxPacketLen bounds inbound packet_length, spec.md §4.7: 256 KiB
	// before authentication, 1 MiB after. This client implements no
	// user-authentication exchange, so "after authentication" is
	// approximated by the transport reaching its steady ready state
	// (post-NEWKEYS); a freshly constructed directionState starts at
	// the pre-auth bound and rekeyDirectionStates raises it.
	maxPacketLen int
}

// newDirectionState wraps the negotiated cipher/MAC with their derived
// keys and IV for one direction.
func newDirectionState(dir sshcrypto.Direction, cipherSpec sshcrypto.CipherSpec, key, iv []byte, macSpec sshcrypto.MACSpec, macKey []byte) (*directionState, error) {
	stream, err := cipherSpec.New(dir, key, iv)
	if err != nil {
		return nil, err
	}
	var macState *sshcrypto.MACState
	if macSpec.Size > 0 {
		macState, err = macSpec.New(macKey)
		if err != nil {
			return nil, err
		}
	}
	return &directionState{cipher: stream, cipherSpec: cipherSpec, mac: macState, macSpec: macSpec, maxPacketLen: maxPacketLenPreAuth}, nil
}

func (d *directionState) blockSize() int {
	bs := d.cipherSpec.BlockSize
	if bs < 8 {
		bs = 8
	}
	return bs
}

// writePacket pads, encrypts, MACs, and writes one SSH binary packet
// carrying payload.
func writePacket(w io.Writer, out *directionState, payload []byte) error {
	p := wire.NewPacket(len(payload) + wire.HeaderLen + wire.MinPaddingLen + 32)
	p.WriteRaw(payload)

	blockSize := out.blockSize()
	if _, err := p.FinalizeForSend(blockSize, randFill); err != nil {
		return err
	}
	plaintext := p.All()

	var macOut []byte
	if out.mac != nil {
		out.mac.WriteSeq(out.seq)
		out.mac.Write(plaintext)
		macOut = out.mac.Sum()
	}

	ciphertext := make([]byte, len(plaintext))
	out.cipher.Update(plaintext, 0, len(plaintext), ciphertext, 0)

	if _, err := w.Write(ciphertext); err != nil {
		return err
	}
	if len(macOut) > 0 {
		if _, err := w.Write(macOut); err != nil {
			return err
		}
	}
	out.seq++
	return nil
}

func randFill(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// readPacket reads, decrypts, and MAC-verifies one inbound SSH binary
// packet, returning its payload (padding stripped).
func readPacket(r io.Reader, in *directionState) ([]byte, error) {
	blockSize := in.blockSize()

	firstBlock := make([]byte, blockSize)
	if _, err := io.ReadFull(r, firstBlock); err != nil {
		return nil, err
	}
	decryptedFirst := make([]byte, blockSize)
	in.cipher.Update(firstBlock, 0, blockSize, decryptedFirst, 0)

	packetLen := binary.BigEndian.Uint32(decryptedFirst[0:4])
	limit := in.maxPacketLen
	if limit == 0 {
		limit = maxPacketLenPreAuth
	}
	if packetLen < 5 || packetLen > uint32(limit) {
		return nil, &ProtocolError{Reason: ReasonProtocolError, Message: "insane packet_length"}
	}

	total := int(packetLen) + 4
	if total < blockSize {
		return nil, &ProtocolError{Reason: ReasonProtocolError, Message: "packet shorter than cipher block size"}
	}

	plaintext := make([]byte, total)
	copy(plaintext, decryptedFirst)

	if total > blockSize {
		rest := make([]byte, total-blockSize)
		if _, err := io.ReadFull(r, rest); err != nil {
			return nil, err
		}
		decryptedRest := make([]byte, len(rest))
		in.cipher.Update(rest, 0, len(rest), decryptedRest, 0)
		copy(plaintext[blockSize:], decryptedRest)
	}

	if in.mac != nil {
		macIn := make([]byte, in.macSpec.Size)
		if _, err := io.ReadFull(r, macIn); err != nil {
			return nil, err
		}
		in.mac.WriteSeq(in.seq)
		in.mac.Write(plaintext)
		if !hmacEqual(in.mac.Sum(), macIn) {
			return nil, &MacError{}
		}
	}
	in.seq++

	paddingLen := int(plaintext[4])
	if paddingLen < 4 {
		return nil, &ProtocolError{Reason: ReasonProtocolError, Message: "padding_length below minimum of 4"}
	}
	payloadLen := total - 5 - paddingLen
	if payloadLen < 0 {
		return nil, &ProtocolError{Reason: ReasonProtocolError, Message: "padding_length exceeds packet"}
	}
	return plaintext[5 : 5+payloadLen], nil
}

// maxPacketLenPreAuth and maxPacketLenPostAuth bound inbound
// packet_length, spec.md §4.7: 256 KiB before authentication, 1 MiB
// after (RFC 4253 itself fixes no maximum).
const (
	maxPacketLenPreAuth  = 256 * 1024
	maxPacketLenPostAuth = 1024 * 1024
)

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
