package transport

import (
	"bytes"
	"encoding/binary"
	"testing"

	"blitter.com/go/sshx/sshcrypto"
)

// buildRawPacket hand-assembles an RFC 4253 §6 packet body (no MAC
// trailer, paired with the "none"/"none" directionState) so malformed
// framing can be fed to readPacket directly.
func buildRawPacket(paddingLen int, payload []byte) []byte {
	packetLen := 1 + len(payload) + paddingLen
	buf := make([]byte, 4+packetLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(packetLen))
	buf[4] = byte(paddingLen)
	copy(buf[5:], payload)
	return buf
}

func testDirectionPair(t *testing.T, cipherName, macName string) (out, in *directionState) {
	t.Helper()
	cs, err := sshcrypto.CipherByName(cipherName)
	if err != nil {
		t.Fatalf("CipherByName(%s): %v", cipherName, err)
	}
	ms, err := sshcrypto.MACByName(macName)
	if err != nil {
		t.Fatalf("MACByName(%s): %v", macName, err)
	}
	key := make([]byte, cs.KeySize)
	iv := make([]byte, cs.IVSize)
	macKey := make([]byte, ms.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	for i := range iv {
		iv[i] = byte(i + 2)
	}
	for i := range macKey {
		macKey[i] = byte(i + 3)
	}

	writer, err := newDirectionState(sshcrypto.Encrypt, cs, key, iv, ms, macKey)
	if err != nil {
		t.Fatalf("newDirectionState(Encrypt): %v", err)
	}
	reader, err := newDirectionState(sshcrypto.Decrypt, cs, key, iv, ms, macKey)
	if err != nil {
		t.Fatalf("newDirectionState(Decrypt): %v", err)
	}
	return writer, reader
}

func TestPacketRoundTripNoneCipherAndMAC(t *testing.T) {
	out, in := testDirectionPair(t, "none", "none")
	payload := []byte("SSH_MSG_KEXINIT payload would go here")

	var buf bytes.Buffer
	if err := writePacket(&buf, out, payload); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	got, err := readPacket(&buf, in)
	if err != nil {
		t.Fatalf("readPacket: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("roundtrip mismatch: got %q want %q", got, payload)
	}
}

func TestPacketRoundTripAES128CTRHMACSHA1(t *testing.T) {
	out, in := testDirectionPair(t, "aes128-ctr", "hmac-sha1")

	var buf bytes.Buffer
	messages := [][]byte{
		[]byte("first"),
		[]byte("a slightly longer second message to cross a block boundary or two"),
		{},
		[]byte("third"),
	}
	for _, m := range messages {
		if err := writePacket(&buf, out, m); err != nil {
			t.Fatalf("writePacket(%q): %v", m, err)
		}
	}
	for _, want := range messages {
		got, err := readPacket(&buf, in)
		if err != nil {
			t.Fatalf("readPacket: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("roundtrip mismatch: got %q want %q", got, want)
		}
	}
	if out.seq != uint32(len(messages)) {
		t.Errorf("out.seq = %d, want %d", out.seq, len(messages))
	}
	if in.seq != uint32(len(messages)) {
		t.Errorf("in.seq = %d, want %d", in.seq, len(messages))
	}
}

func TestPacketRejectsTamperedMAC(t *testing.T) {
	out, in := testDirectionPair(t, "aes128-ctr", "hmac-sha2-256")

	var buf bytes.Buffer
	if err := writePacket(&buf, out, []byte("hello")); err != nil {
		t.Fatalf("writePacket: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	if _, err := readPacket(bytes.NewReader(corrupted), in); err == nil {
		t.Fatalf("expected MAC verification failure")
	} else if _, ok := err.(*MacError); !ok {
		t.Fatalf("expected *MacError, got %T: %v", err, err)
	}
}

func TestPacketRejectsShortPaddingLength(t *testing.T) {
	_, in := testDirectionPair(t, "none", "none")
	raw := buildRawPacket(2, []byte("hello")) // padding_length 2 < the required minimum of 4
	if _, err := readPacket(bytes.NewReader(raw), in); err == nil {
		t.Fatalf("expected rejection of padding_length < 4")
	} else if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func TestPacketRejectsPacketLengthBelowMinimum(t *testing.T) {
	_, in := testDirectionPair(t, "none", "none")
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], 4) // packet_length must be >= 5
	if _, err := readPacket(bytes.NewReader(buf), in); err == nil {
		t.Fatalf("expected rejection of packet_length < 5")
	} else if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	}
}

func TestPacketRejectsOversizePreAuthPacketLength(t *testing.T) {
	_, in := testDirectionPair(t, "none", "none")
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], maxPacketLenPreAuth+1)
	if _, err := readPacket(bytes.NewReader(buf), in); err == nil {
		t.Fatalf("expected rejection of packet_length over the pre-auth bound")
	} else if pe, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError, got %T: %v", err, err)
	} else if pe.Message != "insane packet_length" {
		t.Fatalf("expected an insane-packet_length rejection, got %q", pe.Message)
	}
}

func TestPacketPostAuthBoundAllowsLargerPacketLength(t *testing.T) {
	_, in := testDirectionPair(t, "none", "none")
	in.maxPacketLen = maxPacketLenPostAuth

	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], maxPacketLenPreAuth+1024)
	_, err := readPacket(bytes.NewReader(buf), in)
	if err == nil {
		t.Fatalf("expected an error, since the buffer is too short for the declared length")
	}
	if pe, ok := err.(*ProtocolError); ok && pe.Message == "insane packet_length" {
		t.Fatalf("packet_length beyond the pre-auth bound but within the post-auth bound was wrongly rejected as insane")
	}
}

func TestPacketRejectsWrongSequenceNumber(t *testing.T) {
	out, _ := testDirectionPair(t, "aes128-ctr", "hmac-sha1")

	var buf bytes.Buffer
	if err := writePacket(&buf, out, []byte("one")); err != nil {
		t.Fatalf("writePacket: %v", err)
	}

	// A fresh reader over the same keys but with seq primed to 1 (as if
	// it had already consumed one packet) must reject this, the actual
	// first packet, since its MAC was computed over sequence number 0.
	_, desynced := testDirectionPair(t, "aes128-ctr", "hmac-sha1")
	desynced.seq = 1

	if _, err := readPacket(&buf, desynced); err == nil {
		t.Fatalf("expected MAC mismatch from sequence-number desync")
	} else if _, ok := err.(*MacError); !ok {
		t.Fatalf("expected *MacError, got %T: %v", err, err)
	}
}
