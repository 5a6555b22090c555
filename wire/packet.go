package wire

// HeaderLen is the number of bytes reserved at the start of a Packet for
// packet_length (4 octets) and padding_length (1 octet), before the
// payload begins. RFC 4253 §6.
const HeaderLen = 5

// MinPaddingLen is the minimum padding_length RFC 4253 §6 requires.
const MinPaddingLen = 4

// Packet is a Buffer positioned so that writes begin at offset HeaderLen,
// reserving room for packet_length and padding_length to be filled in by
// FinalizeForSend once the payload is known.
type Packet struct {
	*Buffer
}

// NewPacket returns a Packet ready to receive a payload starting with the
// SSH message-number byte.
func NewPacket(capacity int) *Packet {
	p := &Packet{Buffer: New(capacity)}
	p.Reset()
	return p
}

// Reset repositions the write cursor to HeaderLen, discarding any
// previously staged payload, ready for the caller to write a fresh
// payload (starting with the message-number byte).
func (p *Packet) Reset() {
	p.Buffer.Reset()
	p.Buffer.SetWriteCursor(HeaderLen)
}

// Payload returns the payload written so far (everything from offset 5
// onward), without the packet_length/padding_length header or padding.
func (p *Packet) Payload() []byte {
	return p.Buffer.All()[HeaderLen:]
}

// blockSize returns max(8, cipherBlockSize) per RFC 4253 §6.
func blockSize(cipherBlockSize int) int {
	if cipherBlockSize > 8 {
		return cipherBlockSize
	}
	return 8
}

// PaddingLen computes the padding_length for a payload of length
// payloadLen framed with the given cipher block size, per RFC 4253 §6:
// (4 + 1 + payloadLen + paddingLen) must be a multiple of block, and
// paddingLen must be at least MinPaddingLen.
func PaddingLen(payloadLen, cipherBlockSize int) int {
	block := blockSize(cipherBlockSize)
	padLen := block - ((HeaderLen + payloadLen) % block)
	if padLen < MinPaddingLen {
		padLen += block
	}
	return padLen
}

// FinalizeForSend computes padding_length for the staged payload, fills
// padding with bytes from randSource, and writes packet_length and
// padding_length into the reserved header. It returns the padding_length
// chosen, or an error from randSource.
func (p *Packet) FinalizeForSend(cipherBlockSize int, randSource func([]byte) error) (paddingLen int, err error) {
	payloadLen := p.Buffer.writeCursor - HeaderLen
	paddingLen = PaddingLen(payloadLen, cipherBlockSize)

	pad := make([]byte, paddingLen)
	if err := randSource(pad); err != nil {
		return 0, err
	}
	p.Buffer.WriteRaw(pad)

	packetLen := uint32(1 + payloadLen + paddingLen)
	data := p.Buffer.data
	data[0] = byte(packetLen >> 24)
	data[1] = byte(packetLen >> 16)
	data[2] = byte(packetLen >> 8)
	data[3] = byte(packetLen)
	data[4] = byte(paddingLen)
	return paddingLen, nil
}
