// Package wire implements the SSH-2 binary wire types (RFC 4251 §5) on top
// of a cursor-based mutable byte buffer.
//
// golang port by the sshx authors, in the style of blitter.com/go/xs's
// xsnet packet handling.
package wire

import (
	"errors"
	"math/big"
)

// Errors returned while decoding malformed or truncated wire data.
var (
	// ErrTruncated is returned when a read would advance the cursor past
	// the write cursor.
	ErrTruncated = errors.New("wire: truncated packet")
	// ErrInvalidFormat is returned for negative/oversized lengths or
	// malformed mpint encodings.
	ErrInvalidFormat = errors.New("wire: invalid format")
)

// maxStringLen bounds string/mpint length prefixes read from the wire so
// that a corrupt or hostile length field cannot trigger a multi-gigabyte
// allocation.
const maxStringLen = 1 << 20

// Buffer is a growable byte array with independent read and write cursors.
// All multi-byte integers are big-endian, per RFC 4251 §5.
//
// Invariant: 0 <= readCursor <= writeCursor <= len(data).
type Buffer struct {
	data        []byte
	readCursor  int
	writeCursor int
}

// New returns an empty Buffer with the given initial capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// NewFromBytes returns a Buffer positioned for reading over a copy of b.
func NewFromBytes(b []byte) *Buffer {
	buf := &Buffer{data: make([]byte, len(b))}
	copy(buf.data, b)
	buf.writeCursor = len(b)
	return buf
}

// Reset repositions both cursors to zero without clearing memory.
func (b *Buffer) Reset() {
	b.readCursor = 0
	b.writeCursor = 0
}

// Clear overwrites the entire backing array with zero bytes before
// resetting the cursors, so that lingering secrets are not left in the
// heap. Callers holding key material or shared secrets in a Buffer must
// call this instead of Reset when finished.
func (b *Buffer) Clear() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.Reset()
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int { return b.writeCursor - b.readCursor }

// Cap returns the capacity of the backing array.
func (b *Buffer) Cap() int { return len(b.data) }

// WriteCursor returns the current write offset.
func (b *Buffer) WriteCursor() int { return b.writeCursor }

// ReadCursor returns the current read offset.
func (b *Buffer) ReadCursor() int { return b.readCursor }

// SetWriteCursor repositions the write cursor, growing the backing array
// if necessary. Used by Packet to rewind to the reserved header region.
func (b *Buffer) SetWriteCursor(pos int) {
	b.grow(pos)
	b.writeCursor = pos
}

// SetReadCursor repositions the read cursor directly. Used when a packet's
// padding_length is known only after the payload has already been parsed.
func (b *Buffer) SetReadCursor(pos int) {
	b.readCursor = pos
}

// Bytes returns the unread portion of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[b.readCursor:b.writeCursor]
}

// All returns the full written region of the buffer, ignoring the read
// cursor. Used when framing needs to address bytes already consumed (e.g.
// MAC covers the whole cleartext packet).
func (b *Buffer) All() []byte {
	return b.data[:b.writeCursor]
}

func (b *Buffer) grow(n int) {
	if n <= len(b.data) {
		return
	}
	newCap := len(b.data)*2 + 64
	if newCap < n {
		newCap = n
	}
	nd := make([]byte, newCap)
	copy(nd, b.data)
	b.data = nd
}

func (b *Buffer) ensure(extra int) {
	b.grow(b.writeCursor + extra)
}

// --- raw span access ---

// WriteRaw appends p verbatim at the write cursor.
func (b *Buffer) WriteRaw(p []byte) {
	b.ensure(len(p))
	copy(b.data[b.writeCursor:], p)
	b.writeCursor += len(p)
	if b.writeCursor > len(b.data) {
		b.writeCursor = len(b.data)
	}
}

// ReadRaw consumes and returns the next n bytes.
func (b *Buffer) ReadRaw(n int) ([]byte, error) {
	if b.readCursor+n > b.writeCursor {
		return nil, ErrTruncated
	}
	out := make([]byte, n)
	copy(out, b.data[b.readCursor:b.readCursor+n])
	b.readCursor += n
	return out, nil
}

// PeekRaw returns the next n bytes without consuming them.
func (b *Buffer) PeekRaw(n int) ([]byte, error) {
	if b.readCursor+n > b.writeCursor {
		return nil, ErrTruncated
	}
	return b.data[b.readCursor : b.readCursor+n], nil
}

// Skip advances the read cursor by n bytes without returning them.
func (b *Buffer) Skip(n int) error {
	if b.readCursor+n > b.writeCursor {
		return ErrTruncated
	}
	b.readCursor += n
	return nil
}

// --- byte ---

// WriteByte appends a single octet. Implements io.ByteWriter.
func (b *Buffer) WriteByte(v byte) error {
	b.ensure(1)
	b.data[b.writeCursor] = v
	b.writeCursor++
	return nil
}

// ReadByte consumes a single octet. Implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	if b.readCursor+1 > b.writeCursor {
		return 0, ErrTruncated
	}
	v := b.data[b.readCursor]
	b.readCursor++
	return v, nil
}

// --- boolean ---

// WriteBool appends a boolean octet (0 or 1).
func (b *Buffer) WriteBool(v bool) {
	if v {
		b.WriteByte(1)
	} else {
		b.WriteByte(0)
	}
}

// ReadBool consumes a boolean octet; any nonzero value is true.
func (b *Buffer) ReadBool() (bool, error) {
	v, err := b.ReadByte()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// --- uint32 ---

// WriteUint32 appends a 4-octet big-endian unsigned integer.
func (b *Buffer) WriteUint32(v uint32) {
	b.ensure(4)
	b.data[b.writeCursor+0] = byte(v >> 24)
	b.data[b.writeCursor+1] = byte(v >> 16)
	b.data[b.writeCursor+2] = byte(v >> 8)
	b.data[b.writeCursor+3] = byte(v)
	b.writeCursor += 4
}

// ReadUint32 consumes a 4-octet big-endian unsigned integer.
func (b *Buffer) ReadUint32() (uint32, error) {
	raw, err := b.ReadRaw(4)
	if err != nil {
		return 0, err
	}
	return uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3]), nil
}

// --- string (length-prefixed byte blob) ---

// WriteString appends a uint32 length followed by the bytes of s.
func (b *Buffer) WriteString(s []byte) {
	b.WriteUint32(uint32(len(s)))
	b.WriteRaw(s)
}

// WriteStringVal is a convenience wrapper over WriteString for Go strings.
func (b *Buffer) WriteStringVal(s string) {
	b.WriteString([]byte(s))
}

// ReadString consumes a uint32 length L followed by L octets.
func (b *Buffer) ReadString() ([]byte, error) {
	l, err := b.ReadUint32()
	if err != nil {
		return nil, err
	}
	if l > maxStringLen {
		return nil, ErrInvalidFormat
	}
	return b.ReadRaw(int(l))
}

// ReadStringVal is a convenience wrapper over ReadString returning a Go
// string.
func (b *Buffer) ReadStringVal() (string, error) {
	raw, err := b.ReadString()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// --- name-list: a string whose content is comma-separated ASCII names ---

// WriteNameList appends names joined by ',' as an SSH string.
func (b *Buffer) WriteNameList(names []string) {
	joined := joinNames(names)
	b.WriteStringVal(joined)
}

// ReadNameList consumes a name-list and splits it on ','. An empty
// underlying string yields an empty (non-nil) slice.
func (b *Buffer) ReadNameList() ([]string, error) {
	s, err := b.ReadStringVal()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return []string{}, nil
	}
	return splitNames(s), nil
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

func splitNames(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// --- mpint: RFC 4251 §5 two's-complement, length-prefixed big integer ---

// WriteMPInt appends v as an SSH mpint: zero is encoded with L=0, a
// positive value whose top bit would otherwise read as negative is
// prefixed with a 0x00 octet.
func (b *Buffer) WriteMPInt(v *big.Int) {
	b.WriteString(MarshalMPInt(v))
}

// MarshalMPInt encodes v per RFC 4251 §5 without the surrounding length
// prefix handling performed by WriteMPInt (i.e. this returns exactly the
// octets that follow the uint32 length).
func MarshalMPInt(v *big.Int) []byte {
	if v.Sign() == 0 {
		return nil
	}
	if v.Sign() < 0 {
		// Not used by this client (DH values are always positive), but
		// included for completeness / defensive decoding symmetry.
		return twosComplement(v)
	}
	b := v.Bytes()
	if len(b) > 0 && b[0]&0x80 != 0 {
		out := make([]byte, len(b)+1)
		copy(out[1:], b)
		return out
	}
	return b
}

func twosComplement(v *big.Int) []byte {
	// Two's complement of a negative big.Int: invert magnitude bytes and
	// add one, left-padded so the sign bit is set.
	mag := new(big.Int).Abs(v)
	nbytes := (mag.BitLen() + 8) / 8
	if nbytes == 0 {
		nbytes = 1
	}
	raw := mag.Bytes()
	buf := make([]byte, nbytes)
	copy(buf[nbytes-len(raw):], raw)
	for i := range buf {
		buf[i] = ^buf[i]
	}
	// add 1
	for i := nbytes - 1; i >= 0; i-- {
		buf[i]++
		if buf[i] != 0 {
			break
		}
	}
	return buf
}

// ReadMPInt consumes an SSH mpint and returns it as a big.Int. Malformed
// negative encodings are rejected with ErrInvalidFormat since this client
// never expects to decode a negative mpint (K, e, f, p, g are always
// positive).
func (b *Buffer) ReadMPInt() (*big.Int, error) {
	raw, err := b.ReadString()
	if err != nil {
		return nil, err
	}
	return UnmarshalMPInt(raw)
}

// UnmarshalMPInt decodes the octets following an mpint's length prefix.
func UnmarshalMPInt(raw []byte) (*big.Int, error) {
	if len(raw) == 0 {
		return big.NewInt(0), nil
	}
	if raw[0]&0x80 != 0 {
		return nil, ErrInvalidFormat
	}
	return new(big.Int).SetBytes(raw), nil
}
