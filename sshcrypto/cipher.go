// Package sshcrypto wraps the stream/block ciphers, MACs, hashes, and
// random source the SSH-2 transport needs behind narrow init/update/
// finalize contracts, selected by the SSH algorithm name negotiated
// during KEXINIT.
//
// The registry pattern (a name -> constructor map, populated from both
// stdlib primitives and vendor-specific stream ciphers) mirrors
// xsnet.getStream's switch over cipheropts in blitter.com/go/xs, adapted
// from a 2-bit option field to SSH's name-list negotiation.
package sshcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/rc4"
	"errors"

	"golang.org/x/crypto/blowfish"

	"blitter.com/go/cryptmt"
	"blitter.com/go/wanderer"
)

// ErrUnknownCipher is returned by CipherByName for an unrecognised name.
var ErrUnknownCipher = errors.New("sshcrypto: unknown cipher algorithm")

// Direction selects which half of a bidirectional cipher.Stream/BlockMode
// pair CipherSpec.New should construct.
type Direction int

const (
	Encrypt Direction = iota
	Decrypt
)

// Stream is the narrow contract spec.md §4.2 describes for packet
// encryption: callers preserve the returned Stream across packets so CBC
// chaining (the previous packet's last ciphertext block as the next
// packet's IV) happens naturally.
type Stream interface {
	// Update encrypts or decrypts length bytes from src[srcOff:] into
	// dst[dstOff:]. dst and src may be the same slice at the same
	// offset (in-place).
	Update(src []byte, srcOff, length int, dst []byte, dstOff int)
}

// CipherSpec describes one negotiable SSH cipher algorithm.
type CipherSpec struct {
	Name       string
	KeySize    int
	IVSize     int
	BlockSize  int
	IsCBC      bool
	newStream  func(dir Direction, key, iv []byte) (Stream, error)
}

// New constructs a Stream for the given direction, key, and IV. Key and iv
// must be exactly KeySize/IVSize bytes (callers slice derived keymat to
// size before calling).
func (c CipherSpec) New(dir Direction, key, iv []byte) (Stream, error) {
	if len(key) != c.KeySize {
		return nil, errors.New("sshcrypto: bad key size for " + c.Name)
	}
	if len(iv) != c.IVSize {
		return nil, errors.New("sshcrypto: bad iv size for " + c.Name)
	}
	return c.newStream(dir, key, iv)
}

type blockStream struct {
	mode cipher.BlockMode
}

func (s *blockStream) Update(src []byte, srcOff, length int, dst []byte, dstOff int) {
	s.mode.CryptBlocks(dst[dstOff:dstOff+length], src[srcOff:srcOff+length])
}

type xorStream struct {
	s cipher.Stream
}

func (s *xorStream) Update(src []byte, srcOff, length int, dst []byte, dstOff int) {
	s.s.XORKeyStream(dst[dstOff:dstOff+length], src[srcOff:srcOff+length])
}

func cbcStream(block cipher.Block, dir Direction, iv []byte) Stream {
	if dir == Encrypt {
		return &blockStream{mode: cipher.NewCBCEncrypter(block, iv)}
	}
	return &blockStream{mode: cipher.NewCBCDecrypter(block, iv)}
}

func ctrStream(block cipher.Block, iv []byte) Stream {
	return &xorStream{s: cipher.NewCTR(block, iv)}
}

// discardN drops the first n bytes of a cipher.Stream's keystream in
// place, for ARCFOUR's RFC 4345-mandated 1536-byte discard.
func discardN(s cipher.Stream, n int) {
	buf := make([]byte, n)
	s.XORKeyStream(buf, buf)
}

var registry = map[string]CipherSpec{}

func register(spec CipherSpec) { registry[spec.Name] = spec }

func init() {
	register(CipherSpec{Name: "3des-cbc", KeySize: 24, IVSize: des.BlockSize, BlockSize: des.BlockSize, IsCBC: true,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			block, err := des.NewTripleDESCipher(key)
			if err != nil {
				return nil, err
			}
			return cbcStream(block, dir, iv), nil
		}})

	for _, sz := range []struct {
		name string
		bits int
	}{{"aes128-cbc", 16}, {"aes192-cbc", 24}, {"aes256-cbc", 32}} {
		sz := sz
		register(CipherSpec{Name: sz.name, KeySize: sz.bits, IVSize: aes.BlockSize, BlockSize: aes.BlockSize, IsCBC: true,
			newStream: func(dir Direction, key, iv []byte) (Stream, error) {
				block, err := aes.NewCipher(key)
				if err != nil {
					return nil, err
				}
				return cbcStream(block, dir, iv), nil
			}})
	}

	for _, sz := range []struct {
		name string
		bits int
	}{{"aes128-ctr", 16}, {"aes192-ctr", 24}, {"aes256-ctr", 32}} {
		sz := sz
		register(CipherSpec{Name: sz.name, KeySize: sz.bits, IVSize: aes.BlockSize, BlockSize: aes.BlockSize, IsCBC: false,
			newStream: func(dir Direction, key, iv []byte) (Stream, error) {
				block, err := aes.NewCipher(key)
				if err != nil {
					return nil, err
				}
				return ctrStream(block, iv), nil
			}})
	}

	register(CipherSpec{Name: "blowfish-cbc", KeySize: 16, IVSize: blowfish.BlockSize, BlockSize: blowfish.BlockSize, IsCBC: true,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			block, err := blowfish.NewCipher(key)
			if err != nil {
				return nil, err
			}
			return cbcStream(block, dir, iv), nil
		}})

	register(CipherSpec{Name: "arcfour", KeySize: 16, IVSize: 0, BlockSize: 8, IsCBC: false,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			c, err := rc4.NewCipher(key)
			if err != nil {
				return nil, err
			}
			return &xorStream{s: c}, nil
		}})
	register(CipherSpec{Name: "arcfour128", KeySize: 16, IVSize: 0, BlockSize: 8, IsCBC: false,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			c, err := rc4.NewCipher(key)
			if err != nil {
				return nil, err
			}
			discardN(c, 1536)
			return &xorStream{s: c}, nil
		}})
	register(CipherSpec{Name: "arcfour256", KeySize: 32, IVSize: 0, BlockSize: 8, IsCBC: false,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			c, err := rc4.NewCipher(key)
			if err != nil {
				return nil, err
			}
			discardN(c, 1536)
			return &xorStream{s: c}, nil
		}})

	// Vendor extension ciphers (RFC 4251 §4.6.1 "name@domain" form),
	// grounded on xsnet.getStream's CAlgCryptMT1/CAlgWanderer cases.
	register(CipherSpec{Name: "cryptmt1@blitter.com", KeySize: 64, IVSize: 0, BlockSize: 8, IsCBC: false,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			return &xorStream{s: cryptmt.New(key)}, nil
		}})
	register(CipherSpec{Name: "wanderer@blitter.com", KeySize: 64, IVSize: 0, BlockSize: 8, IsCBC: false,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			return &xorStream{s: wanderer.New(nil, nil, 0, key, 2, 2)}, nil
		}})

	register(CipherSpec{Name: "none", KeySize: 0, IVSize: 0, BlockSize: 8, IsCBC: false,
		newStream: func(dir Direction, key, iv []byte) (Stream, error) {
			return noneStream{}, nil
		}})
}

type noneStream struct{}

func (noneStream) Update(src []byte, srcOff, length int, dst []byte, dstOff int) {
	copy(dst[dstOff:dstOff+length], src[srcOff:srcOff+length])
}

// CipherByName looks up a registered CipherSpec. "none" is always present
// in the registry (transport enforces the §4.7 ban on using it pre-auth;
// this package only implements the primitive).
func CipherByName(name string) (CipherSpec, error) {
	spec, ok := registry[name]
	if !ok {
		return CipherSpec{}, ErrUnknownCipher
	}
	return spec, nil
}

// SupportedCiphers returns the default client proposal order: strong AEAD-
// adjacent modes first, legacy algorithms last, "none" never offered
// (a session wishing to test "none" handling must request it explicitly
// via config, since no correctly-configured client proposes it).
func SupportedCiphers() []string {
	return []string{
		"aes256-ctr", "aes192-ctr", "aes128-ctr",
		"aes256-cbc", "aes192-cbc", "aes128-cbc",
		"cryptmt1@blitter.com", "wanderer@blitter.com",
		"blowfish-cbc", "3des-cbc",
		"arcfour256", "arcfour128", "arcfour",
	}
}
