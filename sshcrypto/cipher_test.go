package sshcrypto

import (
	"bytes"
	"testing"
)

func TestCBCCipherRoundTrip(t *testing.T) {
	for _, name := range []string{"aes128-cbc", "aes256-cbc", "3des-cbc", "blowfish-cbc"} {
		spec, err := CipherByName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		key := make([]byte, spec.KeySize)
		iv := make([]byte, spec.IVSize)
		for i := range key {
			key[i] = byte(i + 1)
		}
		for i := range iv {
			iv[i] = byte(i + 2)
		}
		plain := bytes.Repeat([]byte("A block of data!"), 2)[:spec.BlockSize*2]

		enc, err := spec.New(Encrypt, key, iv)
		if err != nil {
			t.Fatalf("%s: new encrypt: %v", name, err)
		}
		ct := make([]byte, len(plain))
		enc.Update(plain, 0, len(plain), ct, 0)

		dec, err := spec.New(Decrypt, key, iv)
		if err != nil {
			t.Fatalf("%s: new decrypt: %v", name, err)
		}
		pt := make([]byte, len(ct))
		dec.Update(ct, 0, len(ct), pt, 0)

		if !bytes.Equal(pt, plain) {
			t.Fatalf("%s: round trip mismatch: got %x want %x", name, pt, plain)
		}
	}
}

func TestCTRCipherRoundTrip(t *testing.T) {
	for _, name := range []string{"aes128-ctr", "aes256-ctr"} {
		spec, _ := CipherByName(name)
		key := make([]byte, spec.KeySize)
		iv := make([]byte, spec.IVSize)
		plain := []byte("short message, not block aligned")

		enc, _ := spec.New(Encrypt, key, iv)
		ct := make([]byte, len(plain))
		enc.Update(plain, 0, len(plain), ct, 0)

		dec, _ := spec.New(Decrypt, key, iv)
		pt := make([]byte, len(ct))
		dec.Update(ct, 0, len(ct), pt, 0)

		if !bytes.Equal(pt, plain) {
			t.Fatalf("%s: round trip mismatch", name)
		}
	}
}

func TestStreamCiphersRoundTrip(t *testing.T) {
	for _, name := range []string{"arcfour", "arcfour128", "arcfour256", "cryptmt1@blitter.com", "wanderer@blitter.com"} {
		spec, err := CipherByName(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		key := make([]byte, spec.KeySize)
		for i := range key {
			key[i] = byte(i * 7)
		}
		plain := []byte("stream cipher round trip test data")

		enc, err := spec.New(Encrypt, key, nil)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		ct := make([]byte, len(plain))
		enc.Update(plain, 0, len(plain), ct, 0)

		dec, _ := spec.New(Decrypt, key, nil)
		pt := make([]byte, len(ct))
		dec.Update(ct, 0, len(ct), pt, 0)

		if !bytes.Equal(pt, plain) {
			t.Fatalf("%s: round trip mismatch: got %q want %q", name, pt, plain)
		}
	}
}

func TestUnknownCipherRejected(t *testing.T) {
	if _, err := CipherByName("rot13-cbc"); err != ErrUnknownCipher {
		t.Fatalf("expected ErrUnknownCipher, got %v", err)
	}
}

func TestMACTruncatedVariantsEmit12Bytes(t *testing.T) {
	spec, err := MACByName("hmac-sha1-96")
	if err != nil {
		t.Fatal(err)
	}
	m, err := spec.New(make([]byte, spec.KeySize))
	if err != nil {
		t.Fatal(err)
	}
	m.WriteSeq(42)
	m.Write([]byte("packet bytes"))
	sum := m.Sum()
	if len(sum) != 12 {
		t.Fatalf("hmac-sha1-96 emitted %d bytes, want 12", len(sum))
	}
}

func TestMACDifferentSeqDifferentSum(t *testing.T) {
	spec, _ := MACByName("hmac-sha2-256")
	key := make([]byte, spec.KeySize)
	m1, _ := spec.New(key)
	m1.WriteSeq(1)
	m1.Write([]byte("data"))
	s1 := m1.Sum()

	m2, _ := spec.New(key)
	m2.WriteSeq(2)
	m2.Write([]byte("data"))
	s2 := m2.Sum()

	if bytes.Equal(s1, s2) {
		t.Fatal("expected different MAC sums for different sequence numbers")
	}
}
