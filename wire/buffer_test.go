package wire

import (
	"math/big"
	"reflect"
	"testing"
)

func TestRoundTripScalarTypes(t *testing.T) {
	b := New(64)
	b.WriteByte(0x7f)
	b.WriteUint32(0xdeadbeef)
	b.WriteBool(true)
	b.WriteBool(false)
	b.WriteStringVal("hello, ssh")
	b.WriteNameList([]string{"aes128-ctr", "aes256-ctr", "none"})

	got, err := b.ReadByte()
	if err != nil || got != 0x7f {
		t.Fatalf("ReadByte = %v, %v", got, err)
	}
	u, err := b.ReadUint32()
	if err != nil || u != 0xdeadbeef {
		t.Fatalf("ReadUint32 = %x, %v", u, err)
	}
	t1, err := b.ReadBool()
	if err != nil || !t1 {
		t.Fatalf("ReadBool#1 = %v, %v", t1, err)
	}
	t2, err := b.ReadBool()
	if err != nil || t2 {
		t.Fatalf("ReadBool#2 = %v, %v", t2, err)
	}
	s, err := b.ReadStringVal()
	if err != nil || s != "hello, ssh" {
		t.Fatalf("ReadStringVal = %q, %v", s, err)
	}
	nl, err := b.ReadNameList()
	if err != nil {
		t.Fatalf("ReadNameList: %v", err)
	}
	want := []string{"aes128-ctr", "aes256-ctr", "none"}
	if !reflect.DeepEqual(nl, want) {
		t.Fatalf("ReadNameList = %v, want %v", nl, want)
	}
}

func TestEmptyNameList(t *testing.T) {
	b := New(16)
	b.WriteNameList(nil)
	nl, err := b.ReadNameList()
	if err != nil {
		t.Fatal(err)
	}
	if len(nl) != 0 {
		t.Fatalf("expected empty name-list, got %v", nl)
	}
}

func TestMPIntRoundTrip(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"127",
		"128",         // needs a 0x00 pad: 128 = 0x80 has its MSB set
		"255",
		"256",
		"9223372036854775807",         // max int64
		"340282366920938463463374607431768211455", // 2^128-1
	}
	for _, c := range cases {
		v, ok := new(big.Int).SetString(c, 10)
		if !ok {
			t.Fatalf("bad test case %q", c)
		}
		b := New(64)
		b.WriteMPInt(v)
		got, err := b.ReadMPInt()
		if err != nil {
			t.Fatalf("ReadMPInt(%s): %v", c, err)
		}
		if got.Cmp(v) != 0 {
			t.Fatalf("round trip mismatch: want %s got %s", v, got)
		}
	}
}

func TestMPIntHighBitGetsZeroPad(t *testing.T) {
	// 0x80 has its MSB set, so the wire encoding must prepend 0x00.
	v := big.NewInt(0x80)
	enc := MarshalMPInt(v)
	if len(enc) != 2 || enc[0] != 0x00 || enc[1] != 0x80 {
		t.Fatalf("MarshalMPInt(0x80) = % x, want [00 80]", enc)
	}
}

func TestMPIntZeroEncodesAsEmptyString(t *testing.T) {
	enc := MarshalMPInt(big.NewInt(0))
	if len(enc) != 0 {
		t.Fatalf("MarshalMPInt(0) = % x, want empty", enc)
	}
}

func TestTruncatedReadsFail(t *testing.T) {
	b := New(4)
	b.WriteByte(1)
	if _, err := b.ReadUint32(); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestClearZeroesBackingArray(t *testing.T) {
	b := New(16)
	b.WriteStringVal("secret-key-material")
	b.Clear()
	for i, v := range b.data {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %x", i, v)
		}
	}
	if b.Len() != 0 || b.ReadCursor() != 0 || b.WriteCursor() != 0 {
		t.Fatalf("cursors not reset after Clear")
	}
}
