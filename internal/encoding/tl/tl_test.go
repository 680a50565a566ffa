package tl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testVal struct {
	Nonce Int128
	Flags uint32
	Note  string // present iff bit 0 of Flags is set
	Count int32
}

const testValCRC uint32 = 0x12345678

func (v *testVal) CRC() uint32 { return testValCRC }

func (v *testVal) Encode() []byte {
	e := NewEncoder()
	e.PutObject(v)
	e.PutInt128(v.Nonce)
	e.PutUint32(v.Flags)
	if HasFlag(v.Flags, 0) {
		e.PutString(v.Note)
	}
	e.PutInt32(v.Count)
	return e.Bytes()
}

func (v *testVal) Decode(d *Decoder) error {
	nonce, err := d.PopInt128()
	if err != nil {
		return err
	}
	flags, err := d.PopUint32()
	if err != nil {
		return err
	}
	v.Nonce, v.Flags = nonce, flags
	if HasFlag(flags, 0) {
		v.Note, err = d.PopString()
		if err != nil {
			return err
		}
	}
	v.Count, err = d.PopInt32()
	return err
}

func init() {
	Register(testValCRC, func() Decodable { return &testVal{} })
}

func TestRoundTripWithFlagBit(t *testing.T) {
	v := &testVal{Nonce: Int128{1, 2, 3}, Flags: PutFlag(0, 0, true), Note: "hello world, padded", Count: -7}
	encoded := v.Encode()

	obj, err := DecodeUnknownObjectBytes(encoded)
	require.NoError(t, err)

	got, ok := obj.(*testVal)
	require.True(t, ok)
	require.Equal(t, v, got)
}

func TestRoundTripWithoutFlagBit(t *testing.T) {
	v := &testVal{Nonce: Int128{9}, Flags: 0, Count: 42}
	obj, err := DecodeUnknownObjectBytes(v.Encode())
	require.NoError(t, err)
	require.Equal(t, v, obj)
}

func TestUnknownTagIsTypedError(t *testing.T) {
	_, err := DecodeUnknownObjectBytes([]byte{0xde, 0xad, 0xbe, 0xef})
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, uint32(0xefbeadde), decodeErr.Tag)
}

func TestBytesPaddedToFourByteBoundary(t *testing.T) {
	e := NewEncoder()
	e.PutBytes([]byte("abc")) // 1-byte len + 3 bytes = 4, already aligned
	require.Equal(t, 4, len(e.Bytes()))

	e2 := NewEncoder()
	e2.PutBytes([]byte("abcd")) // 1-byte len + 4 bytes = 5, pad to 8
	require.Equal(t, 8, len(e2.Bytes()))
}

func TestLongStringUsesSentinelLength(t *testing.T) {
	big := make([]byte, 300)
	e := NewEncoder()
	e.PutBytes(big)

	d := NewDecoder(e.Bytes())
	out, err := d.PopBytes()
	require.NoError(t, err)
	require.Equal(t, big, out)
}
