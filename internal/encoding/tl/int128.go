package tl

import "encoding/hex"

// Int128 and Int256 are fixed-size big-endian-displayed, little-endian-wire
// integers used for nonces throughout the handshake.
type Int128 [16]byte

type Int256 [32]byte

func (i Int128) String() string { return hex.EncodeToString(i[:]) }
func (i Int256) String() string { return hex.EncodeToString(i[:]) }

func (e *Encoder) PutInt128(v Int128) { e.buf = append(e.buf, v[:]...) }
func (e *Encoder) PutInt256(v Int256) { e.buf = append(e.buf, v[:]...) }

func (d *Decoder) PopInt128() (Int128, error) {
	var v Int128
	b, err := d.take(int128Len)
	if err != nil {
		return v, err
	}
	copy(v[:], b)
	return v, nil
}

func (d *Decoder) PopInt256() (Int256, error) {
	var v Int256
	b, err := d.take(int256Len)
	if err != nil {
		return v, err
	}
	copy(v[:], b)
	return v, nil
}
