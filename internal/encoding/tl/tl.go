// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package tl implements the MTProto wire codec: bit-exact serialization of
// tagged-union values over a length-prefixed byte stream.
package tl

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Object is any value that can appear in the TL universe. Each concrete
// constructor carries a stable 32-bit CRC identifying it on the wire.
type Object interface {
	CRC() uint32
}

// Magic numbers from the MTProto schema, see core.telegram.org/schema/mtproto.
const (
	CrcVector uint32 = 0x1cb5c415
	CrcFalse  uint32 = 0xbc799737
	CrcTrue   uint32 = 0x997275b5
	CrcNull   uint32 = 0x56730bcc
)

const (
	wordLen          = 4
	longLen          = wordLen * 2
	int128Len        = wordLen * 4
	int256Len        = wordLen * 8
	stringLenSmallBound = 254
	stringLenSentinel   = 254
)

// DecodeError is returned when the codec encounters a tag it cannot
// associate with a registered constructor.
type DecodeError struct {
	Tag    uint32
	Offset int
}

func (e *DecodeError) Error() string {
	return errors.Errorf("unknown tag 0x%08x at offset %d", e.Tag, e.Offset).Error()
}

// Encoder accumulates bytes for a single TL value tree.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{buf: make([]byte, 0, 256)} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }

func (e *Encoder) PutUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt64(v int64) { e.PutUint64(uint64(v)) }

func (e *Encoder) PutDouble(v float64) { e.PutUint64(math.Float64bits(v)) }

func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint32(CrcTrue)
	} else {
		e.PutUint32(CrcFalse)
	}
}

// PutBytes writes a length-prefixed byte string, padded to a 4-byte boundary.
func (e *Encoder) PutBytes(b []byte) {
	start := len(e.buf)
	if len(b) < stringLenSmallBound {
		e.buf = append(e.buf, byte(len(b)))
	} else {
		e.buf = append(e.buf, stringLenSentinel, byte(len(b)), byte(len(b)>>8), byte(len(b)>>16))
	}
	e.buf = append(e.buf, b...)
	for (len(e.buf)-start)%4 != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *Encoder) PutString(s string) { e.PutBytes([]byte(s)) }

func (e *Encoder) PutRawBytes(b []byte) { e.buf = append(e.buf, b...) }

// PutVectorHeader writes a vector header (CrcVector + count); caller writes elements.
func (e *Encoder) PutVectorHeader(n int) {
	e.PutUint32(CrcVector)
	e.PutUint32(uint32(n))
}

func (e *Encoder) PutObject(o Object) {
	e.PutUint32(o.CRC())
}

// PutFlag sets bit k of flags if present is true, returning the updated mask.
func PutFlag(flags uint32, bit uint, present bool) uint32 {
	if present {
		return flags | (1 << bit)
	}
	return flags
}

// HasFlag reports whether bit k of flags is set.
func HasFlag(flags uint32, bit uint) bool {
	return flags&(1<<bit) != 0
}

// Decoder reads atoms off a byte slice, tracking its offset for DecodeError.
type Decoder struct {
	buf    []byte
	offset int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

func (d *Decoder) Offset() int { return d.offset }

func (d *Decoder) Remaining() int { return len(d.buf) - d.offset }

func (d *Decoder) take(n int) ([]byte, error) {
	if d.offset+n > len(d.buf) {
		return nil, errors.Errorf("tl: unexpected EOF at offset %d, need %d more bytes", d.offset, n)
	}
	b := d.buf[d.offset : d.offset+n]
	d.offset += n
	return b, nil
}

func (d *Decoder) PopUint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) PopInt32() (int32, error) {
	v, err := d.PopUint32()
	return int32(v), err
}

func (d *Decoder) PopUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) PopInt64() (int64, error) {
	v, err := d.PopUint64()
	return int64(v), err
}

func (d *Decoder) PopDouble() (float64, error) {
	v, err := d.PopUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (d *Decoder) PopBool() (bool, error) {
	crc, err := d.PopUint32()
	if err != nil {
		return false, err
	}
	switch crc {
	case CrcTrue:
		return true, nil
	case CrcFalse:
		return false, nil
	default:
		return false, &DecodeError{Tag: crc, Offset: d.offset - 4}
	}
}

func (d *Decoder) PopBytes() ([]byte, error) {
	start := d.offset
	lenByte, err := d.take(1)
	if err != nil {
		return nil, err
	}
	var n int
	if lenByte[0] < stringLenSentinel {
		n = int(lenByte[0])
	} else {
		rest, err := d.take(3)
		if err != nil {
			return nil, err
		}
		n = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
	}
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	for (d.offset-start)%4 != 0 {
		if _, err := d.take(1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Decoder) PopString() (string, error) {
	b, err := d.PopBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) PeekUint32() (uint32, error) {
	if d.offset+4 > len(d.buf) {
		return 0, errors.New("tl: unexpected EOF peeking tag")
	}
	return binary.LittleEndian.Uint32(d.buf[d.offset : d.offset+4]), nil
}

// PopVectorHeader reads the CrcVector tag and the element count.
func (d *Decoder) PopVectorHeader() (int, error) {
	crc, err := d.PopUint32()
	if err != nil {
		return 0, err
	}
	if crc != CrcVector {
		return 0, &DecodeError{Tag: crc, Offset: d.offset - 4}
	}
	n, err := d.PopUint32()
	return int(n), err
}

func (d *Decoder) PopRaw(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
