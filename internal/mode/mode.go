// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package mode implements the two MTProto framing modes that sit between the
// transport (raw bytes on a socket) and the session layer (whole packets).
// The core protocol does not care which framing carries it; a transport is
// constructed with a Mode, calls Frame on write and strips the framing
// itself on read.
package mode

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Variant selects abridged or intermediate framing.
type Variant int

const (
	Abridged Variant = iota
	Intermediate
)

// abridgedHandshake / intermediateHandshake is sent once at connection start to tell the server
// which framing the client intends to use.
var (
	abridgedHandshake     = []byte{0xef}
	intermediateHandshake = []byte{0xee, 0xee, 0xee, 0xee}
)

// Handshake returns the framing-selection preamble the client must send as
// the very first bytes on a freshly opened socket.
func Handshake(v Variant) []byte {
	switch v {
	case Abridged:
		return abridgedHandshake
	case Intermediate:
		return intermediateHandshake
	default:
		panic("mode: unknown variant")
	}
}

// Frame wraps a payload according to v, ready to be written to the socket.
func Frame(v Variant, payload []byte) ([]byte, error) {
	switch v {
	case Abridged:
		return frameAbridged(payload)
	case Intermediate:
		return frameIntermediate(payload), nil
	default:
		return nil, errors.New("mode: unknown variant")
	}
}

func frameAbridged(payload []byte) ([]byte, error) {
	if len(payload)%4 != 0 {
		return nil, errors.New("mode: abridged payload must be a multiple of 4 bytes")
	}
	words := len(payload) / 4
	out := make([]byte, 0, len(payload)+4)
	if words < 0x7f {
		out = append(out, byte(words))
	} else {
		out = append(out, 0x7f, byte(words), byte(words>>8), byte(words>>16))
	}
	out = append(out, payload...)
	return out, nil
}

func frameIntermediate(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// FrameReader pulls whole, unframed packets off an underlying io.Reader-shaped
// source one byte-read-function at a time; implementations live in the
// transport package since they need the actual net.Conn.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}
