// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package messages implements the two wire envelopes that sit directly on
// top of a transport frame: the plaintext envelope used only during the
// auth-key handshake, and the encrypted envelope used for everything after
// a session has a key. See SPEC_FULL.md §4.5.
package messages

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/crypto"
)

// Common is satisfied by both envelope kinds so session code can log and
// route without a type switch on every call site.
type Common interface {
	GetMsgID() int64
	GetSeqNo() int32
	GetMsg() []byte
}

const (
	plainHeaderLen = 8 + 8 + 4 // auth_key_id(0) + msg_id + length
	encHeaderLen   = 8 + 16    // auth_key_id + msg_key
	innerFixedLen  = 8 + 8 + 8 + 4 + 4
)

// Plain is the unencrypted envelope: auth_key_id is always zero, marking it
// as handshake traffic, followed by msg_id, a length prefix and the body.
type Plain struct {
	MsgID int64
	Body  []byte
}

func (p *Plain) GetMsgID() int64 { return p.MsgID }
func (p *Plain) GetSeqNo() int32 { return 0 }
func (p *Plain) GetMsg() []byte  { return p.Body }

func (p *Plain) Encode() []byte {
	out := make([]byte, plainHeaderLen+len(p.Body))
	binary.LittleEndian.PutUint64(out[0:8], 0)
	binary.LittleEndian.PutUint64(out[8:16], uint64(p.MsgID))
	binary.LittleEndian.PutUint32(out[16:20], uint32(len(p.Body)))
	copy(out[20:], p.Body)
	return out
}

func DecodePlain(data []byte) (*Plain, error) {
	if len(data) < plainHeaderLen {
		return nil, errors.New("messages: plain envelope shorter than header")
	}
	authKeyID := binary.LittleEndian.Uint64(data[0:8])
	if authKeyID != 0 {
		return nil, errors.New("messages: plain envelope must carry auth_key_id 0")
	}
	msgID := int64(binary.LittleEndian.Uint64(data[8:16]))
	length := binary.LittleEndian.Uint32(data[16:20])
	if int(length) != len(data)-plainHeaderLen {
		return nil, errors.Errorf("messages: plain envelope length field %d does not match body size %d", length, len(data)-plainHeaderLen)
	}
	body := make([]byte, length)
	copy(body, data[20:])
	return &Plain{MsgID: msgID, Body: body}, nil
}

// Encrypted is the post-handshake envelope. SeqNo is even for content that
// doesn't require acknowledgement and odd otherwise, per SPEC_FULL.md §4.5;
// this package stores whatever the caller assigned and doesn't police it.
type Encrypted struct {
	AuthKeyID int64
	Salt      int64
	SessionID int64
	MsgID     int64
	SeqNo     int32
	Body      []byte
}

func (e *Encrypted) GetMsgID() int64 { return e.MsgID }
func (e *Encrypted) GetSeqNo() int32 { return e.SeqNo }
func (e *Encrypted) GetMsg() []byte  { return e.Body }

// AuthKeyID returns the 64-bit identifier the server uses to look up which
// auth_key a given encrypted message was sealed with: the low 8 bytes of
// SHA1(authKey).
func AuthKeyID(authKey []byte) int64 {
	h := crypto.SHA1(authKey)
	return int64(binary.LittleEndian.Uint64(h[12:20]))
}

// Encode seals e into the wire envelope: builds the padded inner plaintext,
// derives msg_key and the AES-IGE key/IV from authKey, and encrypts.
// fromClient selects the KDF direction; it must be true when this process
// is the client sealing an outgoing message and false when a test harness
// is sealing a simulated server reply.
func (e *Encrypted) Encode(authKey []byte, fromClient bool) ([]byte, error) {
	inner := make([]byte, innerFixedLen+len(e.Body))
	binary.LittleEndian.PutUint64(inner[0:8], uint64(e.Salt))
	binary.LittleEndian.PutUint64(inner[8:16], uint64(e.SessionID))
	binary.LittleEndian.PutUint64(inner[16:24], uint64(e.MsgID))
	binary.LittleEndian.PutUint32(inner[24:28], uint32(e.SeqNo))
	binary.LittleEndian.PutUint32(inner[28:32], uint32(len(e.Body)))
	copy(inner[32:], e.Body)

	padded := padTo16(inner)

	msgKey := computeMsgKey(padded)
	aesKey, aesIV := crypto.DeriveMessageKeys(authKey, msgKey, fromClient)
	ciphertext, err := crypto.IGEEncrypt(aesKey, aesIV, padded)
	if err != nil {
		return nil, errors.Wrap(err, "encrypting message envelope")
	}

	out := make([]byte, encHeaderLen+len(ciphertext))
	binary.LittleEndian.PutUint64(out[0:8], uint64(e.AuthKeyID))
	copy(out[8:24], msgKey)
	copy(out[24:], ciphertext)
	return out, nil
}

// DecodeEncrypted opens a received envelope. fromClient must be true when
// the envelope being opened was sealed by the client (i.e. this call is
// running on the simulated-server side of a test) and false for the normal
// client-receiving-from-server case.
func DecodeEncrypted(data, authKey []byte, fromClient bool) (*Encrypted, error) {
	if len(data) < encHeaderLen {
		return nil, errors.New("messages: encrypted envelope shorter than header")
	}
	authKeyID := int64(binary.LittleEndian.Uint64(data[0:8]))
	msgKey := data[8:24]
	ciphertext := data[24:]
	if len(ciphertext) == 0 || len(ciphertext)%16 != 0 {
		return nil, errors.New("messages: encrypted payload is not a multiple of the AES block size")
	}

	aesKey, aesIV := crypto.DeriveMessageKeys(authKey, msgKey, fromClient)
	padded, err := crypto.IGEDecrypt(aesKey, aesIV, ciphertext)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting message envelope")
	}

	if got := computeMsgKey(padded); !constantTimeEqual(got, msgKey) {
		return nil, errors.New("messages: msg_key mismatch, envelope rejected")
	}

	if len(padded) < innerFixedLen {
		return nil, errors.New("messages: decrypted envelope shorter than inner header")
	}
	salt := int64(binary.LittleEndian.Uint64(padded[0:8]))
	sessionID := int64(binary.LittleEndian.Uint64(padded[8:16]))
	msgID := int64(binary.LittleEndian.Uint64(padded[16:24]))
	seqNo := int32(binary.LittleEndian.Uint32(padded[24:28]))
	length := binary.LittleEndian.Uint32(padded[28:32])
	if int(length) > len(padded)-innerFixedLen {
		return nil, errors.Errorf("messages: inner length field %d exceeds decrypted buffer", length)
	}
	body := make([]byte, length)
	copy(body, padded[32:32+int(length)])

	return &Encrypted{
		AuthKeyID: authKeyID,
		Salt:      salt,
		SessionID: sessionID,
		MsgID:     msgID,
		SeqNo:     seqNo,
		Body:      body,
	}, nil
}

// computeMsgKey is the v1 msg_key: bytes [4:20) of SHA1 over the padded
// inner plaintext.
func computeMsgKey(padded []byte) []byte {
	h := crypto.SHA1(padded)
	return h[4:20]
}

// padTo16 appends 0-15 zero bytes so the total length is a multiple of the
// AES block size, as MTProto v1 requires (v2 uses a random 12-1024 byte
// padding; this client only speaks v1, see SPEC_FULL.md §1 Non-goals).
func padTo16(b []byte) []byte {
	rem := len(b) % 16
	if rem == 0 {
		return b
	}
	return append(b, make([]byte, 16-rem)...)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
