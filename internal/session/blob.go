// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package session persists and restores the state a client needs to resume
// without repeating the auth-key handshake. The wire layout is the
// session-resume blob of SPEC_FULL.md §6 "External interfaces":
//
//	u32  format_version      (current: 3)
//	i32  delta_time
//	TLDcOption dc_info       (id, host, port)
//	[string self_phone]      (version < 3 only)
//	bytes auth_key           (256 bytes)
//	u64  auth_id
//	u64  server_salt         (version >= 2)
//	u32  pts                 (version >= 2)
//	u32  qts                 (version >= 2)
//	u32  date                (version >= 2)
//	vector<u32> chat_ids     (version >= 3)
//
// Version 1 lacks the last five fields (server_salt, pts, qts, date,
// chat_ids); version 2 adds those four but still lacks chat_ids; version <
// 3 carries a legacy self_phone string right after dc_info that version 3
// dropped. Readers accept every version ever emitted; Encode always writes
// the current one.
package session

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// DcInfo is the TLDcOption the blob embeds: which data center the session
// belongs to, named the way SPEC_FULL.md's data model does (`{id, host,
// port}`, id and port as u16).
type DcInfo struct {
	ID   uint16
	Host string
	Port uint16
}

// Session is the in-memory form of everything Encode/Decode round-trip.
// Fields a loaded older blob didn't carry are left zero-valued; SessionID
// (the data model's per-connection session_id) is deliberately absent here
// — it's generated fresh per connection, not persisted.
type Session struct {
	DeltaTime int32
	DC        DcInfo
	SelfPhone string // legacy, present only on blobs written at version < 3

	AuthKey    []byte // 256 bytes once set
	AuthID     uint64
	ServerSalt uint64 // version >= 2

	Pts, Qts, Date uint32 // version >= 2
	ChatIDs        []uint32 // version >= 3
}

const (
	versionV1 uint32 = 1
	versionV2 uint32 = 2
	versionV3 uint32 = 3

	currentVersion = versionV3

	authKeyLen = 256
)

// Encode serializes s at the current blob version (v3).
func Encode(s *Session) ([]byte, error) {
	if len(s.AuthKey) != authKeyLen {
		return nil, errors.Errorf("session: auth key must be %d bytes, got %d", authKeyLen, len(s.AuthKey))
	}

	var buf []byte
	buf = appendUint32(buf, currentVersion)
	buf = appendInt32(buf, s.DeltaTime)
	buf = appendDcInfo(buf, s.DC)
	buf = append(buf, s.AuthKey...)
	buf = appendUint64(buf, s.AuthID)
	buf = appendUint64(buf, s.ServerSalt)
	buf = appendUint32(buf, s.Pts)
	buf = appendUint32(buf, s.Qts)
	buf = appendUint32(buf, s.Date)
	buf = appendUint32Vector(buf, s.ChatIDs)
	return buf, nil
}

// Decode parses a blob written at any version this package has ever
// emitted, defaulting fields a given version doesn't carry.
func Decode(b []byte) (*Session, error) {
	r := &reader{buf: b}

	version, err := r.uint32()
	if err != nil {
		return nil, errors.Wrap(err, "session: reading format_version")
	}

	s := &Session{}
	if s.DeltaTime, err = r.int32(); err != nil {
		return nil, errors.Wrap(err, "session: reading delta_time")
	}
	if s.DC, err = r.dcInfo(); err != nil {
		return nil, errors.Wrap(err, "session: reading dc_info")
	}

	if version < versionV3 {
		if s.SelfPhone, err = r.string(); err != nil {
			return nil, errors.Wrap(err, "session: reading legacy self_phone")
		}
	}

	if s.AuthKey, err = r.bytes(authKeyLen); err != nil {
		return nil, errors.Wrap(err, "session: reading auth_key")
	}
	if s.AuthID, err = r.uint64(); err != nil {
		return nil, errors.Wrap(err, "session: reading auth_id")
	}

	switch version {
	case versionV1:
		return s, nil
	case versionV2, versionV3:
		if s.ServerSalt, err = r.uint64(); err != nil {
			return nil, errors.Wrap(err, "session: reading server_salt")
		}
		if s.Pts, err = r.uint32(); err != nil {
			return nil, errors.Wrap(err, "session: reading pts")
		}
		if s.Qts, err = r.uint32(); err != nil {
			return nil, errors.Wrap(err, "session: reading qts")
		}
		if s.Date, err = r.uint32(); err != nil {
			return nil, errors.Wrap(err, "session: reading date")
		}
		if version == versionV2 {
			return s, nil
		}
		if s.ChatIDs, err = r.uint32Vector(); err != nil {
			return nil, errors.Wrap(err, "session: reading chat_ids")
		}
		return s, nil
	default:
		return nil, errors.Errorf("session: unknown blob version %d", version)
	}
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.buf) {
		return nil, errors.New("session: unexpected end of blob")
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) string() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) dcInfo() (DcInfo, error) {
	id, err := r.uint16()
	if err != nil {
		return DcInfo{}, err
	}
	host, err := r.string()
	if err != nil {
		return DcInfo{}, err
	}
	port, err := r.uint16()
	if err != nil {
		return DcInfo{}, err
	}
	return DcInfo{ID: id, Host: host, Port: port}, nil
}

func (r *reader) uint32Vector() ([]uint32, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if out[i], err = r.uint32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendInt32(buf []byte, v int32) []byte {
	return appendUint32(buf, uint32(v))
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendDcInfo(buf []byte, dc DcInfo) []byte {
	buf = appendUint16(buf, dc.ID)
	buf = appendString(buf, dc.Host)
	buf = appendUint16(buf, dc.Port)
	return buf
}

func appendUint32Vector(buf []byte, v []uint32) []byte {
	buf = appendUint32(buf, uint32(len(v)))
	for _, x := range v {
		buf = appendUint32(buf, x)
	}
	return buf
}
