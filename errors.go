// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

package mtproto

import (
	"strconv"
	"strings"

	"github.com/gomtp/mtproto/internal/mtproto/objects"
)

// ErrResponseCode wraps a server rpc_error. Message is the error string
// with any trailing numeric suffix replaced by "_X" (e.g. "PHONE_MIGRATE_2"
// becomes "PHONE_MIGRATE_X"); AdditionalInfo carries the parsed trailing
// integer for the *_X family of errors, or nil when there isn't one.
type ErrResponseCode struct {
	Code           int
	Message        string
	AdditionalInfo interface{}
}

func (e *ErrResponseCode) Error() string {
	return "rpc error " + strconv.Itoa(e.Code) + ": " + e.Message
}

// RpcErrorToNative converts a decoded RpcError into an *ErrResponseCode,
// splitting trailing "_<digits>" suffixes into AdditionalInfo so callers
// can switch on the stable prefix (see AsMigrateError and
// ClassifyUnauthorized below).
func RpcErrorToNative(e *objects.RpcError) error {
	msg := e.ErrorMessage
	if idx := strings.LastIndexByte(msg, '_'); idx >= 0 {
		if n, err := strconv.Atoi(msg[idx+1:]); err == nil {
			return &ErrResponseCode{
				Code:           int(e.ErrorCode),
				Message:        msg[:idx] + "_X",
				AdditionalInfo: n,
			}
		}
	}
	return &ErrResponseCode{Code: int(e.ErrorCode), Message: msg}
}

// BadMsgError is the typed form of a server bad_msg_notification.
type BadMsgError struct {
	Code int32
}

func (e *BadMsgError) Error() string {
	return "bad_msg_notification, code " + strconv.Itoa(int(e.Code))
}

// BadMsgErrorFromNative wraps a decoded BadMsgNotification, unless it is
// one of the two clock-skew codes the session recovers from silently.
func BadMsgErrorFromNative(n *objects.BadMsgNotification) error {
	if n.IsClockSkew() {
		return nil
	}
	return &BadMsgError{Code: n.ErrorCode}
}

// MigrateSubkind names which resource the server wants moved to another DC.
type MigrateSubkind int

const (
	MigrateUnknown MigrateSubkind = iota
	MigratePhone
	MigrateNetwork
	MigrateUser
	MigrateFile
)

// MigrateError signals that a request landed on the wrong DC; Target is the
// DC id to reconnect to and retry against.
type MigrateError struct {
	Subkind MigrateSubkind
	Target  int
}

func (e *MigrateError) Error() string {
	return "must migrate to dc " + strconv.Itoa(e.Target)
}

// AsMigrateError classifies an *ErrResponseCode produced by RpcErrorToNative
// into a *MigrateError, or returns ok=false if it isn't one of the known
// migrate families.
func AsMigrateError(err error) (*MigrateError, bool) {
	rc, ok := err.(*ErrResponseCode)
	if !ok {
		return nil, false
	}
	target, ok := rc.AdditionalInfo.(int)
	if !ok {
		return nil, false
	}
	switch rc.Message {
	case "PHONE_MIGRATE_X":
		return &MigrateError{Subkind: MigratePhone, Target: target}, true
	case "NETWORK_MIGRATE_X":
		return &MigrateError{Subkind: MigrateNetwork, Target: target}, true
	case "USER_MIGRATE_X":
		return &MigrateError{Subkind: MigrateUser, Target: target}, true
	case "FILE_MIGRATE_X":
		return &MigrateError{Subkind: MigrateFile, Target: target}, true
	default:
		return nil, false
	}
}

// UnauthorizedSubkind narrows session/auth failures so a caller can decide
// between "clear session and start over" and "surface to the user". Covers
// both the AUTH_KEY_* family (caller holds a dead key) and the SESSION_*/
// password family named in SPEC_FULL.md §7.
type UnauthorizedSubkind int

const (
	UnauthorizedUnknown UnauthorizedSubkind = iota
	UnauthorizedKeyInvalid
	UnauthorizedKeyUnregistered
	UnauthorizedKeyEmpty
	UnauthorizedSessionExpired
	UnauthorizedSessionRevoked
	UnauthorizedPasswordNeeded
)

func ClassifyUnauthorized(err error) (UnauthorizedSubkind, bool) {
	rc, ok := err.(*ErrResponseCode)
	if !ok {
		return UnauthorizedUnknown, false
	}
	switch rc.Message {
	case "AUTH_KEY_INVALID":
		return UnauthorizedKeyInvalid, true
	case "AUTH_KEY_UNREGISTERED":
		return UnauthorizedKeyUnregistered, true
	case "AUTH_KEY_EMPTY":
		return UnauthorizedKeyEmpty, true
	case "SESSION_EXPIRED":
		return UnauthorizedSessionExpired, true
	case "SESSION_REVOKED":
		return UnauthorizedSessionRevoked, true
	case "SESSION_PASSWORD_NEEDED":
		return UnauthorizedPasswordNeeded, true
	default:
		return UnauthorizedUnknown, false
	}
}
