// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package crypto implements the handful of primitives MTProto v1 needs:
// SHA-1/SHA-256, AES-IGE, big-int modexp, Pollard-rho PQ factoring and raw
// RSA public-key encryption against the embedded Telegram server keys.
//
// None of these has a drop-in third-party implementation in the retrieval
// pack: IGE mode in particular is absent from golang.org/x/crypto and every
// example repo, so it is hand-rolled over stdlib crypto/aes block primitives.
package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
)

func SHA1(parts ...[]byte) []byte {
	h := sha1.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func SHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
