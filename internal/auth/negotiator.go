// Copyright (c) 2020-2021 KHS Films
//
// This file is a part of mtproto package.
// See https://github.com/xelaj/mtproto/blob/master/LICENSE for details

// Package auth implements the three-round auth-key handshake: PQ exchange,
// Diffie-Hellman parameter exchange, and DH-generation confirmation. See
// SPEC_FULL.md §4.3 "Auth-key negotiator" — the hardest single piece of
// this client, ported from the teacher's single-shot handshake function
// into an explicit step machine so the caller owns the transport loop.
package auth

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/crypto"
	"github.com/gomtp/mtproto/internal/encoding/tl"
	"github.com/gomtp/mtproto/internal/mtproto/objects"
)

// State names the step the negotiator is waiting to complete next.
type State int

const (
	StateNone State = iota
	StatePQSent
	StateDHParamsSent
	StateSetParamsSent
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StatePQSent:
		return "pq_sent"
	case StateDHParamsSent:
		return "dh_params_sent"
	case StateSetParamsSent:
		return "set_params_sent"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// minDHPrimeBits is a sanity floor on the server-supplied dh_prime; the real
// schema calls for 2048 bits and a client that skips this check is trusting
// an unauthenticated MITM to pick the group.
const minDHPrimeBits = 2000

// Negotiator drives one handshake attempt. It is not safe for concurrent
// use; callers own one per in-flight auth-key request.
type Negotiator struct {
	state State

	pubKeys []*crypto.PublicKey

	nonce       tl.Int128
	serverNonce tl.Int128
	newNonce    tl.Int256

	dhPrime *big.Int
	g       int32
	gA      *big.Int // server's DH public value
	b       *big.Int // our secret exponent
	gB      *big.Int

	tmpKey, tmpIV []byte // temporary AES-IGE key/iv, needed again on dh_gen_retry
	retryID       int64
	dhGenRetries  int

	authKey    []byte
	serverSalt int64

	err error
}

// maxDHGenRetries bounds the round-3 retry loop triggered by dh_gen_retry;
// the spec permits retrying but not forever.
const maxDHGenRetries = 5

// New constructs a fresh negotiator against the given known server public
// keys (see crypto.DefaultPublicKeys).
func New(pubKeys []*crypto.PublicKey) *Negotiator {
	return &Negotiator{state: StateNone, pubKeys: pubKeys}
}

func (n *Negotiator) State() State { return n.state }

// Begin emits the req_pq body that starts round 1.
func (n *Negotiator) Begin() ([]byte, error) {
	if n.state != StateNone {
		return nil, errors.Errorf("auth: Begin called in state %s", n.state)
	}
	nonceBytes, err := crypto.RandomBytes(16)
	if err != nil {
		return nil, err
	}
	copy(n.nonce[:], nonceBytes)

	n.state = StatePQSent
	return (&objects.ReqPQ{Nonce: n.nonce}).Encode(), nil
}

// Step feeds one decrypted, TL-encoded server reply body into the machine
// and returns the next body to send, if any. done is true once the
// handshake has either succeeded (State() == StateDone, call Result) or
// failed permanently (State() == StateFailed, err is non-nil).
func (n *Negotiator) Step(serverBody []byte) (nextBody []byte, done bool, err error) {
	obj, err := tl.DecodeUnknownObjectBytes(serverBody)
	if err != nil {
		_, ferr := n.fail(errors.Wrap(err, "decoding handshake reply"))
		return nil, true, ferr
	}

	switch n.state {
	case StatePQSent:
		return n.handleResPQ(obj)
	case StateDHParamsSent:
		return n.handleServerDHParams(obj)
	case StateSetParamsSent:
		return n.handleDHGenResult(obj)
	default:
		_, ferr := n.fail(errors.Errorf("auth: Step called in terminal or unstarted state %s", n.state))
		return nil, true, ferr
	}
}

// Result returns the negotiated auth key and initial server salt. Only
// valid once State() == StateDone.
func (n *Negotiator) Result() ([]byte, int64, error) {
	if n.state != StateDone {
		return nil, 0, errors.Errorf("auth: Result called in state %s", n.state)
	}
	return n.authKey, n.serverSalt, nil
}

func (n *Negotiator) fail(err error) (bool, error) {
	n.state = StateFailed
	n.err = err
	return true, err
}

func (n *Negotiator) handleResPQ(obj tl.Object) ([]byte, bool, error) {
	res, ok := obj.(*objects.ResPQ)
	if !ok {
		_, err := n.fail(errors.Errorf("auth: expected resPQ, got %T", obj))
		return nil, true, err
	}
	if res.Nonce != n.nonce {
		_, err := n.fail(errors.New("auth: resPQ nonce mismatch"))
		return nil, true, err
	}
	n.serverNonce = res.ServerNonce

	pq := bytesToUint64(res.PQ)
	p, q, err := crypto.FactorPQ(pq)
	if err != nil {
		_, ferr := n.fail(errors.Wrap(err, "factoring server pq"))
		return nil, true, ferr
	}

	newNonceBytes, err := crypto.RandomBytes(32)
	if err != nil {
		_, ferr := n.fail(err)
		return nil, true, ferr
	}
	copy(n.newNonce[:], newNonceBytes)

	key, err := crypto.SelectKey(n.pubKeys, res.ServerPublicKeyFingers)
	if err != nil {
		_, ferr := n.fail(err)
		return nil, true, ferr
	}

	inner := &objects.PQInnerData{
		PQ:          res.PQ,
		P:           uint64ToBytes(p),
		Q:           uint64ToBytes(q),
		Nonce:       n.nonce,
		ServerNonce: n.serverNonce,
		NewNonce:    n.newNonce,
	}
	encryptedData, err := crypto.EncryptRaw(key, inner.Encode())
	if err != nil {
		_, ferr := n.fail(errors.Wrap(err, "rsa-encrypting p_q_inner_data"))
		return nil, true, ferr
	}

	req := &objects.ReqDHParams{
		Nonce:                n.nonce,
		ServerNonce:          n.serverNonce,
		P:                    uint64ToBytes(p),
		Q:                    uint64ToBytes(q),
		PublicKeyFingerprint: int64(key.Fingerprint),
		EncryptedData:        encryptedData,
	}
	n.state = StateDHParamsSent
	return req.Encode(), false, nil
}

func (n *Negotiator) handleServerDHParams(obj tl.Object) ([]byte, bool, error) {
	if fail, ok := obj.(*objects.ServerDHParamsFail); ok {
		if fail.Nonce != n.nonce || fail.ServerNonce != n.serverNonce {
			_, err := n.fail(errors.New("auth: server_DH_params_fail carries mismatched nonces"))
			return nil, true, err
		}
		_, err := n.fail(errors.New("auth: server rejected DH params request"))
		return nil, true, err
	}

	ok1, isOk := obj.(*objects.ServerDHParamsOk)
	if !isOk {
		_, err := n.fail(errors.Errorf("auth: expected server_DH_params_ok, got %T", obj))
		return nil, true, err
	}
	if ok1.Nonce != n.nonce || ok1.ServerNonce != n.serverNonce {
		_, err := n.fail(errors.New("auth: server_DH_params_ok carries mismatched nonces"))
		return nil, true, err
	}

	aesKey, aesIV := n.tmpAESKeyIV()
	plain, err := crypto.IGEDecrypt(aesKey, aesIV, ok1.EncryptedAnswer)
	if err != nil {
		_, ferr := n.fail(errors.Wrap(err, "decrypting server_DH_params answer"))
		return nil, true, ferr
	}
	if len(plain) < 20 {
		_, ferr := n.fail(errors.New("auth: server_DH_params answer shorter than its own hash prefix"))
		return nil, true, ferr
	}
	hash, rest := plain[:20], plain[20:]

	d := tl.NewDecoder(rest)
	innerObj, err := tl.DecodeUnknownObject(d)
	if err != nil {
		_, ferr := n.fail(errors.Wrap(err, "decoding server_DH_inner_data"))
		return nil, true, ferr
	}
	consumed := rest[:d.Offset()]
	if !bytes.Equal(crypto.SHA1(consumed), hash) {
		_, ferr := n.fail(errors.New("auth: server_DH_inner_data hash mismatch"))
		return nil, true, ferr
	}

	inner, ok := innerObj.(*objects.ServerDHInnerData)
	if !ok {
		_, ferr := n.fail(errors.Errorf("auth: expected server_DH_inner_data, got %T", innerObj))
		return nil, true, ferr
	}
	if inner.Nonce != n.nonce || inner.ServerNonce != n.serverNonce {
		_, ferr := n.fail(errors.New("auth: server_DH_inner_data carries mismatched nonces"))
		return nil, true, ferr
	}

	n.dhPrime = new(big.Int).SetBytes(inner.DHPrime)
	if n.dhPrime.BitLen() < minDHPrimeBits {
		_, ferr := n.fail(errors.Errorf("auth: server dh_prime is only %d bits, refusing", n.dhPrime.BitLen()))
		return nil, true, ferr
	}
	n.g = inner.G
	n.gA = new(big.Int).SetBytes(inner.GA)

	bBytes := make([]byte, 256)
	if _, err := rand.Read(bBytes); err != nil {
		_, ferr := n.fail(errors.Wrap(err, "generating DH secret exponent"))
		return nil, true, ferr
	}
	n.b = new(big.Int).SetBytes(bBytes)

	gBig := big.NewInt(int64(n.g))
	n.gB = crypto.ModExpBig(gBig, n.b, n.dhPrime)
	n.authKey = leftPad(crypto.ModExpBig(n.gA, n.b, n.dhPrime).Bytes(), 256)

	n.tmpKey, n.tmpIV = aesKey, aesIV
	n.retryID = 0

	body, err := n.buildSetClientDHParams()
	if err != nil {
		_, ferr := n.fail(err)
		return nil, true, ferr
	}
	n.state = StateSetParamsSent
	return body, false, nil
}

// buildSetClientDHParams encodes and encrypts round 3's client_DH_inner_data
// at the negotiator's current retry_id, using the temporary key derived in
// round 2. Called once for the initial send and again, with an incremented
// retry_id, on each dh_gen_retry.
func (n *Negotiator) buildSetClientDHParams() ([]byte, error) {
	clientInner := &objects.ClientDHInnerData{
		Nonce:       n.nonce,
		ServerNonce: n.serverNonce,
		RetryID:     n.retryID,
		GB:          n.gB.Bytes(),
	}
	encoded := clientInner.Encode()
	toEncrypt := append(crypto.SHA1(encoded), encoded...)
	toEncrypt = padRandom(toEncrypt)

	ciphertext, err := crypto.IGEEncrypt(n.tmpKey, n.tmpIV, toEncrypt)
	if err != nil {
		return nil, errors.Wrap(err, "encrypting client_DH_inner_data")
	}

	req := &objects.SetClientDHParams{
		Nonce:         n.nonce,
		ServerNonce:   n.serverNonce,
		EncryptedData: ciphertext,
	}
	return req.Encode(), nil
}

func (n *Negotiator) handleDHGenResult(obj tl.Object) ([]byte, bool, error) {
	authKeyAuxHash := crypto.SHA1(n.authKey)[:8]

	checkHash := func(nonceSuffix byte, got tl.Int128) error {
		want := crypto.SHA1(append(append(append([]byte{}, n.newNonce[:]...), nonceSuffix), authKeyAuxHash...))[4:20]
		if !bytes.Equal(want, got[:]) {
			return errors.New("auth: new_nonce hash check failed")
		}
		return nil
	}

	switch r := obj.(type) {
	case *objects.DHGenOk:
		if r.Nonce != n.nonce || r.ServerNonce != n.serverNonce {
			_, err := n.fail(errors.New("auth: dh_gen_ok carries mismatched nonces"))
			return nil, true, err
		}
		if err := checkHash(1, r.NewNonceHash1); err != nil {
			_, ferr := n.fail(err)
			return nil, true, ferr
		}
		n.serverSalt = serverSaltFromNonces(n.newNonce, n.serverNonce)
		n.state = StateDone
		return nil, true, nil

	case *objects.DHGenRetry:
		if err := checkHash(2, r.NewNonceHash2); err != nil {
			_, ferr := n.fail(err)
			return nil, true, ferr
		}
		n.dhGenRetries++
		if n.dhGenRetries > maxDHGenRetries {
			_, ferr := n.fail(errors.New("auth: too many dh_gen_retry responses, aborting"))
			return nil, true, ferr
		}
		n.retryID++
		body, err := n.buildSetClientDHParams()
		if err != nil {
			_, ferr := n.fail(err)
			return nil, true, ferr
		}
		n.state = StateSetParamsSent
		return body, false, nil

	case *objects.DHGenFail:
		_ = checkHash // best-effort; a fail reply aborts regardless of hash validity
		_, ferr := n.fail(errors.New("auth: server reported dh_gen_fail"))
		return nil, true, ferr

	default:
		_, err := n.fail(errors.Errorf("auth: expected a dh_gen_* reply, got %T", obj))
		return nil, true, err
	}
}

// tmpAESKeyIV derives the temporary key securing round 2 and round 3's
// encrypted payloads from server_nonce and new_nonce.
func (n *Negotiator) tmpAESKeyIV() (key, iv []byte) {
	nn := n.newNonce[:]
	sn := n.serverNonce[:]

	key = append(crypto.SHA1(nn, sn), crypto.SHA1(sn, nn)[:12]...)
	iv = append(append(append([]byte{}, crypto.SHA1(sn, nn)[12:20]...), crypto.SHA1(nn, nn)...), nn[:4]...)
	return key, iv
}

func serverSaltFromNonces(newNonce tl.Int256, serverNonce tl.Int128) int64 {
	var x [8]byte
	for i := 0; i < 8; i++ {
		x[i] = newNonce[i] ^ serverNonce[i]
	}
	return int64(binary.LittleEndian.Uint64(x[:]))
}

func bytesToUint64(b []byte) uint64 {
	var full [8]byte
	copy(full[8-len(b):], b)
	return binary.BigEndian.Uint64(full[:])
}

func uint64ToBytes(v uint64) []byte {
	var full [8]byte
	binary.BigEndian.PutUint64(full[:], v)
	i := 0
	for i < 7 && full[i] == 0 {
		i++
	}
	return full[i:]
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[len(b)-n:]
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// padRandom appends 0-15 random bytes so the total is a multiple of the AES
// block size, matching the historical client's padding for this step.
func padRandom(b []byte) []byte {
	rem := len(b) % 16
	if rem == 0 {
		return b
	}
	extra, err := crypto.RandomBytes(16 - rem)
	if err != nil {
		// crypto/rand failure is unrecoverable process-wide; zero padding
		// still yields a structurally valid (if less unpredictable) frame.
		extra = make([]byte, 16-rem)
	}
	return append(b, extra...)
}
