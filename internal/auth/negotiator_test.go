package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomtp/mtproto/internal/crypto"
	"github.com/gomtp/mtproto/internal/encoding/tl"
	"github.com/gomtp/mtproto/internal/mtproto/objects"
)

// rfc3526Group14Hex is the public, well-known 2048-bit MODP group from
// RFC 3526 §3, used here only as a fixed DH prime so the test doesn't need
// to generate a fresh safe prime on every run.
const rfc3526Group14Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
	"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A43" +
	"1B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637E" +
	"D6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE4" +
	"5B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA" +
	"3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08C" +
	"A18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF0" +
	"6F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5" +
	"A8AACAA68FFFFFFFFFFFFFFFF"

// fakeServer plays the other side of the handshake using the same
// primitives the negotiator uses, so the test exercises real encode/decode
// and real crypto on both ends instead of stubbing the wire.
type fakeServer struct {
	priv *rsa.PrivateKey
	pub  *crypto.PublicKey

	nonce       tl.Int128
	serverNonce tl.Int128
	newNonce    tl.Int256

	dhPrime *big.Int
	g       int32
	a       *big.Int
	gA      *big.Int

	authKey []byte
}

func newFakeServer(t *testing.T) *fakeServer {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub := &crypto.PublicKey{N: priv.N, E: priv.E}
	pub.Fingerprint = crypto.Fingerprint(pub.N, pub.E)

	return &fakeServer{priv: priv, pub: pub}
}

func (s *fakeServer) handleReqPQ(body []byte) []byte {
	obj, err := tl.DecodeUnknownObjectBytes(body)
	if err != nil {
		panic(err)
	}
	req := obj.(*objects.ReqPQ)
	s.nonce = req.Nonce

	snBytes, _ := crypto.RandomBytes(16)
	copy(s.serverNonce[:], snBytes)

	// A small, easily-factorable pq for test speed: p=17, q=23.
	res := &objects.ResPQ{
		Nonce:                  s.nonce,
		ServerNonce:            s.serverNonce,
		PQ:                     uint64ToBytes(17 * 23),
		ServerPublicKeyFingers: []int64{int64(s.pub.Fingerprint)},
	}
	return res.Encode()
}

func (s *fakeServer) handleReqDHParams(t *testing.T, body []byte) []byte {
	obj, err := tl.DecodeUnknownObjectBytes(body)
	require.NoError(t, err)
	req := obj.(*objects.ReqDHParams)
	require.Equal(t, s.nonce, req.Nonce)
	require.Equal(t, s.serverNonce, req.ServerNonce)

	padded := rsaDecryptRaw(t, s.priv, req.EncryptedData)
	inner, err := tl.DecodeUnknownObjectBytes(padded[20:])
	require.NoError(t, err)
	pqInner := inner.(*objects.PQInnerData)
	require.Equal(t, s.nonce, pqInner.Nonce)
	s.newNonce = pqInner.NewNonce

	s.dhPrime, _ = new(big.Int).SetString(rfc3526Group14Hex, 16)
	s.g = 2
	aBytes, _ := crypto.RandomBytes(32)
	s.a = new(big.Int).SetBytes(aBytes)
	s.gA = crypto.ModExpBig(big.NewInt(int64(s.g)), s.a, s.dhPrime)

	inner2 := &objects.ServerDHInnerData{
		Nonce:       s.nonce,
		ServerNonce: s.serverNonce,
		G:           s.g,
		DHPrime:     s.dhPrime.Bytes(),
		GA:          s.gA.Bytes(),
		ServerTime:  1,
	}
	encoded := inner2.Encode()
	toEncrypt := append(crypto.SHA1(encoded), encoded...)
	toEncrypt = padRandom(toEncrypt)

	aesKey, aesIV := s.tmpAESKeyIV()
	ciphertext, err := crypto.IGEEncrypt(aesKey, aesIV, toEncrypt)
	require.NoError(t, err)

	ok := &objects.ServerDHParamsOk{Nonce: s.nonce, ServerNonce: s.serverNonce, EncryptedAnswer: ciphertext}
	return ok.Encode()
}

func (s *fakeServer) handleSetClientDHParams(t *testing.T, body []byte) []byte {
	obj, err := tl.DecodeUnknownObjectBytes(body)
	require.NoError(t, err)
	req := obj.(*objects.SetClientDHParams)

	aesKey, aesIV := s.tmpAESKeyIV()
	plain, err := crypto.IGEDecrypt(aesKey, aesIV, req.EncryptedData)
	require.NoError(t, err)

	inner, err := tl.DecodeUnknownObjectBytes(plain[20:])
	require.NoError(t, err)
	clientInner := inner.(*objects.ClientDHInnerData)

	gB := new(big.Int).SetBytes(clientInner.GB)
	s.authKey = leftPad(crypto.ModExpBig(gB, s.a, s.dhPrime).Bytes(), 256)

	authKeyAuxHash := crypto.SHA1(s.authKey)[:8]
	hash1 := crypto.SHA1(append(append(append([]byte{}, s.newNonce[:]...), byte(1)), authKeyAuxHash...))[4:20]
	var h1 tl.Int128
	copy(h1[:], hash1)

	okReply := &objects.DHGenOk{Nonce: s.nonce, ServerNonce: s.serverNonce, NewNonceHash1: h1}
	return okReply.Encode()
}

func (s *fakeServer) tmpAESKeyIV() (key, iv []byte) {
	nn := s.newNonce[:]
	sn := s.serverNonce[:]
	key = append(crypto.SHA1(nn, sn), crypto.SHA1(sn, nn)[:12]...)
	iv = append(append(append([]byte{}, crypto.SHA1(sn, nn)[12:20]...), crypto.SHA1(nn, nn)...), nn[:4]...)
	return key, iv
}

func TestNegotiatorFullHandshakeAgainstFakeServer(t *testing.T) {
	server := newFakeServer(t)
	n := New([]*crypto.PublicKey{server.pub})

	reqPQBody, err := n.Begin()
	require.NoError(t, err)
	require.Equal(t, StatePQSent, n.State())

	resPQBody := server.handleReqPQ(reqPQBody)
	reqDHBody, done, err := n.Step(resPQBody)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, StateDHParamsSent, n.State())

	serverDHBody := server.handleReqDHParams(t, reqDHBody)
	setParamsBody, done, err := n.Step(serverDHBody)
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, StateSetParamsSent, n.State())

	dhGenOkBody := server.handleSetClientDHParams(t, setParamsBody)
	_, done, err = n.Step(dhGenOkBody)
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, StateDone, n.State())

	authKey, serverSalt, err := n.Result()
	require.NoError(t, err)
	require.Equal(t, server.authKey, authKey)
	require.NotZero(t, serverSalt)
}

func TestNegotiatorAbortsOnNonceMismatch(t *testing.T) {
	server := newFakeServer(t)
	n := New([]*crypto.PublicKey{server.pub})

	reqPQBody, err := n.Begin()
	require.NoError(t, err)

	resPQBody := server.handleReqPQ(reqPQBody)
	obj, err := tl.DecodeUnknownObjectBytes(resPQBody)
	require.NoError(t, err)
	res := obj.(*objects.ResPQ)
	res.Nonce[0] ^= 0xff // corrupt the echoed nonce
	tampered := res.Encode()

	_, done, err := n.Step(tampered)
	require.Error(t, err)
	require.True(t, done)
	require.Equal(t, StateFailed, n.State())
}

func TestNegotiatorRejectsWrongReplyType(t *testing.T) {
	server := newFakeServer(t)
	n := New([]*crypto.PublicKey{server.pub})

	_, err := n.Begin()
	require.NoError(t, err)

	// A pong where a resPQ was expected.
	pong := &objects.Pong{MsgID: 1, PingID: 1}
	_, done, err := n.Step(pong.Encode())
	require.Error(t, err)
	require.True(t, done)
}

func rsaDecryptRaw(t *testing.T, priv *rsa.PrivateKey, ciphertext []byte) []byte {
	c := new(big.Int).SetBytes(ciphertext)
	m := new(big.Int).Exp(c, priv.D, priv.N)
	out := m.Bytes()
	padded := make([]byte, 255)
	copy(padded[255-len(out):], out)
	return padded
}
