package crypto

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIGERoundTrip(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 32)
	plain := make([]byte, 64)
	for _, b := range [][]byte{key, iv, plain} {
		_, err := rand.Read(b)
		require.NoError(t, err)
	}

	ct, err := IGEEncrypt(key, iv, plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, ct)

	pt, err := IGEDecrypt(key, iv, ct)
	require.NoError(t, err)
	require.Equal(t, plain, pt)
}

func TestIGERejectsUnalignedInput(t *testing.T) {
	key := make([]byte, 32)
	iv := make([]byte, 32)
	_, err := IGEEncrypt(key, iv, make([]byte, 15))
	require.Error(t, err)
}

func TestFactorPQGoldenVector(t *testing.T) {
	// From the spec's PQ handshake golden vector.
	pq := uint64(0x17ED48941A08F981)
	wantP := uint64(0x494C553B)
	wantQ := uint64(0x53911073)

	p, q, err := FactorPQ(pq)
	require.NoError(t, err)
	require.Equal(t, wantP, p)
	require.Equal(t, wantQ, q)
	require.Less(t, p, q)
	require.Equal(t, pq, p*q)
}

func TestFactorPQEvenAndSmall(t *testing.T) {
	p, q, err := FactorPQ(15)
	require.NoError(t, err)
	require.Equal(t, uint64(3), p)
	require.Equal(t, uint64(5), q)

	p, q, err = FactorPQ(14)
	require.NoError(t, err)
	require.Equal(t, uint64(2), p)
	require.Equal(t, uint64(7), q)
}

func TestModExp(t *testing.T) {
	got := ModExp(big.NewInt(4).Bytes(), big.NewInt(13).Bytes(), big.NewInt(497).Bytes())
	want := new(big.Int).Exp(big.NewInt(4), big.NewInt(13), big.NewInt(497)).Bytes()
	require.True(t, bytes.Equal(want, got))
}

func TestFingerprintMatchesSelection(t *testing.T) {
	keys := DefaultPublicKeys()
	require.NotEmpty(t, keys)

	got, err := SelectKey(keys, []int64{int64(keys[0].Fingerprint)})
	require.NoError(t, err)
	require.Equal(t, keys[0], got)

	_, err = SelectKey(keys, []int64{0x1})
	require.Error(t, err)
}

func TestEncryptRawProducesModulusSizedCiphertext(t *testing.T) {
	keys := DefaultPublicKeys()
	payload := []byte("p_q_inner_data placeholder")

	ct, err := EncryptRaw(keys[0], payload)
	require.NoError(t, err)
	require.Len(t, ct, 256)
}

func TestDeriveMessageKeysDiffersByDirection(t *testing.T) {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i)
	}
	msgKey := SHA1([]byte("hello"))[:16]

	clientKey, clientIV := DeriveMessageKeys(authKey, msgKey, true)
	serverKey, serverIV := DeriveMessageKeys(authKey, msgKey, false)

	require.Len(t, clientKey, 32)
	require.Len(t, clientIV, 32)
	require.NotEqual(t, clientKey, serverKey)
	require.NotEqual(t, clientIV, serverIV)
}
