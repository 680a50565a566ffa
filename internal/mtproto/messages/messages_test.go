package messages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testAuthKey() []byte {
	authKey := make([]byte, 256)
	for i := range authKey {
		authKey[i] = byte(i * 7)
	}
	return authKey
}

func TestPlainRoundTrip(t *testing.T) {
	p := &Plain{MsgID: 123456789, Body: []byte("req_pq_multi payload")}
	decoded, err := DecodePlain(p.Encode())
	require.NoError(t, err)
	require.Equal(t, p.MsgID, decoded.MsgID)
	require.Equal(t, p.Body, decoded.Body)
}

func TestPlainRejectsNonZeroAuthKeyID(t *testing.T) {
	p := &Plain{MsgID: 1, Body: []byte("x")}
	raw := p.Encode()
	raw[0] = 1
	_, err := DecodePlain(raw)
	require.Error(t, err)
}

func TestEncryptedRoundTripClientDirection(t *testing.T) {
	authKey := testAuthKey()
	e := &Encrypted{
		AuthKeyID: AuthKeyID(authKey),
		Salt:      42,
		SessionID: 99,
		MsgID:     1000,
		SeqNo:     2,
		Body:      []byte("some rpc call body, not 16-aligned"),
	}
	raw, err := e.Encode(authKey, true)
	require.NoError(t, err)

	decoded, err := DecodeEncrypted(raw, authKey, true)
	require.NoError(t, err)
	require.Equal(t, e.Salt, decoded.Salt)
	require.Equal(t, e.SessionID, decoded.SessionID)
	require.Equal(t, e.MsgID, decoded.MsgID)
	require.Equal(t, e.SeqNo, decoded.SeqNo)
	require.Equal(t, e.Body, decoded.Body)
}

func TestEncryptedWrongDirectionFailsMsgKeyCheck(t *testing.T) {
	authKey := testAuthKey()
	e := &Encrypted{AuthKeyID: AuthKeyID(authKey), Salt: 1, SessionID: 1, MsgID: 1, SeqNo: 0, Body: []byte("x")}
	raw, err := e.Encode(authKey, true)
	require.NoError(t, err)

	_, err = DecodeEncrypted(raw, authKey, false)
	require.Error(t, err)
}

func TestEncryptedRejectsTamperedCiphertext(t *testing.T) {
	authKey := testAuthKey()
	e := &Encrypted{AuthKeyID: AuthKeyID(authKey), Salt: 1, SessionID: 1, MsgID: 1, SeqNo: 0, Body: []byte("payload body")}
	raw, err := e.Encode(authKey, true)
	require.NoError(t, err)

	raw[len(raw)-1] ^= 0xff
	_, err = DecodeEncrypted(raw, authKey, true)
	require.Error(t, err)
}
