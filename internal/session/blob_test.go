package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSession() *Session {
	authKey := make([]byte, authKeyLen)
	for i := range authKey {
		authKey[i] = 0xAA
	}
	return &Session{
		DeltaTime:  -2,
		DC:         DcInfo{ID: 2, Host: "149.154.167.51", Port: 443},
		AuthKey:    authKey,
		AuthID:     0x1234567890ABCDEF,
		ServerSalt: 0xCAFEBABECAFEBABE,
		Pts:        42,
		Qts:        1,
		Date:       1_500_000_000,
		ChatIDs:    []uint32{7, 11},
	}
}

// TestSessionResumeV3GoldenVector is SPEC_FULL.md §8 scenario 2: encode the
// given state, decode it back, and expect the result to equal the original.
func TestSessionResumeV3GoldenVector(t *testing.T) {
	s := testSession()

	blob, err := Encode(s)
	require.NoError(t, err)
	require.Equal(t, currentVersion, versionV3)

	decoded, err := Decode(blob)
	require.NoError(t, err)
	require.Equal(t, s, decoded)
}

func TestEncodeRejectsShortAuthKey(t *testing.T) {
	s := testSession()
	s.AuthKey = s.AuthKey[:10]
	_, err := Encode(s)
	require.Error(t, err)
}

// TestDecodeV1Blob hand-assembles a version-1 blob (format_version,
// delta_time, dc_info, self_phone, auth_key, auth_id — nothing past that)
// to prove the oldest resume files still load, defaulting every field v1
// never carried.
func TestDecodeV1Blob(t *testing.T) {
	s := testSession()

	var buf []byte
	buf = appendUint32(buf, versionV1)
	buf = appendInt32(buf, s.DeltaTime)
	buf = appendDcInfo(buf, s.DC)
	buf = appendString(buf, "+15551234567")
	buf = append(buf, s.AuthKey...)
	buf = appendUint64(buf, s.AuthID)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, s.DeltaTime, decoded.DeltaTime)
	require.Equal(t, s.DC, decoded.DC)
	require.Equal(t, "+15551234567", decoded.SelfPhone)
	require.Equal(t, s.AuthKey, decoded.AuthKey)
	require.Equal(t, s.AuthID, decoded.AuthID)
	require.Zero(t, decoded.ServerSalt)
	require.Zero(t, decoded.Pts)
	require.Zero(t, decoded.Qts)
	require.Zero(t, decoded.Date)
	require.Nil(t, decoded.ChatIDs)
}

// TestDecodeV2Blob hand-assembles a version-2 blob: same as v1 plus
// server_salt/pts/qts/date, still carrying the legacy self_phone field and
// still lacking chat_ids.
func TestDecodeV2Blob(t *testing.T) {
	s := testSession()

	var buf []byte
	buf = appendUint32(buf, versionV2)
	buf = appendInt32(buf, s.DeltaTime)
	buf = appendDcInfo(buf, s.DC)
	buf = appendString(buf, "+15551234567")
	buf = append(buf, s.AuthKey...)
	buf = appendUint64(buf, s.AuthID)
	buf = appendUint64(buf, s.ServerSalt)
	buf = appendUint32(buf, s.Pts)
	buf = appendUint32(buf, s.Qts)
	buf = appendUint32(buf, s.Date)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, "+15551234567", decoded.SelfPhone)
	require.Equal(t, s.ServerSalt, decoded.ServerSalt)
	require.Equal(t, s.Pts, decoded.Pts)
	require.Equal(t, s.Qts, decoded.Qts)
	require.Equal(t, s.Date, decoded.Date)
	require.Nil(t, decoded.ChatIDs)
}

func TestFileLoaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.dat")

	loader := NewFromFile(path)
	_, err := loader.Load()
	require.Error(t, err)

	s := testSession()
	require.NoError(t, loader.Save(s))

	loaded, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, s, loaded)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
