package objects

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gomtp/mtproto/internal/encoding/tl"
)

// These constructors are client-to-server only (InputFile/InputFileBig/
// InputFileLocation): a real host application builds one per completed file
// job to pass as the request value of upload.saveFilePart's final call or
// messages.sendMedia, exactly the shape dispatcher.ChunkSender is expected
// to produce once a FileJob finishes. Encode() is exercised directly since
// Decode() deliberately refuses (there is no server-to-client direction for
// these three).
func TestInputFileEncodesSmallUploadResult(t *testing.T) {
	f := &InputFile{ID: 42, Parts: 3, Name: "photo.jpg", MD5Checksum: "d41d8cd98f00b204e9800998ecf8427e"}
	enc := f.Encode()
	require.NotEmpty(t, enc)

	d := tl.NewDecoder(enc)
	crc, err := d.PopUint32()
	require.NoError(t, err)
	require.Equal(t, crcInputFile, crc)
}

func TestInputFileBigEncodesBigUploadResult(t *testing.T) {
	f := &InputFileBig{ID: 7, TotalParts: 24, Name: "video.mp4"}
	enc := f.Encode()

	d := tl.NewDecoder(enc)
	crc, err := d.PopUint32()
	require.NoError(t, err)
	require.Equal(t, crcInputFileBig, crc)

	err = f.Decode(d)
	require.EqualError(t, err, "objects: InputFileBig is client-to-server only")
}

func TestInputFileLocationAddressesDownload(t *testing.T) {
	loc := &InputFileLocation{VolumeID: 1, LocalID: 2, Secret: 3}
	enc := loc.Encode()
	require.NotEmpty(t, enc)
}

// UploadFile is the server-to-client reply a ChunkReceiver decodes for every
// chunk of a download job; round-trip it through the registry the way
// dispatchBody would for any other server push.
func TestUploadFileRoundTripsThroughRegistry(t *testing.T) {
	want := &UploadFile{Type: "jpg", MTime: 1_700_000_000, Bytes: []byte{1, 2, 3, 4}}
	decoded, err := tl.DecodeUnknownObjectBytes(want.Encode())
	require.NoError(t, err)

	got, ok := decoded.(*UploadFile)
	require.True(t, ok)
	require.Equal(t, want, got)
}
