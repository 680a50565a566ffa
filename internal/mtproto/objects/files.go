package objects

import (
	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/encoding/tl"
)

// InputFileLocation addresses a previously uploaded file for download.
// Only the plain (volume/local/secret) addressing scheme is modeled; the
// photo/document-specific location variants are out of scope.
type InputFileLocation struct {
	VolumeID int64
	LocalID  int32
	Secret   int64
}

func (*InputFileLocation) CRC() uint32 { return crcInputFileLocation }

func (o *InputFileLocation) Decode(d *tl.Decoder) error {
	return errors.New("objects: InputFileLocation is client-to-server only")
}

func (o *InputFileLocation) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.VolumeID)
	e.PutInt32(o.LocalID)
	e.PutInt64(o.Secret)
	return e.Bytes()
}

// InputFile addresses a small file (<=10MB) assembled from sequential
// saveFilePart chunks, all of which must share Parts and MD5Checksum.
type InputFile struct {
	ID          int64
	Parts       int32
	Name        string
	MD5Checksum string
}

func (*InputFile) CRC() uint32 { return crcInputFile }

func (o *InputFile) Decode(d *tl.Decoder) error {
	return errors.New("objects: InputFile is client-to-server only")
}

func (o *InputFile) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.ID)
	e.PutInt32(o.Parts)
	e.PutString(o.Name)
	e.PutString(o.MD5Checksum)
	return e.Bytes()
}

// InputFileBig is InputFile's counterpart for big uploads: no MD5, parts
// may arrive out of order, and the server trusts TotalParts instead.
type InputFileBig struct {
	ID         int64
	TotalParts int32
	Name       string
}

func (*InputFileBig) CRC() uint32 { return crcInputFileBig }

func (o *InputFileBig) Decode(d *tl.Decoder) error {
	return errors.New("objects: InputFileBig is client-to-server only")
}

func (o *InputFileBig) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.ID)
	e.PutInt32(o.TotalParts)
	e.PutString(o.Name)
	return e.Bytes()
}

// UploadFile is upload.getFile's reply: one chunk plus the MIME type the
// server inferred, used to pick the local decoder/extension on first chunk.
type UploadFile struct {
	Type  string
	MTime int32
	Bytes []byte
}

func (*UploadFile) CRC() uint32 { return crcUploadFile }

func (o *UploadFile) Decode(d *tl.Decoder) error {
	var err error
	if o.Type, err = d.PopString(); err != nil {
		return err
	}
	if o.MTime, err = d.PopInt32(); err != nil {
		return err
	}
	o.Bytes, err = d.PopBytes()
	return err
}

func (o *UploadFile) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutString(o.Type)
	e.PutInt32(o.MTime)
	e.PutBytes(o.Bytes)
	return e.Bytes()
}

func init() {
	Register(crcInputFileLocation, func() tl.Decodable { return &InputFileLocation{} })
	Register(crcInputFile, func() tl.Decodable { return &InputFile{} })
	Register(crcInputFileBig, func() tl.Decodable { return &InputFileBig{} })
	Register(crcUploadFile, func() tl.Decodable { return &UploadFile{} })
}
