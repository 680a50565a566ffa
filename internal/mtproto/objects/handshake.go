package objects

import (
	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/encoding/tl"
)

// ReqPQ — round 1 request. The server nonce is not present on this side.
type ReqPQ struct {
	Nonce tl.Int128
}

func (*ReqPQ) CRC() uint32 { return crcReqPQ }

func (o *ReqPQ) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	return e.Bytes()
}

func (o *ReqPQ) Decode(d *tl.Decoder) error {
	n, err := d.PopInt128()
	o.Nonce = n
	return err
}

// ResPQ — round 1 response.
type ResPQ struct {
	Nonce                  tl.Int128
	ServerNonce            tl.Int128
	PQ                     []byte
	ServerPublicKeyFingers []int64
}

func (*ResPQ) CRC() uint32 { return crcResPQ }

func (o *ResPQ) Decode(d *tl.Decoder) error {
	var err error
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.PQ, err = d.PopBytes(); err != nil {
		return err
	}
	n, err := d.PopVectorHeader()
	if err != nil {
		return err
	}
	o.ServerPublicKeyFingers = make([]int64, n)
	for i := range o.ServerPublicKeyFingers {
		if o.ServerPublicKeyFingers[i], err = d.PopInt64(); err != nil {
			return err
		}
	}
	return nil
}

func (o *ResPQ) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutBytes(o.PQ)
	e.PutVectorHeader(len(o.ServerPublicKeyFingers))
	for _, f := range o.ServerPublicKeyFingers {
		e.PutInt64(f)
	}
	return e.Bytes()
}

// PQInnerData is the RSA-encrypted inner payload of round 2.
type PQInnerData struct {
	PQ          []byte
	P           []byte
	Q           []byte
	Nonce       tl.Int128
	ServerNonce tl.Int128
	NewNonce    tl.Int256
}

func (*PQInnerData) CRC() uint32 { return crcPQInnerData }

func (o *PQInnerData) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutBytes(o.PQ)
	e.PutBytes(o.P)
	e.PutBytes(o.Q)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutInt256(o.NewNonce)
	return e.Bytes()
}

func (o *PQInnerData) Decode(d *tl.Decoder) error {
	var err error
	if o.PQ, err = d.PopBytes(); err != nil {
		return err
	}
	if o.P, err = d.PopBytes(); err != nil {
		return err
	}
	if o.Q, err = d.PopBytes(); err != nil {
		return err
	}
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	o.NewNonce, err = d.PopInt256()
	return err
}

// ReqDHParams — round 2 request.
type ReqDHParams struct {
	Nonce                tl.Int128
	ServerNonce          tl.Int128
	P                     []byte
	Q                     []byte
	PublicKeyFingerprint int64
	EncryptedData        []byte
}

func (*ReqDHParams) CRC() uint32 { return crcReqDHParams }

func (o *ReqDHParams) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutBytes(o.P)
	e.PutBytes(o.Q)
	e.PutInt64(o.PublicKeyFingerprint)
	e.PutBytes(o.EncryptedData)
	return e.Bytes()
}

func (o *ReqDHParams) Decode(d *tl.Decoder) error {
	return errors.New("objects: ReqDHParams is client-to-server only")
}

// ServerDHParamsOk — round 2 response (the _fail variant is a distinct type
// so the negotiator can type-switch and abort cleanly).
type ServerDHParamsOk struct {
	Nonce           tl.Int128
	ServerNonce     tl.Int128
	EncryptedAnswer []byte
}

func (*ServerDHParamsOk) CRC() uint32 { return crcServerDHParamsOk }

func (o *ServerDHParamsOk) Decode(d *tl.Decoder) error {
	var err error
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	o.EncryptedAnswer, err = d.PopBytes()
	return err
}

func (o *ServerDHParamsOk) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutBytes(o.EncryptedAnswer)
	return e.Bytes()
}

type ServerDHParamsFail struct {
	Nonce           tl.Int128
	ServerNonce     tl.Int128
	NewNonceHash1   tl.Int128
}

func (*ServerDHParamsFail) CRC() uint32 { return crcServerDHParamsFail }

func (o *ServerDHParamsFail) Decode(d *tl.Decoder) error {
	var err error
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	o.NewNonceHash1, err = d.PopInt128()
	return err
}

func (o *ServerDHParamsFail) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutInt128(o.NewNonceHash1)
	return e.Bytes()
}

// ServerDHInnerData is the AES-IGE-decrypted body of ServerDHParamsOk.
type ServerDHInnerData struct {
	Nonce       tl.Int128
	ServerNonce tl.Int128
	G           int32
	DHPrime     []byte
	GA          []byte
	ServerTime  int32
}

func (*ServerDHInnerData) CRC() uint32 { return crcServerDHInnerData }

func (o *ServerDHInnerData) Decode(d *tl.Decoder) error {
	var err error
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.G, err = d.PopInt32(); err != nil {
		return err
	}
	if o.DHPrime, err = d.PopBytes(); err != nil {
		return err
	}
	if o.GA, err = d.PopBytes(); err != nil {
		return err
	}
	o.ServerTime, err = d.PopInt32()
	return err
}

func (o *ServerDHInnerData) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutInt32(o.G)
	e.PutBytes(o.DHPrime)
	e.PutBytes(o.GA)
	e.PutInt32(o.ServerTime)
	return e.Bytes()
}

// ClientDHInnerData is round 3's encrypted payload.
type ClientDHInnerData struct {
	Nonce       tl.Int128
	ServerNonce tl.Int128
	RetryID     int64
	GB          []byte
}

func (*ClientDHInnerData) CRC() uint32 { return crcClientDHInnerData }

func (o *ClientDHInnerData) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutInt64(o.RetryID)
	e.PutBytes(o.GB)
	return e.Bytes()
}

func (o *ClientDHInnerData) Decode(d *tl.Decoder) error {
	return errors.New("objects: ClientDHInnerData is client-to-server only")
}

// SetClientDHParams — round 3 request.
type SetClientDHParams struct {
	Nonce         tl.Int128
	ServerNonce   tl.Int128
	EncryptedData []byte
}

func (*SetClientDHParams) CRC() uint32 { return crcSetClientDHParams }

func (o *SetClientDHParams) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutBytes(o.EncryptedData)
	return e.Bytes()
}

func (o *SetClientDHParams) Decode(d *tl.Decoder) error {
	return errors.New("objects: SetClientDHParams is client-to-server only")
}

// DHGenOk / DHGenRetry / DHGenFail — round 3 response variants.
type DHGenOk struct {
	Nonce         tl.Int128
	ServerNonce   tl.Int128
	NewNonceHash1 tl.Int128
}

func (*DHGenOk) CRC() uint32 { return crcDHGenOk }

func (o *DHGenOk) Decode(d *tl.Decoder) error {
	var err error
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	o.NewNonceHash1, err = d.PopInt128()
	return err
}

func (o *DHGenOk) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutInt128(o.NewNonceHash1)
	return e.Bytes()
}

type DHGenRetry struct {
	Nonce         tl.Int128
	ServerNonce   tl.Int128
	NewNonceHash2 tl.Int128
}

func (*DHGenRetry) CRC() uint32 { return crcDHGenRetry }

func (o *DHGenRetry) Decode(d *tl.Decoder) error {
	var err error
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	o.NewNonceHash2, err = d.PopInt128()
	return err
}

func (o *DHGenRetry) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutInt128(o.NewNonceHash2)
	return e.Bytes()
}

type DHGenFail struct {
	Nonce         tl.Int128
	ServerNonce   tl.Int128
	NewNonceHash3 tl.Int128
}

func (*DHGenFail) CRC() uint32 { return crcDHGenFail }

func (o *DHGenFail) Decode(d *tl.Decoder) error {
	var err error
	if o.Nonce, err = d.PopInt128(); err != nil {
		return err
	}
	if o.ServerNonce, err = d.PopInt128(); err != nil {
		return err
	}
	o.NewNonceHash3, err = d.PopInt128()
	return err
}

func (o *DHGenFail) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt128(o.Nonce)
	e.PutInt128(o.ServerNonce)
	e.PutInt128(o.NewNonceHash3)
	return e.Bytes()
}

func init() {
	Register(crcReqPQ, func() tl.Decodable { return &ReqPQ{} })
	Register(crcResPQ, func() tl.Decodable { return &ResPQ{} })
	Register(crcPQInnerData, func() tl.Decodable { return &PQInnerData{} })
	Register(crcServerDHParamsOk, func() tl.Decodable { return &ServerDHParamsOk{} })
	Register(crcServerDHParamsFail, func() tl.Decodable { return &ServerDHParamsFail{} })
	Register(crcServerDHInnerData, func() tl.Decodable { return &ServerDHInnerData{} })
	Register(crcDHGenOk, func() tl.Decodable { return &DHGenOk{} })
	Register(crcDHGenRetry, func() tl.Decodable { return &DHGenRetry{} })
	Register(crcDHGenFail, func() tl.Decodable { return &DHGenFail{} })
}
