package objects

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/encoding/tl"
)

// MessageContainer is a flat batch of submessages; the session processes
// each one in order. Elements are (msg_id, seqno, body-bytes) triples; the
// session layer re-decodes each body itself, so this type keeps raw bytes.
type MessageContainer struct {
	Items []ContainerItem
}

type ContainerItem struct {
	MsgID int64
	SeqNo int32
	Body  []byte
}

func (*MessageContainer) CRC() uint32 { return crcMsgContainer }

func (o *MessageContainer) Decode(d *tl.Decoder) error {
	n, err := d.PopInt32()
	if err != nil {
		return err
	}
	o.Items = make([]ContainerItem, n)
	for i := range o.Items {
		msgID, err := d.PopInt64()
		if err != nil {
			return err
		}
		seqNo, err := d.PopInt32()
		if err != nil {
			return err
		}
		length, err := d.PopInt32()
		if err != nil {
			return err
		}
		body, err := d.PopRaw(int(length))
		if err != nil {
			return err
		}
		o.Items[i] = ContainerItem{MsgID: msgID, SeqNo: seqNo, Body: body}
	}
	return nil
}

func (o *MessageContainer) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(int32(len(o.Items)))
	for _, it := range o.Items {
		e.PutInt64(it.MsgID)
		e.PutInt32(it.SeqNo)
		e.PutInt32(int32(len(it.Body)))
		e.PutRawBytes(it.Body)
	}
	return e.Bytes()
}

// NewSessionCreated notifies the client of a fresh server salt.
type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (*NewSessionCreated) CRC() uint32 { return crcNewSessionCreated }

func (o *NewSessionCreated) Decode(d *tl.Decoder) error {
	var err error
	if o.FirstMsgID, err = d.PopInt64(); err != nil {
		return err
	}
	if o.UniqueID, err = d.PopInt64(); err != nil {
		return err
	}
	o.ServerSalt, err = d.PopInt64()
	return err
}

func (o *NewSessionCreated) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.FirstMsgID)
	e.PutInt64(o.UniqueID)
	e.PutInt64(o.ServerSalt)
	return e.Bytes()
}

// BadServerSalt tells the session to resend with a new salt.
type BadServerSalt struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
	NewSalt     int64
}

func (*BadServerSalt) CRC() uint32 { return crcBadServerSalt }

func (o *BadServerSalt) Decode(d *tl.Decoder) error {
	var err error
	if o.BadMsgID, err = d.PopInt64(); err != nil {
		return err
	}
	if o.BadMsgSeqNo, err = d.PopInt32(); err != nil {
		return err
	}
	if o.ErrorCode, err = d.PopInt32(); err != nil {
		return err
	}
	o.NewSalt, err = d.PopInt64()
	return err
}

func (o *BadServerSalt) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.BadMsgID)
	e.PutInt32(o.BadMsgSeqNo)
	e.PutInt32(o.ErrorCode)
	e.PutInt64(o.NewSalt)
	return e.Bytes()
}

// BadMsgNotification signals a msg_id/seqno/clock problem. ErrorCode 16/17
// are clock skew and are recoverable by resyncing delta_time.
type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqNo int32
	ErrorCode   int32
}

func (*BadMsgNotification) CRC() uint32 { return crcBadMsgNotify }

func (o *BadMsgNotification) Decode(d *tl.Decoder) error {
	var err error
	if o.BadMsgID, err = d.PopInt64(); err != nil {
		return err
	}
	if o.BadMsgSeqNo, err = d.PopInt32(); err != nil {
		return err
	}
	o.ErrorCode, err = d.PopInt32()
	return err
}

func (o *BadMsgNotification) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.BadMsgID)
	e.PutInt32(o.BadMsgSeqNo)
	e.PutInt32(o.ErrorCode)
	return e.Bytes()
}

// IsClockSkew reports whether this is one of the two clock-skew error codes
// the session recovers from by resyncing delta_time and resending.
func (o *BadMsgNotification) IsClockSkew() bool {
	return o.ErrorCode == 16 || o.ErrorCode == 17
}

// MsgsAck lists msg_ids the server has received and processed.
type MsgsAck struct {
	MsgIDs []int64
}

func (*MsgsAck) CRC() uint32 { return crcMsgsAck }

func (o *MsgsAck) Decode(d *tl.Decoder) error {
	n, err := d.PopVectorHeader()
	if err != nil {
		return err
	}
	o.MsgIDs = make([]int64, n)
	for i := range o.MsgIDs {
		if o.MsgIDs[i], err = d.PopInt64(); err != nil {
			return err
		}
	}
	return nil
}

func (o *MsgsAck) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutVectorHeader(len(o.MsgIDs))
	for _, id := range o.MsgIDs {
		e.PutInt64(id)
	}
	return e.Bytes()
}

// Ping / Pong — keepalive.
type Ping struct {
	PingID int64
}

func (*Ping) CRC() uint32 { return crcPing }

func (o *Ping) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.PingID)
	return e.Bytes()
}

func (o *Ping) Decode(d *tl.Decoder) error {
	var err error
	o.PingID, err = d.PopInt64()
	return err
}

// PingDelayDisconnect keeps the connection alive server-side for
// DisconnectDelay seconds beyond the next ping.
type PingDelayDisconnect struct {
	PingID         int64
	DisconnectDelay int32
}

func (*PingDelayDisconnect) CRC() uint32 { return crcPingDelayDiscon }

func (o *PingDelayDisconnect) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.PingID)
	e.PutInt32(o.DisconnectDelay)
	return e.Bytes()
}

func (o *PingDelayDisconnect) Decode(d *tl.Decoder) error {
	var err error
	if o.PingID, err = d.PopInt64(); err != nil {
		return err
	}
	o.DisconnectDelay, err = d.PopInt32()
	return err
}

type Pong struct {
	MsgID  int64
	PingID int64
}

func (*Pong) CRC() uint32 { return crcPong }

func (o *Pong) Decode(d *tl.Decoder) error {
	var err error
	if o.MsgID, err = d.PopInt64(); err != nil {
		return err
	}
	o.PingID, err = d.PopInt64()
	return err
}

func (o *Pong) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.MsgID)
	e.PutInt64(o.PingID)
	return e.Bytes()
}

// FutureSalts / FutureSalt — server-issued salt rotation schedule.
type FutureSalt struct {
	ValidSince int32
	ValidUntil int32
	Salt       int64
}

type FutureSalts struct {
	ReqMsgID int64
	Now      int32
	Salts    []FutureSalt
}

func (*FutureSalts) CRC() uint32 { return crcFutureSalts }

func (o *FutureSalts) Decode(d *tl.Decoder) error {
	var err error
	if o.ReqMsgID, err = d.PopInt64(); err != nil {
		return err
	}
	if o.Now, err = d.PopInt32(); err != nil {
		return err
	}
	n, err := d.PopVectorHeader()
	if err != nil {
		return err
	}
	o.Salts = make([]FutureSalt, n)
	for i := range o.Salts {
		crc, err := d.PopUint32()
		if err != nil {
			return err
		}
		if crc != crcFutureSalt {
			return &tl.DecodeError{Tag: crc, Offset: d.Offset()}
		}
		if o.Salts[i].ValidSince, err = d.PopInt32(); err != nil {
			return err
		}
		if o.Salts[i].ValidUntil, err = d.PopInt32(); err != nil {
			return err
		}
		if o.Salts[i].Salt, err = d.PopInt64(); err != nil {
			return err
		}
	}
	return nil
}

func (o *FutureSalts) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.ReqMsgID)
	e.PutInt32(o.Now)
	e.PutVectorHeader(len(o.Salts))
	for _, s := range o.Salts {
		e.PutUint32(crcFutureSalt)
		e.PutInt32(s.ValidSince)
		e.PutInt32(s.ValidUntil)
		e.PutInt64(s.Salt)
	}
	return e.Bytes()
}

// RpcError carries a server-reported failure for a specific request.
type RpcError struct {
	ErrorCode    int32
	ErrorMessage string
}

func (*RpcError) CRC() uint32 { return crcRpcError }

func (o *RpcError) Decode(d *tl.Decoder) error {
	var err error
	if o.ErrorCode, err = d.PopInt32(); err != nil {
		return err
	}
	o.ErrorMessage, err = d.PopString()
	return err
}

func (o *RpcError) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.ErrorCode)
	e.PutString(o.ErrorMessage)
	return e.Bytes()
}

// RpcResult wraps a reply body (or an RpcError) tagged by the originating
// request's msg_id. Obj is decoded eagerly by RpcResult.Decode so callers
// never need a second pass; GzipPacked bodies are inflated transparently.
type RpcResult struct {
	ReqMsgID int64
	Obj      tl.Object
}

func (*RpcResult) CRC() uint32 { return crcRpcResult }

func (o *RpcResult) Decode(d *tl.Decoder) error {
	reqMsgID, err := d.PopInt64()
	if err != nil {
		return err
	}
	o.ReqMsgID = reqMsgID

	obj, err := tl.DecodeUnknownObject(d)
	if err != nil {
		return errors.Wrap(err, "decoding rpc_result body")
	}
	if gz, ok := obj.(*GzipPacked); ok {
		obj = gz.Obj
	}
	o.Obj = obj
	return nil
}

func (o *RpcResult) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt64(o.ReqMsgID)
	if enc, ok := o.Obj.(interface{ Encode() []byte }); ok {
		e.PutRawBytes(enc.Encode())
	}
	return e.Bytes()
}

// GzipPacked transparently wraps a gzip-deflated encoded object; some server
// replies arrive gzipped for no documented reason and must be reprocessed.
type GzipPacked struct {
	Obj tl.Object
}

func (*GzipPacked) CRC() uint32 { return crcGzipPacked }

func (o *GzipPacked) Decode(d *tl.Decoder) error {
	packed, err := d.PopBytes()
	if err != nil {
		return err
	}
	r, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return errors.Wrap(err, "opening gzip_packed body")
	}
	defer r.Close()
	inflated, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "inflating gzip_packed body")
	}
	obj, err := tl.DecodeUnknownObjectBytes(inflated)
	if err != nil {
		return errors.Wrap(err, "decoding inflated gzip_packed body")
	}
	o.Obj = obj
	return nil
}

func (o *GzipPacked) Encode() []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if enc, ok := o.Obj.(interface{ Encode() []byte }); ok {
		w.Write(enc.Encode())
	}
	w.Close()

	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutBytes(buf.Bytes())
	return e.Bytes()
}

func init() {
	Register(crcMsgContainer, func() tl.Decodable { return &MessageContainer{} })
	Register(crcNewSessionCreated, func() tl.Decodable { return &NewSessionCreated{} })
	Register(crcBadServerSalt, func() tl.Decodable { return &BadServerSalt{} })
	Register(crcBadMsgNotify, func() tl.Decodable { return &BadMsgNotification{} })
	Register(crcMsgsAck, func() tl.Decodable { return &MsgsAck{} })
	Register(crcPingDelayDiscon, func() tl.Decodable { return &PingDelayDisconnect{} })
	Register(crcPong, func() tl.Decodable { return &Pong{} })
	Register(crcFutureSalts, func() tl.Decodable { return &FutureSalts{} })
	Register(crcRpcResult, func() tl.Decodable { return &RpcResult{} })
	Register(crcRpcError, func() tl.Decodable { return &RpcError{} })
	Register(crcGzipPacked, func() tl.Decodable { return &GzipPacked{} })
}
