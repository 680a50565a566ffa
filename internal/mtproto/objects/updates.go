package objects

import (
	"github.com/pkg/errors"

	"github.com/gomtp/mtproto/internal/encoding/tl"
)

// GapSignal is implemented by update variants that carry a pts/pts_count
// pair the dispatcher's gap detector needs; see SPEC_FULL.md §4.6.
type GapSignal interface {
	GapInfo() (pts, ptsCount int32)
}

// UpdatesState is the server's canonical (pts, qts, date, seq) tuple,
// returned by updates.getState and embedded in updates.Difference.
type UpdatesState struct {
	Pts         int32
	Qts         int32
	Date        int32
	Seq         int32
	UnreadCount int32
}

func (*UpdatesState) CRC() uint32 { return crcUpdatesState }

func (o *UpdatesState) Decode(d *tl.Decoder) error {
	var err error
	if o.Pts, err = d.PopInt32(); err != nil {
		return err
	}
	if o.Qts, err = d.PopInt32(); err != nil {
		return err
	}
	if o.Date, err = d.PopInt32(); err != nil {
		return err
	}
	if o.Seq, err = d.PopInt32(); err != nil {
		return err
	}
	o.UnreadCount, err = d.PopInt32()
	return err
}

func (o *UpdatesState) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.Pts)
	e.PutInt32(o.Qts)
	e.PutInt32(o.Date)
	e.PutInt32(o.Seq)
	e.PutInt32(o.UnreadCount)
	return e.Bytes()
}

// UpdatesDifferenceEmpty means nothing changed since the requested pts/date
// beyond the server's own clock; the dispatcher still adopts Date/Seq.
type UpdatesDifferenceEmpty struct {
	Date int32
	Seq  int32
}

func (*UpdatesDifferenceEmpty) CRC() uint32 { return crcUpdatesDiffEmpty }

func (o *UpdatesDifferenceEmpty) Decode(d *tl.Decoder) error {
	var err error
	if o.Date, err = d.PopInt32(); err != nil {
		return err
	}
	o.Seq, err = d.PopInt32()
	return err
}

func (o *UpdatesDifferenceEmpty) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.Date)
	e.PutInt32(o.Seq)
	return e.Bytes()
}

// UpdatesDifferenceTooLong means the gap is too large to replay; the
// dispatcher must drop its local pts and reset from this value.
type UpdatesDifferenceTooLong struct {
	Pts int32
}

func (*UpdatesDifferenceTooLong) CRC() uint32 { return crcUpdatesTooLong }

func (o *UpdatesDifferenceTooLong) Decode(d *tl.Decoder) error {
	var err error
	o.Pts, err = d.PopInt32()
	return err
}

func (o *UpdatesDifferenceTooLong) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.Pts)
	return e.Bytes()
}

// UpdatesDifference is the non-empty, non-too-long case. The full schema
// also carries new_messages/new_encrypted_messages/users/chats vectors;
// this client has no Message/User/Chat decoder (out of scope per
// SPEC_FULL.md's Non-goals on full entity schemas), so OtherUpdates and
// State are decoded and the entity vectors are consumed as an opaque tail
// that is never re-examined. Good enough for pts/qts bookkeeping, not for
// rendering message content.
type UpdatesDifference struct {
	OtherUpdates []tl.Object
	State        *UpdatesState
	RawTail      []byte
}

func (*UpdatesDifference) CRC() uint32 { return crcUpdatesDifference }

func (o *UpdatesDifference) Decode(d *tl.Decoder) error {
	n, err := d.PopVectorHeader()
	if err != nil {
		return errors.Wrap(err, "updates.difference: new_messages vector")
	}
	for i := 0; i < n; i++ {
		if _, err := tl.DecodeUnknownObject(d); err != nil {
			return errors.Wrap(err, "updates.difference: skipping new_messages entry")
		}
	}
	if n, err = d.PopVectorHeader(); err != nil {
		return errors.Wrap(err, "updates.difference: new_encrypted_messages vector")
	}
	for i := 0; i < n; i++ {
		if _, err := tl.DecodeUnknownObject(d); err != nil {
			return errors.Wrap(err, "updates.difference: skipping new_encrypted_messages entry")
		}
	}

	n, err = d.PopVectorHeader()
	if err != nil {
		return errors.Wrap(err, "updates.difference: other_updates vector")
	}
	o.OtherUpdates = make([]tl.Object, 0, n)
	for i := 0; i < n; i++ {
		obj, err := tl.DecodeUnknownObject(d)
		if err != nil {
			return errors.Wrap(err, "updates.difference: other_updates entry")
		}
		o.OtherUpdates = append(o.OtherUpdates, obj)
	}

	o.RawTail = nil // chats/users vectors: no decoder, nothing further to recover safely.

	crc, err := d.PopUint32()
	if err != nil {
		return errors.Wrap(err, "updates.difference: state tag")
	}
	if crc != crcUpdatesState {
		return &tl.DecodeError{Tag: crc, Offset: d.Offset()}
	}
	state := &UpdatesState{}
	if err := state.Decode(d); err != nil {
		return err
	}
	o.State = state
	return nil
}

func (o *UpdatesDifference) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutVectorHeader(0) // new_messages: not modeled, always emitted empty
	e.PutVectorHeader(0) // new_encrypted_messages
	e.PutVectorHeader(len(o.OtherUpdates))
	for _, u := range o.OtherUpdates {
		if enc, ok := u.(interface{ Encode() []byte }); ok {
			e.PutRawBytes(enc.Encode())
		}
	}
	if o.State != nil {
		e.PutRawBytes(o.State.Encode())
	}
	return e.Bytes()
}

// UpdatesObj is the general-purpose "bag of updates" push. Like
// UpdatesDifference, its Users/Chats vectors are left undecoded.
type UpdatesObj struct {
	Updates []tl.Object
	Date    int32
	Seq     int32
}

func (*UpdatesObj) CRC() uint32 { return crcUpdatesObj }

func (o *UpdatesObj) Decode(d *tl.Decoder) error {
	n, err := d.PopVectorHeader()
	if err != nil {
		return errors.Wrap(err, "updates: updates vector")
	}
	o.Updates = make([]tl.Object, 0, n)
	for i := 0; i < n; i++ {
		obj, err := tl.DecodeUnknownObject(d)
		if err != nil {
			return errors.Wrap(err, "updates: updates entry")
		}
		o.Updates = append(o.Updates, obj)
	}

	// users/chats vectors follow here with no registered decoder; without
	// them we cannot locate date/seq reliably, so this constructor reports
	// date/seq as zero and callers fall back to each update's own pts.
	return nil
}

func (o *UpdatesObj) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutVectorHeader(len(o.Updates))
	for _, u := range o.Updates {
		if enc, ok := u.(interface{ Encode() []byte }); ok {
			e.PutRawBytes(enc.Encode())
		}
	}
	e.PutVectorHeader(0) // chats
	e.PutVectorHeader(0) // users
	e.PutInt32(o.Date)
	e.PutInt32(o.Seq)
	return e.Bytes()
}

// UpdatesCombined is rejected outright: Decode always fails, so the read
// loop reports such a payload on Warnings and it never reaches the
// dispatcher; seq_start/seq ranges are not replayed (see DESIGN.md Open
// Questions — resolved against implementing combined-range replay).
type UpdatesCombined struct{}

func (*UpdatesCombined) CRC() uint32 { return crcUpdatesCombined }

func (o *UpdatesCombined) Decode(d *tl.Decoder) error {
	return errors.New("objects: updatesCombined is intentionally unsupported, treat as a gap")
}

func (o *UpdatesCombined) Encode() []byte {
	panic("objects: UpdatesCombined cannot be encoded, it is never constructed")
}

// UpdateShortMessage is the common single-private-message push.
type UpdateShortMessage struct {
	Flags    int32
	ID       int32
	UserID   int64
	Message  string
	PTS      int32
	PTSCount int32
	Date     int32
}

func (*UpdateShortMessage) CRC() uint32 { return crcUpdateShortMessage }

func (o *UpdateShortMessage) GapInfo() (pts, ptsCount int32) { return o.PTS, o.PTSCount }

func (o *UpdateShortMessage) Decode(d *tl.Decoder) error {
	var err error
	if o.Flags, err = d.PopInt32(); err != nil {
		return err
	}
	if o.ID, err = d.PopInt32(); err != nil {
		return err
	}
	if o.UserID, err = d.PopInt64(); err != nil {
		return err
	}
	if o.Message, err = d.PopString(); err != nil {
		return err
	}
	if o.PTS, err = d.PopInt32(); err != nil {
		return err
	}
	if o.PTSCount, err = d.PopInt32(); err != nil {
		return err
	}
	o.Date, err = d.PopInt32()
	return err
}

func (o *UpdateShortMessage) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.Flags)
	e.PutInt32(o.ID)
	e.PutInt64(o.UserID)
	e.PutString(o.Message)
	e.PutInt32(o.PTS)
	e.PutInt32(o.PTSCount)
	e.PutInt32(o.Date)
	return e.Bytes()
}

// UpdateShortChatMessage is the group-chat analogue of UpdateShortMessage.
type UpdateShortChatMessage struct {
	Flags    int32
	ID       int32
	FromID   int64
	ChatID   int64
	Message  string
	PTS      int32
	PTSCount int32
	Date     int32
}

func (*UpdateShortChatMessage) CRC() uint32 { return crcUpdateShortChatMsg }

func (o *UpdateShortChatMessage) GapInfo() (pts, ptsCount int32) { return o.PTS, o.PTSCount }

func (o *UpdateShortChatMessage) Decode(d *tl.Decoder) error {
	var err error
	if o.Flags, err = d.PopInt32(); err != nil {
		return err
	}
	if o.ID, err = d.PopInt32(); err != nil {
		return err
	}
	if o.FromID, err = d.PopInt64(); err != nil {
		return err
	}
	if o.ChatID, err = d.PopInt64(); err != nil {
		return err
	}
	if o.Message, err = d.PopString(); err != nil {
		return err
	}
	if o.PTS, err = d.PopInt32(); err != nil {
		return err
	}
	if o.PTSCount, err = d.PopInt32(); err != nil {
		return err
	}
	o.Date, err = d.PopInt32()
	return err
}

func (o *UpdateShortChatMessage) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.Flags)
	e.PutInt32(o.ID)
	e.PutInt64(o.FromID)
	e.PutInt64(o.ChatID)
	e.PutString(o.Message)
	e.PutInt32(o.PTS)
	e.PutInt32(o.PTSCount)
	e.PutInt32(o.Date)
	return e.Bytes()
}

// UpdateNewMessage wraps one boxed Update entry carrying a freshly
// delivered message; Message is kept as raw bytes since the client has no
// Message schema decoder.
type UpdateNewMessage struct {
	Message  []byte
	PTS      int32
	PTSCount int32
}

func (*UpdateNewMessage) CRC() uint32 { return crcUpdateNewMessage }

func (o *UpdateNewMessage) GapInfo() (pts, ptsCount int32) { return o.PTS, o.PTSCount }

func (o *UpdateNewMessage) Decode(d *tl.Decoder) error {
	if _, err := tl.DecodeUnknownObject(d); err != nil {
		return errors.Wrap(err, "update_new_message: message body")
	}
	var err error
	if o.PTS, err = d.PopInt32(); err != nil {
		return err
	}
	o.PTSCount, err = d.PopInt32()
	return err
}

func (o *UpdateNewMessage) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutRawBytes(o.Message)
	e.PutInt32(o.PTS)
	e.PutInt32(o.PTSCount)
	return e.Bytes()
}

func init() {
	Register(crcUpdatesState, func() tl.Decodable { return &UpdatesState{} })
	Register(crcUpdatesDiffEmpty, func() tl.Decodable { return &UpdatesDifferenceEmpty{} })
	Register(crcUpdatesTooLong, func() tl.Decodable { return &UpdatesDifferenceTooLong{} })
	Register(crcUpdatesDifference, func() tl.Decodable { return &UpdatesDifference{} })
	Register(crcUpdatesObj, func() tl.Decodable { return &UpdatesObj{} })
	Register(crcUpdatesCombined, func() tl.Decodable { return &UpdatesCombined{} })
	Register(crcUpdateShortMessage, func() tl.Decodable { return &UpdateShortMessage{} })
	Register(crcUpdateShortChatMsg, func() tl.Decodable { return &UpdateShortChatMessage{} })
	Register(crcUpdateNewMessage, func() tl.Decodable { return &UpdateNewMessage{} })
}
