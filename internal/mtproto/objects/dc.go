package objects

import "github.com/gomtp/mtproto/internal/encoding/tl"

// DcOption flags, per core.telegram.org/schema.
const (
	DcOptionIPv6        = 1 << 0
	DcOptionMediaOnly    = 1 << 1
	DcOptionTCPObfuscated = 1 << 2
	DcOptionCDN          = 1 << 3
	DcOptionStatic       = 1 << 4
)

// DcOption is one reachable address for a datacenter; a DC typically
// advertises several (IPv4/IPv6, main/media-only, static/obfuscated).
type DcOption struct {
	Flags   int32
	ID      int32
	IPAddr  string
	Port    int32
}

func (*DcOption) CRC() uint32 { return crcDcOption }

func (o *DcOption) HasFlag(bit int32) bool { return o.Flags&bit != 0 }

func (o *DcOption) Decode(d *tl.Decoder) error {
	var err error
	if o.Flags, err = d.PopInt32(); err != nil {
		return err
	}
	if o.ID, err = d.PopInt32(); err != nil {
		return err
	}
	if o.IPAddr, err = d.PopString(); err != nil {
		return err
	}
	o.Port, err = d.PopInt32()
	return err
}

func (o *DcOption) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.Flags)
	e.PutInt32(o.ID)
	e.PutString(o.IPAddr)
	e.PutInt32(o.Port)
	return e.Bytes()
}

// Config is the subset of help.getConfig's result the dispatcher consumes
// to pick and migrate between datacenters. Fields outside that subset
// (webfile URLs, autodownload tiers, and similar) are intentionally absent.
type Config struct {
	ThisDC           int32
	DCOptions        []*DcOption
	ChatSizeMax      int32
	MegagroupSizeMax int32
	ForwardedCountMax int32
}

func (*Config) CRC() uint32 { return crcConfig }

func (o *Config) Decode(d *tl.Decoder) error {
	var err error
	if o.ThisDC, err = d.PopInt32(); err != nil {
		return err
	}
	n, err := d.PopVectorHeader()
	if err != nil {
		return err
	}
	o.DCOptions = make([]*DcOption, n)
	for i := range o.DCOptions {
		crc, err := d.PopUint32()
		if err != nil {
			return err
		}
		if crc != crcDcOption {
			return &tl.DecodeError{Tag: crc, Offset: d.Offset()}
		}
		opt := &DcOption{}
		if err := opt.Decode(d); err != nil {
			return err
		}
		o.DCOptions[i] = opt
	}
	if o.ChatSizeMax, err = d.PopInt32(); err != nil {
		return err
	}
	if o.MegagroupSizeMax, err = d.PopInt32(); err != nil {
		return err
	}
	o.ForwardedCountMax, err = d.PopInt32()
	return err
}

func (o *Config) Encode() []byte {
	e := tl.NewEncoder()
	e.PutObject(o)
	e.PutInt32(o.ThisDC)
	e.PutVectorHeader(len(o.DCOptions))
	for _, opt := range o.DCOptions {
		e.PutRawBytes(opt.Encode())
	}
	e.PutInt32(o.ChatSizeMax)
	e.PutInt32(o.MegagroupSizeMax)
	e.PutInt32(o.ForwardedCountMax)
	return e.Bytes()
}

func init() {
	Register(crcDcOption, func() tl.Decodable { return &DcOption{} })
	Register(crcConfig, func() tl.Decodable { return &Config{} })
}
