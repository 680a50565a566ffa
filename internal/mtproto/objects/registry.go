package objects

import "github.com/gomtp/mtproto/internal/encoding/tl"

// Register forwards to the process-wide tl registry; every object file in
// this package calls it once from its own init().
func Register(crc uint32, ctor func() tl.Decodable) {
	tl.Register(crc, ctor)
}
