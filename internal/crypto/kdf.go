package crypto

// DeriveMessageKeys implements the MTProto v1 KDF: four SHA-1 invocations
// over msg_key concatenated with fixed 32-byte windows of auth_key, sliced
// and concatenated per the spec. fromClient selects which of the two offset
// sets (x=0 or x=8, a byte offset into auth_key) applies: a message is encrypted with
// x=0 when sent by the client and x=8 when received from the server, so the
// two sides derive different keys from the same msg_key and auth_key.
func DeriveMessageKeys(authKey, msgKey []byte, fromClient bool) (aesKey, aesIV []byte) {
	x := 0
	if !fromClient {
		x = 8
	}

	sha1a := SHA1(msgKey, authKey[x:x+32])
	sha1b := SHA1(authKey[32+x:32+x+16], msgKey, authKey[48+x:48+x+16])
	sha1c := SHA1(authKey[64+x:64+x+32], msgKey)
	sha1d := SHA1(msgKey, authKey[96+x:96+x+32])

	aesKey = concat(sha1a[0:8], sha1b[8:20], sha1c[4:16])
	aesIV = concat(sha1a[8:20], sha1b[0:8], sha1c[16:20], sha1d[0:8])
	return aesKey, aesIV
}

func concat(parts ...[]byte) []byte {
	var total int
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
