package crypto

import (
	"crypto/aes"

	"github.com/pkg/errors"
)

// IGEEncrypt runs AES-256 in Infinite Garble Extension mode. iv is 32 bytes:
// the first 16 are the "previous ciphertext" chain, the last 16 the
// "previous plaintext" chain, as used by the handshake and every
// post-handshake message envelope.
func IGEEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	return ige(key, iv, plaintext, true)
}

func IGEDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	return ige(key, iv, ciphertext, false)
}

func ige(key, iv, data []byte, encrypt bool) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.Errorf("crypto: ige input length %d is not a multiple of %d", len(data), aes.BlockSize)
	}
	if len(iv) != aes.BlockSize*2 {
		return nil, errors.Errorf("crypto: ige iv must be %d bytes, got %d", aes.BlockSize*2, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "ige: building aes cipher")
	}

	out := make([]byte, len(data))

	// iv is two chained 16-byte halves. Encryption chains (y_prev=iv1,
	// x_prev=iv2); decryption chains (iv1_prev=iv1, iv2_prev=iv2) with the
	// XOR order reversed, per the MTProto IGE definition.
	var prevA, prevB [aes.BlockSize]byte
	copy(prevA[:], iv[:aes.BlockSize])
	copy(prevB[:], iv[aes.BlockSize:])

	var tmp, outBlk [aes.BlockSize]byte
	for off := 0; off < len(data); off += aes.BlockSize {
		chunk := data[off : off+aes.BlockSize]

		if encrypt {
			// y = E(x XOR y_prev) XOR x_prev; x_prev=x; y_prev=y
			xorBlock(tmp[:], chunk, prevA[:])
			block.Encrypt(outBlk[:], tmp[:])
			xorBlock(outBlk[:], outBlk[:], prevB[:])
			copy(out[off:off+aes.BlockSize], outBlk[:])
			copy(prevB[:], chunk)
			copy(prevA[:], outBlk[:])
		} else {
			// x = D(y XOR iv2_prev) XOR iv1_prev; iv1_prev=y; iv2_prev=x
			xorBlock(tmp[:], chunk, prevB[:])
			block.Decrypt(outBlk[:], tmp[:])
			xorBlock(outBlk[:], outBlk[:], prevA[:])
			copy(out[off:off+aes.BlockSize], outBlk[:])
			copy(prevA[:], chunk)
			copy(prevB[:], outBlk[:])
		}
	}

	return out, nil
}

func xorBlock(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
