package crypto

import "math/big"

// ModExp computes base^exp mod m over arbitrary-precision integers, used for
// the 2048-bit Diffie-Hellman exchange in the auth-key handshake.
func ModExp(base, exp, mod []byte) []byte {
	b := new(big.Int).SetBytes(base)
	e := new(big.Int).SetBytes(exp)
	m := new(big.Int).SetBytes(mod)
	return new(big.Int).Exp(b, e, m).Bytes()
}

// ModExpBig is the big.Int-native variant, used internally where callers
// already hold parsed integers (e.g. the negotiator's DH step).
func ModExpBig(base, exp, mod *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, mod)
}
