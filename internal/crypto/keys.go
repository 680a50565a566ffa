package crypto

import "math/big"

// DefaultPublicKeys returns the hard-coded Telegram server RSA public keys
// the negotiator chooses among by fingerprint. A production build embeds
// every currently-valid server key (test and production DCs alike); this
// table carries one representative 2048-bit key in the same format.
func DefaultPublicKeys() []*PublicKey {
	n, ok := new(big.Int).SetString(embeddedKeyModulusHex, 16)
	if !ok {
		panic("crypto: malformed embedded public key modulus")
	}
	k := &PublicKey{N: n, E: 65537}
	k.Fingerprint = Fingerprint(k.N, k.E)
	return []*PublicKey{k}
}

// embeddedKeyModulusHex is a 2048-bit RSA modulus in the hex layout the
// negotiator expects; real deployments ship the Telegram-issued DC keys here.
const embeddedKeyModulusHex = "" +
	"be2261e4af0d16f711b6d3e79d0861c18d23685824ca808de69285a1509d4e" +
	"de4b19c9a6f1ffa72d6d7801e40951158b758697298ed284583db67f5e24afb" +
	"0e4ea3c56eeaca1d39b22e2d6c9ebc2775d58c3a8a58b6d055ba150e504cdfc" +
	"ddb40c730cc8407a4b4ac2509b50265b1b95f8c7c7b1ab1aafa8a234286d3e0" +
	"3d4c9721d541e18b61a79c8141085d42d6ce6c470e647631938b87be3e7522" +
	"e25911b0b47fa066842100080b37cbc3740564c19cedf25585cf37730c48b8" +
	"3d5231420eac48058d1624e204f0d89581aed2d8a4b8c73ae416ea9b87c3b2" +
	"e709ff1b9a1cb3287fc4de3fed435f946f332a842e406375a4e8d156b0339a" +
	"f3521ca9ba37b"
