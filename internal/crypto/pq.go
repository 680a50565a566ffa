package crypto

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// FactorPQ splits pq (<= 2^63) into its two prime factors p < q, using
// Pollard's rho/Brent algorithm as the source does. The result is verified
// by back-multiplication before being returned.
func FactorPQ(pq uint64) (p, q uint64, err error) {
	if pq < 2 {
		return 0, 0, errors.Errorf("crypto: pq %d is too small to factor", pq)
	}
	if pq%2 == 0 {
		p, q = 2, pq/2
		return orderAndVerify(p, q, pq)
	}

	n := new(big.Int).SetUint64(pq)
	factor, err := brentFactor(n)
	if err != nil {
		return 0, 0, errors.Wrap(err, "factoring pq")
	}

	other := new(big.Int).Div(n, factor)
	return orderAndVerify(factor.Uint64(), other.Uint64(), pq)
}

func orderAndVerify(a, b, pq uint64) (p, q uint64, err error) {
	if a > b {
		a, b = b, a
	}
	if a == 0 || a*b != pq {
		return 0, 0, errors.Errorf("crypto: factoring produced invalid split %d*%d != %d", a, b, pq)
	}
	return a, b, nil
}

// brentFactor returns a non-trivial factor of n (which must be composite and
// odd) using Brent's improvement over Pollard's rho.
func brentFactor(n *big.Int) (*big.Int, error) {
	if n.ProbablyPrime(20) {
		return nil, errors.New("crypto: pq is prime, cannot factor")
	}

	one := big.NewInt(1)
	for attempt := 0; attempt < 64; attempt++ {
		c, err := randBigInt(n)
		if err != nil {
			return nil, err
		}
		if c.Sign() == 0 {
			c = one
		}

		y, err := randBigInt(n)
		if err != nil {
			return nil, err
		}

		m := big.NewInt(128)
		g, r, q := big.NewInt(1), big.NewInt(1), big.NewInt(1)
		var x, ys *big.Int

		for g.Cmp(one) == 0 {
			x = new(big.Int).Set(y)
			for i := big.NewInt(0); i.Cmp(r) < 0; i.Add(i, one) {
				y = f(y, c, n)
			}

			k := big.NewInt(0)
			for k.Cmp(r) < 0 && g.Cmp(one) == 0 {
				ys = new(big.Int).Set(y)

				limit := new(big.Int).Sub(r, k)
				if limit.Cmp(m) > 0 {
					limit = m
				}
				for i := big.NewInt(0); i.Cmp(limit) < 0; i.Add(i, one) {
					y = f(y, c, n)
					diff := new(big.Int).Sub(x, y)
					diff.Abs(diff)
					q.Mod(new(big.Int).Mul(q, diff), n)
				}
				g = new(big.Int).GCD(nil, nil, q, n)
				k.Add(k, m)
			}
			r.Mul(r, big.NewInt(2))
		}

		if g.Cmp(n) == 0 {
			for {
				ys = f(ys, c, n)
				diff := new(big.Int).Sub(x, ys)
				diff.Abs(diff)
				g = new(big.Int).GCD(nil, nil, diff, n)
				if g.Cmp(one) > 0 {
					break
				}
			}
		}

		if g.Cmp(n) != 0 && g.Cmp(one) != 0 {
			return g, nil
		}
	}
	return nil, errors.New("crypto: pollard-rho/brent failed to converge")
}

func f(x, c, n *big.Int) *big.Int {
	x2 := new(big.Int).Mul(x, x)
	x2.Add(x2, c)
	return x2.Mod(x2, n)
}

func randBigInt(n *big.Int) (*big.Int, error) {
	v, err := rand.Int(rand.Reader, n)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: reading random bytes")
	}
	return v, nil
}
