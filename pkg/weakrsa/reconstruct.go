package weakrsa

import (
	"fmt"
	"math/big"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
)

// maxWitnesses bounds the bases tried while factoring n from d·e − 1.
const maxWitnesses = 100

// FromComponents assembles a KeyPair from raw components.
//
// With no primes, p and q are recovered from (n, e, d). A single prime is
// rejected. Two or more primes must multiply to n and satisfy
// d·e ≡ 1 (mod p−1) for each prime p. Both exponents must be below n.
// Every failure wraps ErrKeyReconstruction.
func FromComponents(n, e, d *big.Int, primes []*big.Int) (*KeyPair, error) {
	if n == nil || e == nil || d == nil {
		return nil, fmt.Errorf("%w: missing component", nerrors.ErrKeyReconstruction)
	}
	if n.Cmp(two) < 0 {
		return nil, fmt.Errorf("%w: modulus too small", nerrors.ErrKeyReconstruction)
	}
	if e.Sign() <= 0 || d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: exponents must be positive", nerrors.ErrKeyReconstruction)
	}
	if e.Cmp(n) >= 0 || d.Cmp(n) >= 0 {
		return nil, fmt.Errorf("%w: exponents must be below the modulus", nerrors.ErrKeyReconstruction)
	}

	switch len(primes) {
	case 0:
		p, q, err := recoverPrimes(n, e, d)
		if err != nil {
			return nil, err
		}
		primes = []*big.Int{p, q}
	case 1:
		return nil, fmt.Errorf("%w: need at least two primes, got one", nerrors.ErrKeyReconstruction)
	}

	k := &KeyPair{N: n, E: e, D: d, Primes: primes}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// Validate checks that the primes multiply to N and that D and E are
// inverse modulo p−1 for every prime.
func (k *KeyPair) Validate() error {
	if len(k.Primes) < 2 {
		return fmt.Errorf("%w: need at least two primes", nerrors.ErrKeyReconstruction)
	}

	product := new(big.Int).Set(one)
	de := new(big.Int).Mul(k.D, k.E)
	residue := new(big.Int)
	for i, p := range k.Primes {
		if p == nil || p.Cmp(one) <= 0 {
			return fmt.Errorf("%w: prime %d is not greater than one", nerrors.ErrKeyReconstruction, i)
		}
		product.Mul(product, p)

		pMinus1 := new(big.Int).Sub(p, one)
		if residue.Mod(de, pMinus1).Cmp(one) != 0 && pMinus1.Cmp(one) != 0 {
			return fmt.Errorf("%w: d·e is not 1 modulo prime %d minus one", nerrors.ErrKeyReconstruction, i)
		}
	}
	if product.Cmp(k.N) != 0 {
		return fmt.Errorf("%w: primes do not multiply to the modulus", nerrors.ErrKeyReconstruction)
	}
	return nil
}

// recoverPrimes factors n given a private/public exponent pair: d·e − 1 is a
// multiple of λ(n), so some base g has a square root of one below g^(d·e−1)
// that is not ±1, and gcd(root − 1, n) splits n. The larger factor is
// returned first. A base with g^(d·e−1) ≠ 1 proves the exponents
// inconsistent and ends the search.
func recoverPrimes(n, e, d *big.Int) (*big.Int, *big.Int, error) {
	k := new(big.Int).Mul(d, e)
	k.Sub(k, one)
	if k.Sign() <= 0 || k.Bit(0) != 0 {
		return nil, nil, fmt.Errorf("%w: d·e − 1 must be positive and even", nerrors.ErrKeyReconstruction)
	}

	t := k.TrailingZeroBits()
	r := new(big.Int).Rsh(k, t)
	nMinus1 := new(big.Int).Sub(n, one)
	f := new(big.Int)

	for base := int64(2); base < 2+maxWitnesses; base++ {
		g := big.NewInt(base)
		if g.Cmp(n) >= 0 {
			break
		}
		if f.GCD(nil, nil, g, n).Cmp(one) != 0 {
			return orderedFactors(n, f)
		}

		y := new(big.Int).Exp(g, r, n)
		if y.Cmp(one) == 0 || y.Cmp(nMinus1) == 0 {
			continue
		}
		reachedOne := false
		for i := uint(0); i < t; i++ {
			x := new(big.Int).Exp(y, two, n)
			if x.Cmp(one) == 0 {
				f.GCD(nil, nil, new(big.Int).Sub(y, one), n)
				if f.Cmp(one) > 0 && f.Cmp(n) < 0 {
					return orderedFactors(n, f)
				}
				reachedOne = true
				break
			}
			if x.Cmp(nMinus1) == 0 {
				reachedOne = true
				break
			}
			y = x
		}
		if !reachedOne {
			return nil, nil, fmt.Errorf("%w: d·e − 1 is not a multiple of λ(n)", nerrors.ErrKeyReconstruction)
		}
	}
	return nil, nil, fmt.Errorf("%w: could not recover primes from d and e", nerrors.ErrKeyReconstruction)
}

func orderedFactors(n, f *big.Int) (*big.Int, *big.Int, error) {
	p := new(big.Int).Set(f)
	q, rem := new(big.Int).QuoRem(n, p, new(big.Int))
	if rem.Sign() != 0 {
		return nil, nil, fmt.Errorf("%w: recovered factor does not divide the modulus", nerrors.ErrKeyReconstruction)
	}
	if p.Cmp(q) < 0 {
		p, q = q, p
	}
	return p, q, nil
}
