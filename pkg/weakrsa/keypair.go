// Package weakrsa generates and reassembles RSA keys whose private exponent
// is deliberately small.
//
// Keys produced here keep d below ⌊(n/18)^(1/4)⌋, which places them inside
// the range recoverable by Wiener's continued fraction attack. The public
// exponent is therefore about as large as the modulus and does not fit the
// int used by crypto/rsa, so keys are plain big integers.
package weakrsa

import "math/big"

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// KeyPair is an RSA private key with its public half.
type KeyPair struct {
	N      *big.Int   // modulus
	E      *big.Int   // public exponent
	D      *big.Int   // private exponent
	Primes []*big.Int // factors of N, exactly two for generated keys
}

// PublicKey is the (n, e) half of a KeyPair.
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// Public returns the public half of k.
func (k *KeyPair) Public() PublicKey {
	return PublicKey{N: k.N, E: k.E}
}

// Size returns the modulus length in bytes.
func (k *KeyPair) Size() int {
	return k.Public().Size()
}

// Size returns the modulus length in bytes.
func (p PublicKey) Size() int {
	return (p.N.BitLen() + 7) / 8
}

// MaxPrivateExponent returns ⌊(n/18)^(1/4)⌋, the largest d the generator
// accepts for modulus n.
func MaxPrivateExponent(n *big.Int) *big.Int {
	x := new(big.Int).Quo(n, big.NewInt(18))
	// floor(sqrt(floor(sqrt(x)))) == floor(x^(1/4))
	x.Sqrt(x)
	return x.Sqrt(x)
}

// Lambda returns (p−1)(q−1)/gcd(p, q), the modulus e and d are inverted
// against. For distinct primes this is φ(n), a multiple of lcm(p−1, q−1).
func Lambda(p, q *big.Int) *big.Int {
	pm := new(big.Int).Sub(p, one)
	qm := new(big.Int).Sub(q, one)
	g := new(big.Int).GCD(nil, nil, p, q)
	l := pm.Mul(pm, qm)
	return l.Quo(l, g)
}
