package weakrsa

import (
	"context"
	"errors"
	"math/big"
	"math/rand/v2"
	"testing"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func lcm(a, b *big.Int) *big.Int {
	g := new(big.Int).GCD(nil, nil, a, b)
	l := new(big.Int).Mul(a, b)
	return l.Quo(l, g)
}

// checkKeyInvariants returns a description of the first violated invariant.
func checkKeyInvariants(k *KeyPair) string {
	if len(k.Primes) != 2 {
		return "expected two primes"
	}
	p, q := k.Primes[0], k.Primes[1]
	if p.Cmp(q) == 0 {
		return "p == q"
	}
	if new(big.Int).Mul(p, q).Cmp(k.N) != 0 {
		return "n != p*q"
	}
	de := new(big.Int).Mul(k.D, k.E)
	if new(big.Int).Mod(de, Lambda(p, q)).Cmp(one) != 0 {
		return "e*d != 1 mod (p-1)(q-1)/gcd(p,q)"
	}
	pm := new(big.Int).Sub(p, one)
	qm := new(big.Int).Sub(q, one)
	if new(big.Int).Mod(de, lcm(pm, qm)).Cmp(one) != 0 {
		return "e*d != 1 mod lcm(p-1, q-1)"
	}
	if k.D.Cmp(MaxPrivateExponent(k.N)) > 0 {
		return "d above (n/18)^(1/4)"
	}
	return ""
}

func newTestGenerator(opts ...Option) *Generator {
	return NewGenerator(append([]Option{WithLogger(testutil.QuietLogger())}, opts...)...)
}

func TestGenerateSmallKey(t *testing.T) {
	seed := [32]byte{'n', 'o', 't', 'e', 's'}
	g := newTestGenerator(WithRand(rand.NewChaCha8(seed)))

	k, err := g.Generate(context.Background(), 16)
	require.NoError(t, err)

	assert.LessOrEqual(t, k.D.BitLen(), 4)
	assert.Equal(t, 32, k.N.BitLen())
	assert.Empty(t, checkKeyInvariants(k))
}

func TestGenerateInvariants(t *testing.T) {
	g := newTestGenerator()
	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.IntRange(8, 96).Draw(t, "bits")

		k, err := g.Generate(context.Background(), bits)
		if err != nil {
			t.Fatalf("generate %d bits: %v", bits, err)
		}
		if k.D.BitLen() > bits/4 {
			t.Fatalf("d has %d bits, want at most %d", k.D.BitLen(), bits/4)
		}
		if msg := checkKeyInvariants(k); msg != "" {
			t.Fatalf("%d bit key: %s", bits, msg)
		}
	})
}

func TestGenerateFullSizeKey(t *testing.T) {
	testutil.RequireLong(t)

	k, err := newTestGenerator().Generate(context.Background(), 1024)
	require.NoError(t, err)

	assert.Equal(t, 2048, k.N.BitLen())
	assert.LessOrEqual(t, k.D.BitLen(), 256)
	assert.Empty(t, checkKeyInvariants(k))
}

func TestGenerateDistinctPrimes(t *testing.T) {
	g := newTestGenerator()
	// only eleven 8-bit primes have the top two bits set, so equal draws are common
	for i := range 200 {
		k, err := g.Generate(context.Background(), 8)
		require.NoError(t, err)
		require.NotEqual(t, 0, k.Primes[0].Cmp(k.Primes[1]), "key %d reused prime %s", i, k.Primes[0])
		require.Empty(t, checkKeyInvariants(k), "key %d", i)
	}
}

func TestGenerateRejectsTinyPrimes(t *testing.T) {
	_, err := newTestGenerator().Generate(context.Background(), 3)
	assert.ErrorIs(t, err, nerrors.ErrKeyGeneration)
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGenerator().Generate(ctx, 64)
	require.Error(t, err)
	assert.ErrorIs(t, err, nerrors.ErrKeyGenerationTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, nerrors.ErrKeyGeneration)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerateRandomSourceFailure(t *testing.T) {
	_, err := newTestGenerator(WithRand(failingReader{})).Generate(context.Background(), 64)
	assert.ErrorIs(t, err, nerrors.ErrKeyGeneration)
}

func TestGeneratorStats(t *testing.T) {
	g := newTestGenerator()
	for range 3 {
		_, err := g.Generate(context.Background(), 32)
		require.NoError(t, err)
	}

	generated, attempts := g.Stats()
	assert.Equal(t, uint64(3), generated)
	assert.GreaterOrEqual(t, attempts, generated)
}

func TestMaxPrivateExponent(t *testing.T) {
	tests := []struct {
		n        int64
		expected int64
	}{
		{17, 0},          // n/18 == 0
		{18, 1},          // (1)^(1/4)
		{18 * 16, 2},     // 16^(1/4)
		{18*81 - 1, 2},   // just below 81
		{18 * 81, 3},     // 81^(1/4)
		{18 * 10000, 10}, // 10000^(1/4)
	}
	for _, tc := range tests {
		got := MaxPrivateExponent(big.NewInt(tc.n))
		assert.Equal(t, tc.expected, got.Int64(), "n=%d", tc.n)
	}
}

func TestLambda(t *testing.T) {
	assert.Equal(t, int64(24), Lambda(big.NewInt(5), big.NewInt(7)).Int64())
	// gcd(p, q) divides out when p == q
	assert.Equal(t, int64(3), Lambda(big.NewInt(5), big.NewInt(5)).Int64())
}
