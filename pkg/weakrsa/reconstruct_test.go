package weakrsa

import (
	"context"
	"math/big"
	"testing"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func ints(values ...int64) []*big.Int {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestFromComponentsTextbookKey(t *testing.T) {
	// n = 55, φ = 40, 3·27 = 81 ≡ 1 (mod 40)
	n, e, d := big.NewInt(55), big.NewInt(3), big.NewInt(27)

	k, err := FromComponents(n, e, d, ints(5, 11))
	require.NoError(t, err)
	assert.Equal(t, ints(5, 11), k.Primes)

	recovered, err := FromComponents(n, e, d, nil)
	require.NoError(t, err)
	assert.Equal(t, ints(11, 5), recovered.Primes)
}

func TestFromComponentsRecoversGeneratedPrimes(t *testing.T) {
	g := newTestGenerator()
	rapid.Check(t, func(t *rapid.T) {
		bits := rapid.IntRange(16, 128).Draw(t, "bits")
		k, err := g.Generate(context.Background(), bits)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if k.Primes[0].Cmp(k.Primes[1]) == 0 {
			t.Skip("p == q cannot be split")
		}
		if k.D.Cmp(one) == 0 {
			t.Skip("d == e == 1 carries no factoring information")
		}

		got, err := FromComponents(k.N, k.E, k.D, nil)
		if err != nil {
			t.Fatalf("reconstruct %d bit key: %v", bits, err)
		}
		want := map[string]bool{k.Primes[0].String(): true, k.Primes[1].String(): true}
		for _, p := range got.Primes {
			if !want[p.String()] {
				t.Fatalf("recovered prime %s is not one of %v", p, k.Primes)
			}
		}
		if got.Primes[0].Cmp(got.Primes[1]) < 0 {
			t.Fatalf("primes not ordered largest first")
		}
	})
}

func TestFromComponentsRejects(t *testing.T) {
	tests := []struct {
		name   string
		n      *big.Int
		e      *big.Int
		d      *big.Int
		primes []*big.Int
	}{
		{"single prime", big.NewInt(55), big.NewInt(3), big.NewInt(27), ints(55)},
		{"primes do not multiply to n", big.NewInt(55), big.NewInt(3), big.NewInt(27), ints(5, 7)},
		{"e and d not inverse", big.NewInt(35), big.NewInt(3), big.NewInt(5), ints(5, 7)},
		{"e and d not inverse, primes recovered", big.NewInt(35), big.NewInt(3), big.NewInt(5), nil},
		{"zero d", big.NewInt(55), big.NewInt(3), big.NewInt(0), nil},
		{"zero e", big.NewInt(55), big.NewInt(0), big.NewInt(27), nil},
		{"modulus of one", big.NewInt(1), big.NewInt(3), big.NewInt(27), nil},
		{"prime of one", big.NewInt(55), big.NewInt(3), big.NewInt(27), ints(1, 55)},
		{"missing modulus", nil, big.NewInt(3), big.NewInt(27), nil},
		{"e not below modulus", big.NewInt(35), big.NewInt(41), big.NewInt(5), ints(5, 7)},
		{"d not below modulus", big.NewInt(35), big.NewInt(5), big.NewInt(53), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromComponents(tc.n, tc.e, tc.d, tc.primes)
			assert.ErrorIs(t, err, nerrors.ErrKeyReconstruction)
		})
	}
}

func TestKeyPairSize(t *testing.T) {
	k := &KeyPair{N: new(big.Int).Lsh(big.NewInt(1), 511), E: big.NewInt(3)}
	assert.Equal(t, 64, k.Size())
	assert.Equal(t, 64, k.Public().Size())
}
