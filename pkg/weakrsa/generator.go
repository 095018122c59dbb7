package weakrsa

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync/atomic"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/sirupsen/logrus"
)

// MinPrimeBits is the smallest prime size Generate accepts. Below it the
// private exponent space (bits/4) is empty.
const MinPrimeBits = 4

// Generator builds weak-d key pairs.
type Generator struct {
	rand io.Reader
	log  *logrus.Logger

	generated atomic.Uint64
	attempts  atomic.Uint64
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand replaces crypto/rand.Reader as the randomness source.
func WithRand(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.rand = r
		}
	}
}

// WithLogger sets the logger used for attempt tracing.
func WithLogger(l *logrus.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGenerator returns a Generator reading from crypto/rand.Reader.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rand: rand.Reader,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stats reports how many keys were produced and how many d candidates were
// drawn in total since the Generator was created.
func (g *Generator) Stats() (generated, attempts uint64) {
	return g.generated.Load(), g.attempts.Load()
}

// Generate draws two distinct primes of bits bits each and searches for a private
// exponent d of bits/4 bits with d ≤ ⌊(n/18)^(1/4)⌋ that is invertible
// modulo λ. The search retries until it succeeds or ctx is done; in the
// latter case the error wraps ErrKeyGenerationTimeout.
func (g *Generator) Generate(ctx context.Context, bits int) (*KeyPair, error) {
	if bits < MinPrimeBits {
		return nil, fmt.Errorf("%w: prime size of %d bits is below %d", nerrors.ErrKeyGeneration, bits, MinPrimeBits)
	}

	p, err := rand.Prime(g.rand, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: generate p: %v", nerrors.ErrKeyGeneration, err)
	}
	q := p
	for q.Cmp(p) == 0 {
		if q, err = rand.Prime(g.rand, bits); err != nil {
			return nil, fmt.Errorf("%w: generate q: %v", nerrors.ErrKeyGeneration, err)
		}
	}

	n := new(big.Int).Mul(p, q)
	lambda := Lambda(p, q)
	bound := MaxPrivateExponent(n)
	dSpace := new(big.Int).Lsh(one, uint(bits/4))
	gcd := new(big.Int)

	log := g.log.WithFields(logrus.Fields{"bits": bits})

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w after %d attempts: %w", nerrors.ErrKeyGenerationTimeout, attempt-1, err)
		}
		g.attempts.Add(1)

		d, err := rand.Int(g.rand, dSpace)
		if err != nil {
			return nil, fmt.Errorf("%w: draw d: %v", nerrors.ErrKeyGeneration, err)
		}

		if gcd.GCD(nil, nil, d, lambda).Cmp(one) != 0 {
			log.WithField("attempt", attempt).Debug("rejected d: not coprime to lambda")
			continue
		}
		if d.Cmp(bound) > 0 {
			log.WithField("attempt", attempt).Debug("rejected d: above fourth root bound")
			continue
		}
		e := new(big.Int).ModInverse(d, lambda)
		// ModInverse already reduces into [0, lambda); zero only shows up for lambda == 1.
		if e == nil || e.Sign() <= 0 {
			log.WithField("attempt", attempt).Debug("rejected d: no usable inverse")
			continue
		}

		g.generated.Add(1)
		log.WithFields(logrus.Fields{
			"attempts": attempt,
			"dBits":    d.BitLen(),
			"nBits":    n.BitLen(),
		}).Info("generated key pair")

		return &KeyPair{
			N:      n,
			E:      e,
			D:      d,
			Primes: []*big.Int{p, q},
		}, nil
	}
}
