// Package token moves private key material between server and client as a
// colon separated list of base64 encoded little-endian integers.
//
// Encode always emits d:e:n:p:q. Where Decode looks for primes depends on
// the Layout: the reference layout reads them from component 5 onwards,
// which leaves components 3 and 4 unused and makes the primes of a freshly
// encoded token invisible. Reconstruction then recovers them from (n, e, d).
package token

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/pkg/encoding"
	"github.com/i5heu/ouroboros-notes/pkg/weakrsa"
)

const (
	// Separator joins token components.
	Separator = ":"
	// Prefix precedes the token in the issuance response body.
	Prefix = "Token "
	// MinComponents is the fewest components Decode accepts.
	MinComponents = 5
	// MaxPrimes is the most primes Decode accepts.
	MaxPrimes = 8
	// DefaultMaxModulusBits is the component size limit of a zero Codec.
	DefaultMaxModulusBits = 4096
)

// Layout selects the component index the prime list starts at.
type Layout int

const (
	// LayoutReference reads primes from index 5 on, skipping indices 3 and 4.
	LayoutReference Layout = iota
	// LayoutContiguous reads primes from index 3 on, mirroring Encode.
	LayoutContiguous
)

func (l Layout) String() string {
	switch l {
	case LayoutReference:
		return "reference"
	case LayoutContiguous:
		return "contiguous"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout maps a configuration string onto a Layout.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference":
		return LayoutReference, nil
	case "contiguous":
		return LayoutContiguous, nil
	}
	return 0, fmt.Errorf("unknown token layout %q", s)
}

func (l Layout) primesOffset() int {
	if l == LayoutContiguous {
		return 3
	}
	return 5
}

// Components are the integers carried by a token.
type Components struct {
	D      *big.Int
	E      *big.Int
	N      *big.Int
	Primes []*big.Int
}

// Codec encodes and decodes tokens with a fixed Layout. The zero value uses
// LayoutReference and DefaultMaxModulusBits.
type Codec struct {
	Layout Layout
	// MaxModulusBits bounds the size of every decoded component.
	MaxModulusBits int
}

func (c Codec) maxComponentLen() int {
	bits := c.MaxModulusBits
	if bits <= 0 {
		bits = DefaultMaxModulusBits
	}
	return base64.StdEncoding.EncodedLen((bits + 7) / 8)
}

// Encode renders k as d:e:n:p:q.
func (Codec) Encode(k *weakrsa.KeyPair) string {
	parts := make([]string, 0, 3+len(k.Primes))
	parts = append(parts, encoding.Base64(k.D), encoding.Base64(k.E), encoding.Base64(k.N))
	for _, p := range k.Primes {
		parts = append(parts, encoding.Base64(p))
	}
	return strings.Join(parts, Separator)
}

// Decode splits token into its components. A token with fewer than
// MinComponents parts, more than MaxPrimes primes or a component longer
// than MaxModulusBits allows fails with ErrTokenFormat before anything is
// decoded; an undecodable component fails with ErrTokenEncoding. Components
// between n and the prime offset are ignored.
func (c Codec) Decode(token string) (Components, error) {
	parts := strings.Split(token, Separator)
	if len(parts) < MinComponents {
		return Components{}, fmt.Errorf("%w: got %d components, need at least %d", nerrors.ErrTokenFormat, len(parts), MinComponents)
	}
	offset := c.Layout.primesOffset()
	if len(parts)-offset > MaxPrimes {
		return Components{}, fmt.Errorf("%w: got %d primes, at most %d allowed", nerrors.ErrTokenFormat, len(parts)-offset, MaxPrimes)
	}
	maxLen := c.maxComponentLen()
	for i, part := range parts {
		if len(part) > maxLen {
			return Components{}, fmt.Errorf("%w: component %d is longer than %d characters", nerrors.ErrTokenFormat, i, maxLen)
		}
	}

	values := make([]*big.Int, 3)
	for i := range values {
		v, err := decodeComponent(parts, i)
		if err != nil {
			return Components{}, err
		}
		values[i] = v
	}

	primes := make([]*big.Int, 0, max(len(parts)-offset, 0))
	for i := offset; i < len(parts); i++ {
		p, err := decodeComponent(parts, i)
		if err != nil {
			return Components{}, err
		}
		primes = append(primes, p)
	}

	return Components{D: values[0], E: values[1], N: values[2], Primes: primes}, nil
}

// Reconstruct decodes token and assembles the private key it describes.
func (c Codec) Reconstruct(token string) (*weakrsa.KeyPair, error) {
	comp, err := c.Decode(token)
	if err != nil {
		return nil, err
	}
	return comp.KeyPair()
}

// KeyPair assembles the private key described by c.
func (c Components) KeyPair() (*weakrsa.KeyPair, error) {
	return weakrsa.FromComponents(c.N, c.E, c.D, c.Primes)
}

// Strip removes the Prefix a client may have copied along with the token.
func Strip(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), Prefix)
}

func decodeComponent(parts []string, i int) (*big.Int, error) {
	v, err := encoding.ParseBase64(parts[i])
	if err != nil {
		return nil, fmt.Errorf("%w: component %d: %v", nerrors.ErrTokenEncoding, i, err)
	}
	return v, nil
}
