// Package encoding converts big integers to and from the little-endian,
// unsigned byte form used in tokens and in the public key table.
package encoding

import (
	"encoding/base64"
	"math/big"
	"slices"
)

// LittleEndian returns the unsigned little-endian bytes of x.
//
// Zero encodes as a single 0x00 byte rather than an empty slice, so that a
// stored zero is distinguishable from a missing column. Negative values are
// encoded by magnitude.
func LittleEndian(x *big.Int) []byte {
	if x == nil || x.Sign() == 0 {
		return []byte{0}
	}
	b := x.Bytes()
	slices.Reverse(b)
	return b
}

// FromLittleEndian interprets b as an unsigned little-endian integer. Every
// byte sequence is a valid encoding; the empty slice is zero.
func FromLittleEndian(b []byte) *big.Int {
	be := slices.Clone(b)
	slices.Reverse(be)
	return new(big.Int).SetBytes(be)
}

// Base64 is the standard, padded base64 form of LittleEndian(x).
func Base64(x *big.Int) string {
	return base64.StdEncoding.EncodeToString(LittleEndian(x))
}

// ParseBase64 reverses Base64. The only possible error is a base64 decoding
// error; integer interpretation cannot fail.
func ParseBase64(s string) (*big.Int, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return FromLittleEndian(raw), nil
}
