// Package notecipher encrypts notes with PKCS#1 v1.5 (RFC 2313 block type 2)
// under weakrsa keys.
package notecipher

import (
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"unicode/utf8"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/pkg/weakrsa"
)

// overhead is the 00 || 02 || PS(>= 8 bytes) || 00 framing around a message.
const overhead = 11

// MaxPayload returns the largest plaintext, in bytes, that fits pub.
func MaxPayload(pub weakrsa.PublicKey) int {
	return max(pub.Size()-overhead, 0)
}

// Encrypt pads msg with non-zero bytes read from random and raises it to e
// modulo n. The ciphertext is exactly as long as the modulus.
func Encrypt(random io.Reader, pub weakrsa.PublicKey, msg []byte) ([]byte, error) {
	k := pub.Size()
	if k < overhead || len(msg) > k-overhead {
		return nil, fmt.Errorf("%w: message of %d bytes exceeds the %d byte limit", nerrors.ErrEncryption, len(msg), MaxPayload(pub))
	}

	em := make([]byte, k)
	em[1] = 2
	ps, mm := em[2:len(em)-len(msg)-1], em[len(em)-len(msg):]
	if err := nonZeroRandomBytes(ps, random); err != nil {
		return nil, fmt.Errorf("%w: padding: %v", nerrors.ErrEncryption, err)
	}
	em[len(em)-len(msg)-1] = 0
	copy(mm, msg)

	m := new(big.Int).SetBytes(em)
	c := m.Exp(m, pub.E, pub.N)
	return c.FillBytes(make([]byte, k)), nil
}

// Decrypt raises ciphertext to d modulo n and strips the padding. The padding
// check runs in constant time; any mismatch is reported as ErrDecryption
// without saying which check failed.
func Decrypt(priv *weakrsa.KeyPair, ciphertext []byte) ([]byte, error) {
	k := priv.Size()
	if k < overhead || len(ciphertext) != k {
		return nil, fmt.Errorf("%w: ciphertext is %d bytes, modulus is %d", nerrors.ErrDecryption, len(ciphertext), k)
	}

	c := new(big.Int).SetBytes(ciphertext)
	if c.Cmp(priv.N) >= 0 {
		return nil, fmt.Errorf("%w: ciphertext out of range", nerrors.ErrDecryption)
	}
	m := c.Exp(c, priv.D, priv.N)
	em := m.FillBytes(make([]byte, k))

	firstByteIsZero := subtle.ConstantTimeByteEq(em[0], 0)
	secondByteIsTwo := subtle.ConstantTimeByteEq(em[1], 2)

	// index of the first zero after the padding string
	lookingForIndex := 1
	index := 0
	for i := 2; i < len(em); i++ {
		equals0 := subtle.ConstantTimeByteEq(em[i], 0)
		index = subtle.ConstantTimeSelect(lookingForIndex&equals0, i, index)
		lookingForIndex = subtle.ConstantTimeSelect(equals0, 0, lookingForIndex)
	}
	validPS := subtle.ConstantTimeLessOrEq(2+8, index)

	if firstByteIsZero&secondByteIsTwo&^lookingForIndex&validPS&1 == 0 {
		return nil, fmt.Errorf("%w: padding check failed", nerrors.ErrDecryption)
	}
	return em[index+1:], nil
}

// DecryptText decrypts ciphertext and requires the result to be UTF-8.
func DecryptText(priv *weakrsa.KeyPair, ciphertext []byte) (string, error) {
	plain, err := Decrypt(priv, ciphertext)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", nerrors.ErrTextDecoding
	}
	return string(plain), nil
}

func nonZeroRandomBytes(s []byte, random io.Reader) error {
	if _, err := io.ReadFull(random, s); err != nil {
		return err
	}
	for i := range s {
		for s[i] == 0 {
			if _, err := io.ReadFull(random, s[i:i+1]); err != nil {
				return err
			}
		}
	}
	return nil
}
