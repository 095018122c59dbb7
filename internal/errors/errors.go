package errors

import "errors"

// Key generation errors.
var (
	// ErrKeyGeneration indicates the prime generator or the random source failed.
	ErrKeyGeneration = errors.New("failed to generate key")

	// ErrKeyGenerationTimeout indicates the d/e search was cancelled before it found a pair.
	ErrKeyGenerationTimeout = errors.New("key generation timed out")
)

// Token errors. These are always client mistakes.
var (
	// ErrTokenFormat indicates the token has fewer than five colon separated components.
	ErrTokenFormat = errors.New("wrong token format")

	// ErrTokenEncoding indicates a token component is not valid standard base64.
	ErrTokenEncoding = errors.New("failed to decode b64 token")
)

// Cryptographic errors.
var (
	// ErrKeyReconstruction indicates n, e, d and the primes do not form a usable key.
	ErrKeyReconstruction = errors.New("failed to reconstruct key")

	// ErrEncryption indicates the plaintext does not fit the modulus.
	ErrEncryption = errors.New("failed to encrypt note")

	// ErrDecryption indicates a padding or length check failed.
	ErrDecryption = errors.New("failed to decrypt note")

	// ErrTextDecoding indicates the decrypted note is not valid UTF-8 text.
	ErrTextDecoding = errors.New("note is not valid text")
)

// Store errors.
var (
	// ErrLookup indicates the requested record id is absent.
	ErrLookup = errors.New("failed to find record with that id")

	// ErrStore indicates the persistence layer failed.
	ErrStore = errors.New("failed to perform a DB operation")
)
