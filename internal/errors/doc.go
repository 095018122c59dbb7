// Package errors holds the error values shared by the notes service.
//
// Every failure a client can trigger is one of the sentinels below, wrapped
// with context by the package that produced it. Callers branch with
// errors.Is instead of matching strings:
//
//	plaintext, err := svc.GetNote(ctx, id, token)
//	if errors.Is(err, nerrors.ErrLookup) {
//	    // unknown note id
//	}
//
// # Categories
//
//   - Key generation: ErrKeyGeneration, ErrKeyGenerationTimeout
//   - Token: ErrTokenFormat, ErrTokenEncoding
//   - Crypto: ErrKeyReconstruction, ErrEncryption, ErrDecryption, ErrTextDecoding
//   - Store: ErrLookup, ErrStore
package errors
