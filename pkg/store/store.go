// Package store defines the persistence boundary of the notes service.
//
// Records are immutable once written. Integer columns hold raw unsigned
// little-endian bytes exactly as they travel in tokens.
package store

import "context"

// PublicKeyRecord is the public half of an issued key.
type PublicKeyRecord struct {
	ID int64
	N  []byte
	E  []byte
}

// NoteRecord is an encrypted note. Nothing links it to the key that
// encrypted it.
type NoteRecord struct {
	ID         int64
	Ciphertext []byte
}

// KeyStore persists public key records. Get fails with errors.ErrLookup for
// an unknown id.
type KeyStore interface {
	AddKey(ctx context.Context, n, e []byte) (int64, error)
	GetKey(ctx context.Context, id int64) (PublicKeyRecord, error)
}

// NoteStore persists encrypted notes. Get fails with errors.ErrLookup for an
// unknown id.
type NoteStore interface {
	AddNote(ctx context.Context, ciphertext []byte) (int64, error)
	GetNote(ctx context.Context, id int64) (NoteRecord, error)
}

// Store is a backend serving both record kinds.
type Store interface {
	KeyStore
	NoteStore
	Close() error
}
