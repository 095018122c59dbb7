// Package keyValStore keeps public keys and encrypted notes in an embedded
// badger database. Ids come from a counter per table and start at 1.
package keyValStore

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/pkg/store"
)

const maxConflictRetries = 128

type KeyValStore struct {
	config   StoreConfig
	log      *logrus.Logger
	badgerDB *badger.DB

	readCounter  atomic.Uint64
	writeCounter atomic.Uint64
}

var _ store.Store = (*KeyValStore)(nil)

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(config.Paths[0])
		opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
		opts.SyncWrites = false
	}
	opts.Logger = badgerLogger{config.Logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", nerrors.ErrStore, err)
	}

	k := &KeyValStore{
		config:   config,
		log:      config.Logger,
		badgerDB: db,
	}

	if !config.InMemory {
		if err := k.displayDiskUsage(config.Paths); err != nil {
			k.log.Warnf("Could not display disk usage: %v", err)
		}
	}

	return k, nil
}

// Stats returns the number of read and write operations since start.
func (k *KeyValStore) Stats() (reads, writes uint64) {
	return k.readCounter.Load(), k.writeCounter.Load()
}

func (k *KeyValStore) AddKey(ctx context.Context, n, e []byte) (int64, error) {
	return k.insert(ctx, publicKeyPrefix, publicKeyCounter, marshalPublicKey(n, e))
}

func (k *KeyValStore) GetKey(ctx context.Context, id int64) (store.PublicKeyRecord, error) {
	value, err := k.read(ctx, publicKeyPrefix, id)
	if err != nil {
		return store.PublicKeyRecord{}, err
	}
	n, e, err := unmarshalPublicKey(value)
	if err != nil {
		return store.PublicKeyRecord{}, fmt.Errorf("%w: %v", nerrors.ErrStore, err)
	}
	return store.PublicKeyRecord{ID: id, N: n, E: e}, nil
}

func (k *KeyValStore) AddNote(ctx context.Context, ciphertext []byte) (int64, error) {
	return k.insert(ctx, notePrefix, noteCounter, marshalNote(ciphertext))
}

func (k *KeyValStore) GetNote(ctx context.Context, id int64) (store.NoteRecord, error) {
	value, err := k.read(ctx, notePrefix, id)
	if err != nil {
		return store.NoteRecord{}, err
	}
	ciphertext, err := unmarshalNote(value)
	if err != nil {
		return store.NoteRecord{}, fmt.Errorf("%w: %v", nerrors.ErrStore, err)
	}
	return store.NoteRecord{ID: id, Ciphertext: ciphertext}, nil
}

// insert bumps the counter and writes the record in one transaction.
// Concurrent inserts into the same table conflict and are retried.
func (k *KeyValStore) insert(ctx context.Context, prefix, counter string, value []byte) (int64, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", nerrors.ErrStore, err)
		}

		var id int64
		k.writeCounter.Add(1)
		err := k.badgerDB.Update(func(txn *badger.Txn) error {
			last, err := readCounter(txn, counter)
			if err != nil {
				return err
			}
			id = last + 1
			if err := txn.Set([]byte(counter), binary.BigEndian.AppendUint64(nil, uint64(id))); err != nil {
				return err
			}
			return txn.Set(recordKey(prefix, id), value)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: write %s: %v", nerrors.ErrStore, prefix, err)
		}
		return id, nil
	}
}

func readCounter(txn *badger.Txn, counter string) (int64, error) {
	item, err := txn.Get([]byte(counter))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var last int64
	err = item.Value(func(v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("counter %s has %d bytes", counter, len(v))
		}
		last = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return last, err
}

func (k *KeyValStore) read(ctx context.Context, prefix string, id int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", nerrors.ErrStore, err)
	}
	if id < 1 {
		return nil, fmt.Errorf("%w: %s%d", nerrors.ErrLookup, prefix, id)
	}

	key := recordKey(prefix, id)
	k.readCounter.Add(1)
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s%d", nerrors.ErrLookup, prefix, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading key %s: %v", nerrors.ErrStore, hex.EncodeToString(key), err)
	}
	return value, nil
}

func (k *KeyValStore) Close() error {
	return k.badgerDB.Close()
}

// badgerLogger routes badger's own logging through logrus. Badger is chatty
// at info level so those lines are demoted to debug.
type badgerLogger struct {
	log *logrus.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.log.WithField("component", "badger").Errorf(format, args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.log.WithField("component", "badger").Warnf(format, args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.log.WithField("component", "badger").Debugf(format, args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.log.WithField("component", "badger").Tracef(format, args...)
}
