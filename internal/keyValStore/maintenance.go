package keyValStore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
)

const maxPendingWrites = 256

// Clean syncs and flattens the LSM tree, then runs one value log GC round.
func (k *KeyValStore) Clean() error {
	if k.config.InMemory {
		return nil
	}

	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	err = k.badgerDB.Flatten(runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}
	k.log.Debug("DB Flattened")

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}

// RunGarbageCollection calls Clean every interval until ctx is done.
func (k *KeyValStore) RunGarbageCollection(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reads, writes := k.Stats()
			if err := k.Clean(); err != nil {
				k.log.WithError(err).Error("Garbage collection failed")
				continue
			}
			k.log.WithFields(logrus.Fields{
				"reads":  reads,
				"writes": writes,
			}).Debug("Garbage collection done")
		}
	}
}

// Backup writes an xz compressed full dump of the database to w.
func (k *KeyValStore) Backup(w io.Writer) error {
	zw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("%w: xz writer: %v", nerrors.ErrStore, err)
	}

	version, err := k.badgerDB.Backup(zw, 0)
	if err != nil {
		zw.Close()
		return fmt.Errorf("%w: backup: %v", nerrors.ErrStore, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: finish backup: %v", nerrors.ErrStore, err)
	}

	k.log.WithField("version", version).Info("Backup written")
	return nil
}

// Restore loads a dump produced by Backup and moves the id counters past
// the highest restored id. Restored records do not replace newer writes
// to the same key, so it should target a fresh store.
func (k *KeyValStore) Restore(r io.Reader) error {
	zr, err := xz.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: xz reader: %v", nerrors.ErrStore, err)
	}

	if err := k.badgerDB.Load(zr, maxPendingWrites); err != nil {
		return fmt.Errorf("%w: restore: %v", nerrors.ErrStore, err)
	}

	err = k.badgerDB.Update(func(txn *badger.Txn) error {
		for prefix, counter := range map[string]string{
			publicKeyPrefix: publicKeyCounter,
			notePrefix:      noteCounter,
		} {
			last, err := readCounter(txn, counter)
			if err != nil {
				return err
			}
			highest := highestID(txn, prefix)
			if highest <= last {
				continue
			}
			if err := txn.Set([]byte(counter), binary.BigEndian.AppendUint64(nil, uint64(highest))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: reconcile counters: %v", nerrors.ErrStore, err)
	}

	k.log.Info("Backup restored")
	return nil
}

// highestID returns the largest id stored under prefix, or 0.
func highestID(txn *badger.Txn, prefix string) int64 {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := append([]byte(prefix), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	it.Seek(seek)
	if !it.ValidForPrefix([]byte(prefix)) {
		return 0
	}
	key := it.Item().Key()
	return int64(binary.BigEndian.Uint64(key[len(prefix):]))
}
