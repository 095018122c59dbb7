// Package notes is an encrypted-notes service. Clients receive a weak RSA
// key as a token, submit notes encrypted under its public half and read
// them back by presenting the token again. The server never stores the
// private half.
package notes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/internal/keyValStore"
	"github.com/i5heu/ouroboros-notes/internal/pgstore"
	"github.com/i5heu/ouroboros-notes/pkg/encoding"
	"github.com/i5heu/ouroboros-notes/pkg/logging"
	"github.com/i5heu/ouroboros-notes/pkg/notecipher"
	"github.com/i5heu/ouroboros-notes/pkg/store"
	"github.com/i5heu/ouroboros-notes/pkg/token"
	"github.com/i5heu/ouroboros-notes/pkg/weakrsa"
	workerpool "github.com/i5heu/ouroboros-notes/pkg/workerPool"
)

var (
	ErrNotStarted         = errors.New("notes: service not started")
	ErrClosed             = errors.New("notes: service closed")
	ErrBackupNotSupported = errors.New("notes: store does not support backups")
)

// Service owns the store handle, the key generator and the worker pool
// that runs key generation.
type Service struct {
	log    *logrus.Logger
	config Config
	rand   io.Reader

	codec     token.Codec
	generator *weakrsa.Generator
	pool      *workerpool.WorkerPool

	storeMu   sync.RWMutex
	store     store.Store
	ownsStore bool
	stopGC    context.CancelFunc
	gcDone    chan struct{}

	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// Issued is the outcome of a token request.
type Issued struct {
	KeyID int64
	Token string
}

// Response is the body handed to the client.
func (i Issued) Response() string {
	return token.Prefix + i.Token
}

// KeyView is a stored public key in display form.
type KeyView struct {
	ID int64
	N  string
	E  string
}

func (k KeyView) String() string {
	return fmt.Sprintf("n: %s\ne: %s", k.N, k.E)
}

// New checks conf and builds a service. It does not touch the store;
// call Start for that.
func New(conf Config) (*Service, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	layout, _ := token.ParseLayout(conf.TokenLayout)

	if conf.Logger == nil {
		logger, err := logging.New(conf.Log.Level, conf.Log.Format)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		conf.Logger = logger
	}
	if conf.Rand == nil {
		conf.Rand = rand.Reader
	}

	return &Service{
		log:    conf.Logger,
		config: conf,
		rand:   conf.Rand,
		codec:  token.Codec{Layout: layout, MaxModulusBits: 2 * conf.KeyBits},
		generator: weakrsa.NewGenerator(
			weakrsa.WithRand(conf.Rand),
			weakrsa.WithLogger(conf.Logger),
		),
	}, nil
}

// Start opens the store and the key generation pool. Only the first call
// has an effect.
func (s *Service) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		if s.closed.Load() {
			startErr = ErrClosed
			return
		}

		st, owned, err := s.openStore(ctx)
		if err != nil {
			startErr = err
			return
		}

		s.storeMu.Lock()
		s.store = st
		s.ownsStore = owned
		s.storeMu.Unlock()

		s.pool = workerpool.NewWorkerPool(workerpool.Config{
			WorkerCount:  s.config.KeygenWorkers,
			GlobalBuffer: 1024,
		})

		if kv, ok := st.(*keyValStore.KeyValStore); ok && owned && s.config.Store.GCInterval > 0 {
			gcCtx, cancel := context.WithCancel(context.Background())
			s.stopGC = cancel
			s.gcDone = make(chan struct{})
			go func() {
				defer close(s.gcDone)
				kv.RunGarbageCollection(gcCtx, s.config.Store.GCInterval)
			}()
		}

		s.started.Store(true)
		s.log.WithFields(logrus.Fields{
			"driver":  s.driverName(),
			"keyBits": s.config.KeyBits,
			"layout":  s.codec.Layout.String(),
			"workers": s.pool.WorkerCount(),
		}).Info("Notes service started")
	})
	return startErr
}

func (s *Service) openStore(ctx context.Context) (store.Store, bool, error) {
	if s.config.Backend != nil {
		return s.config.Backend, false, nil
	}

	sc := s.config.Store
	switch sc.Driver {
	case DriverPostgres:
		pg, err := pgstore.Open(ctx, pgstore.Config{
			DSN:            sc.PostgresDSN,
			MaxConnections: sc.MaxConnections,
			AcquireTimeout: sc.AcquireTimeout,
			Logger:         s.log,
		})
		if err != nil {
			return nil, false, fmt.Errorf("open postgres store: %w", err)
		}
		return pg, true, nil
	default:
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:            []string{sc.DataPath},
			MinimumFreeSpace: sc.MinimumFreeGB,
			InMemory:         sc.InMemory,
			Logger:           s.log,
		})
		if err != nil {
			return nil, false, fmt.Errorf("open badger store: %w", err)
		}
		return kv, true, nil
	}
}

func (s *Service) driverName() string {
	if s.config.Backend != nil {
		return fmt.Sprintf("%T", s.config.Backend)
	}
	return s.config.Store.Driver
}

// Run starts the service, blocks until ctx is canceled and then shuts
// down within ten seconds.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Close(shutdownCtx)
}

// Close stops background work and releases the store. It is idempotent.
func (s *Service) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.started.Store(false)

		if s.stopGC != nil {
			s.stopGC()
			select {
			case <-s.gcDone:
			case <-ctx.Done():
				closeErr = errors.Join(closeErr, fmt.Errorf("wait for gc: %w", ctx.Err()))
			}
		}

		if s.pool != nil {
			s.pool.Close()
		}

		s.storeMu.Lock()
		st, owned := s.store, s.ownsStore
		s.store = nil
		s.storeMu.Unlock()
		if st != nil && owned {
			if err := st.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close store: %w", err))
			}
		}

		generated, attempts := s.generator.Stats()
		s.log.WithFields(logrus.Fields{
			"keysGenerated": generated,
			"attempts":      attempts,
		}).Info("Notes service closed")
	})
	return closeErr
}

func (s *Service) acquire() (store.Store, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !s.started.Load() {
		return nil, ErrNotStarted
	}
	s.storeMu.RLock()
	defer s.storeMu.RUnlock()
	if s.store == nil {
		return nil, ErrClosed
	}
	return s.store, nil
}

// IssueToken generates a key pair, stores its public half and returns the
// private half as a token.
func (s *Service) IssueToken(ctx context.Context) (Issued, error) {
	st, err := s.acquire()
	if err != nil {
		return Issued{}, err
	}

	key, err := s.generate(ctx, s.config.KeyBits)
	if err != nil {
		return Issued{}, err
	}

	id, err := st.AddKey(ctx, encoding.LittleEndian(key.N), encoding.LittleEndian(key.E))
	if err != nil {
		return Issued{}, err
	}

	s.log.WithField("keyId", id).Debug("Token issued")
	return Issued{KeyID: id, Token: s.codec.Encode(key)}, nil
}

// generate runs one key generation on the pool, bounded by the configured
// timeout.
func (s *Service) generate(ctx context.Context, bits int) (*weakrsa.KeyPair, error) {
	if s.config.KeygenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.KeygenTimeout)
		defer cancel()
	}

	key, err := workerpool.Submit(ctx, s.pool, func(ctx context.Context) (*weakrsa.KeyPair, error) {
		return s.generator.Generate(ctx, bits)
	})
	if err != nil && ctx.Err() != nil && !errors.Is(err, nerrors.ErrKeyGenerationTimeout) {
		return nil, fmt.Errorf("%w: %w", nerrors.ErrKeyGenerationTimeout, err)
	}
	return key, err
}

// AddNote encrypts contents under the public half of tok and stores the
// ciphertext.
func (s *Service) AddNote(ctx context.Context, contents, tok string) (int64, error) {
	st, err := s.acquire()
	if err != nil {
		return 0, err
	}

	key, err := s.codec.Reconstruct(token.Strip(tok))
	if err != nil {
		return 0, err
	}

	ciphertext, err := notecipher.Encrypt(s.rand, key.Public(), []byte(contents))
	if err != nil {
		return 0, err
	}

	id, err := st.AddNote(ctx, ciphertext)
	if err != nil {
		return 0, err
	}

	s.log.WithFields(logrus.Fields{
		"noteId": id,
		"bytes":  len(ciphertext),
	}).Debug("Note saved")
	return id, nil
}

// GetNote decrypts the note with the given id using tok. A malformed token
// is reported before the store is asked, an unknown id before any
// decryption is attempted.
func (s *Service) GetNote(ctx context.Context, id int64, tok string) (string, error) {
	st, err := s.acquire()
	if err != nil {
		return "", err
	}

	components, err := s.codec.Decode(token.Strip(tok))
	if err != nil {
		return "", err
	}

	note, err := st.GetNote(ctx, id)
	if err != nil {
		return "", err
	}

	key, err := components.KeyPair()
	if err != nil {
		return "", err
	}

	return notecipher.DecryptText(key, note.Ciphertext)
}

// GetKey returns a stored public key with both numbers in token encoding.
func (s *Service) GetKey(ctx context.Context, id int64) (KeyView, error) {
	st, err := s.acquire()
	if err != nil {
		return KeyView{}, err
	}

	rec, err := st.GetKey(ctx, id)
	if err != nil {
		return KeyView{}, err
	}

	return KeyView{
		ID: rec.ID,
		N:  encoding.Base64(encoding.FromLittleEndian(rec.N)),
		E:  encoding.Base64(encoding.FromLittleEndian(rec.E)),
	}, nil
}

type backupStore interface {
	Backup(w io.Writer) error
	Restore(r io.Reader) error
}

// Backup writes a compressed dump of the store to w.
func (s *Service) Backup(w io.Writer) error {
	st, err := s.acquire()
	if err != nil {
		return err
	}
	b, ok := st.(backupStore)
	if !ok {
		return ErrBackupNotSupported
	}
	return b.Backup(w)
}

// Restore loads a dump written by Backup.
func (s *Service) Restore(r io.Reader) error {
	st, err := s.acquire()
	if err != nil {
		return err
	}
	b, ok := st.(backupStore)
	if !ok {
		return ErrBackupNotSupported
	}
	return b.Restore(r)
}
