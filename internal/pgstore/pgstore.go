// Package pgstore keeps public keys and encrypted notes in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	nerrors "github.com/i5heu/ouroboros-notes/internal/errors"
	"github.com/i5heu/ouroboros-notes/pkg/store"
)

const (
	DefaultMaxConnections = 5
	DefaultAcquireTimeout = 5 * time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id serial PRIMARY KEY,
	contents bytea NOT NULL
);
CREATE TABLE IF NOT EXISTS publickeys (
	id serial PRIMARY KEY,
	n bytea NOT NULL,
	e bytea NOT NULL
);`

type Config struct {
	DSN            string
	MaxConnections int
	AcquireTimeout time.Duration
	Logger         *logrus.Logger
}

type Store struct {
	db      *sql.DB
	log     *logrus.Logger
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects to the database and creates the tables if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: empty DSN", nerrors.ErrStore)
	}
	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", nerrors.ErrStore, err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	s := &Store{db: db, log: cfg.Logger, timeout: cfg.AcquireTimeout}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"maxConnections": cfg.MaxConnections,
		"acquireTimeout": cfg.AcquireTimeout,
	}).Info("Connected to postgres")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create tables: %v", nerrors.ErrStore, err)
	}
	return nil
}

func (s *Store) AddKey(ctx context.Context, n, e []byte) (int64, error) {
	return s.insert(ctx, "INSERT INTO publickeys (n, e) VALUES ($1, $2) RETURNING id", n, e)
}

func (s *Store) GetKey(ctx context.Context, id int64) (store.PublicKeyRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := store.PublicKeyRecord{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT n, e FROM publickeys WHERE id = $1", id).Scan(&rec.N, &rec.E)
	if err != nil {
		return store.PublicKeyRecord{}, queryError("publickeys", id, err)
	}
	return rec, nil
}

func (s *Store) AddNote(ctx context.Context, ciphertext []byte) (int64, error) {
	return s.insert(ctx, "INSERT INTO notes (contents) VALUES ($1) RETURNING id", ciphertext)
}

func (s *Store) GetNote(ctx context.Context, id int64) (store.NoteRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := store.NoteRecord{ID: id}
	err := s.db.QueryRowContext(ctx, "SELECT contents FROM notes WHERE id = $1", id).Scan(&rec.Ciphertext)
	if err != nil {
		return store.NoteRecord{}, queryError("notes", id, err)
	}
	return rec, nil
}

func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: insert: %v", nerrors.ErrStore, err)
	}
	return id, nil
}

func queryError(table string, id int64, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", nerrors.ErrLookup, table, id)
	}
	return fmt.Errorf("%w: select %s %d: %v", nerrors.ErrStore, table, id, err)
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
