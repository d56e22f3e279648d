package kv

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/gofrs/uuid/v5"
	"github.com/inconshreveable/log15"
	"github.com/ostafen/kv/engine"
	"github.com/puzpuzpuz/xsync/v3"
)

// Stat holds engine reported statistics.
type Stat = engine.Stat

type bucketKey struct {
	name  string
	flags BucketFlags
}

// Store is an opened environment together with the buckets its Config
// declares. Stores are obtained from a Manager and shared by every Handle on
// the same path.
type Store struct {
	env     engine.Env
	id      uuid.UUID
	config  Config
	log     log15.Logger
	gate    *writerGate
	buckets *xsync.MapOf[bucketKey, engine.Bucket]
}

func openStore(cfg Config) (*Store, error) {
	open, ok := engines[cfg.Engine]
	if !ok {
		return nil, fmt.Errorf("%w: unknown engine %q", ErrEngine, cfg.Engine)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}

	env, err := open(cfg.engineOptions())
	if err != nil {
		return nil, engineError("open "+cfg.Path, err)
	}

	s := &Store{
		env:     env,
		id:      id,
		config:  cfg,
		log:     cfg.logger().New("path", cfg.Path, "engine", cfg.Engine),
		gate:    newWriterGate(cfg.WriteTimeout),
		buckets: xsync.NewMapOf[bucketKey, engine.Bucket](),
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Buckets)) {
		flags := cfg.Buckets[name]
		for _, f := range []BucketFlags{flags, flags | IntegerKey} {
			if err := s.openEngineBucket(name, f); err != nil {
				env.Close()
				return nil, err
			}
		}
	}

	envOpened.Inc()
	s.log.Info("environment opened", "id", id, "readonly", cfg.ReadOnly, "buckets", len(cfg.Buckets))
	return s, nil
}

// openEngineBucket opens and memoizes the engine handle for (name, flags).
// It runs only while the Store is being opened, before any transaction
// exists.
func (s *Store) openEngineBucket(name string, flags BucketFlags) error {
	key := bucketKey{name: name, flags: flags}
	if _, ok := s.buckets.Load(key); ok {
		return nil
	}

	b, err := s.env.OpenBucket(name, flags)
	if err != nil {
		return engineError(fmt.Sprintf("open bucket %q", name), err)
	}
	s.buckets.Store(key, b)
	s.log.Debug("bucket opened", "bucket", name, "flags", flags)
	return nil
}

// engineBucket returns the handle memoized at open. It never touches the
// engine, so it is safe inside a running write transaction.
func (s *Store) engineBucket(name string, flags BucketFlags) (engine.Bucket, error) {
	b, ok := s.buckets.Load(bucketKey{name: name, flags: flags})
	if !ok {
		return nil, fmt.Errorf("%w: %q not opened with flags %s", ErrInvalidBucket, name, flags)
	}
	return b, nil
}

func (s *Store) compatible(cfg *Config) error {
	if cfg.Engine != s.config.Engine {
		return fmt.Errorf("%w: engine %s, requested %s", ErrManagerConflict, s.config.Engine, cfg.Engine)
	}
	if cfg.ReadOnly != s.config.ReadOnly {
		return fmt.Errorf("%w: readonly %t, requested %t", ErrManagerConflict, s.config.ReadOnly, cfg.ReadOnly)
	}

	for name, flags := range cfg.Buckets {
		name = normalizeBucketName(name)
		have, ok := s.config.Buckets[name]
		if !ok {
			return fmt.Errorf("%w: bucket %q not declared", ErrManagerConflict, name)
		}
		if have != flags {
			return fmt.Errorf("%w: bucket %q has flags %s, requested %s", ErrManagerConflict, name, have, flags)
		}
	}
	return nil
}

func (s *Store) close() error {
	s.log.Info("environment closed", "id", s.id)
	return engineError("close", s.env.Close())
}

// Bucket is a typed view of a sub-database. It is only usable with
// transactions of the Store that opened it.
type Bucket[K, V any] struct {
	store  *Store
	raw    engine.Bucket
	flags  BucketFlags
	keys   Codec[K]
	values Codec[V]
}

func (b *Bucket[K, V]) Name() string       { return b.raw.Name() }
func (b *Bucket[K, V]) Flags() BucketFlags { return b.flags }

// OpenBucket opens a declared bucket using the built-in codecs for K and V.
func OpenBucket[K, V any](s *Store, name string) (*Bucket[K, V], error) {
	kc, err := CodecFor[K]()
	if err != nil {
		return nil, err
	}
	vc, err := CodecFor[V]()
	if err != nil {
		return nil, err
	}
	return OpenBucketWith(s, name, kc, vc)
}

// OpenBucketWith opens a declared bucket with explicit codecs. Buckets the
// Config does not declare fail with ErrInvalidBucket.
func OpenBucketWith[K, V any](s *Store, name string, keys Codec[K], values Codec[V]) (*Bucket[K, V], error) {
	name = normalizeBucketName(name)
	flags, ok := s.config.Buckets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not declared", ErrInvalidBucket, name)
	}
	return openBucket(s, name, flags, keys, values)
}

// OpenIntBucket opens a declared bucket keyed by Integer.
func OpenIntBucket[V any](s *Store, name string) (*Bucket[Integer, V], error) {
	vc, err := CodecFor[V]()
	if err != nil {
		return nil, err
	}
	return OpenIntBucketWith(s, name, vc)
}

func OpenIntBucketWith[V any](s *Store, name string, values Codec[V]) (*Bucket[Integer, V], error) {
	name = normalizeBucketName(name)
	flags, ok := s.config.Buckets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q not declared", ErrInvalidBucket, name)
	}
	return openBucket[Integer](s, name, flags|IntegerKey, IntegerCodec{}, values)
}

func openBucket[K, V any](s *Store, name string, flags BucketFlags, keys Codec[K], values Codec[V]) (*Bucket[K, V], error) {
	raw, err := s.engineBucket(name, flags)
	if err != nil {
		return nil, err
	}
	return &Bucket[K, V]{store: s, raw: raw, flags: flags, keys: keys, values: values}, nil
}

// ReadTxn begins a read-only transaction on a consistent snapshot.
func (s *Store) ReadTxn() (*Txn, error) {
	etx, err := s.env.Begin(false)
	if err != nil {
		return nil, engineError("begin read", err)
	}
	return newTxn(s, etx, false), nil
}

// WriteTxn begins a read-write transaction, waiting for the writer slot as
// configured by WriteTimeout.
func (s *Store) WriteTxn() (*Txn, error) {
	return s.WriteTxnContext(context.Background())
}

// WriteTxnContext is WriteTxn, giving up when ctx is done.
func (s *Store) WriteTxnContext(ctx context.Context) (*Txn, error) {
	if s.config.ReadOnly {
		return nil, ErrReadOnly
	}

	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}

	etx, err := s.env.Begin(true)
	if err != nil {
		s.gate.release()
		return nil, engineError("begin write", err)
	}
	return newTxn(s, etx, true), nil
}

// WithReadTxn runs fn in a read transaction that is always released.
func (s *Store) WithReadTxn(fn func(txn *Txn) error) error {
	txn, err := s.ReadTxn()
	if err != nil {
		return err
	}
	defer txn.release()

	return fn(txn)
}

// WithWriteTxn runs fn in a write transaction, committing when fn succeeds
// and aborting when it fails or panics.
func (s *Store) WithWriteTxn(fn func(txn *Txn) error) error {
	txn, err := s.WriteTxn()
	if err != nil {
		return err
	}
	defer txn.release()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// View runs fn in a read transaction and returns its result.
func View[T any](s *Store, fn func(txn *Txn) (T, error)) (T, error) {
	var res T
	err := s.WithReadTxn(func(txn *Txn) error {
		var err error
		res, err = fn(txn)
		return err
	})
	return res, err
}

// Update runs fn in a write transaction and returns its result.
func Update[T any](s *Store, fn func(txn *Txn) (T, error)) (T, error) {
	var res T
	err := s.WithWriteTxn(func(txn *Txn) error {
		var err error
		res, err = fn(txn)
		return err
	})
	return res, err
}

// Sync flushes buffered writes. When force is false the engine may skip the
// flush if its configuration says so.
func (s *Store) Sync(force bool) error {
	return engineError("sync", s.env.Sync(force))
}

func (s *Store) Stat() (Stat, error) {
	st, err := s.env.Stat()
	if err != nil {
		return Stat{}, engineError("stat", err)
	}
	return st, nil
}

// Buckets returns the declared bucket names, sorted. The default bucket is
// the empty name.
func (s *Store) Buckets() []string {
	return slices.Sorted(maps.Keys(s.config.Buckets))
}

// Config returns a copy of the configuration the Store was opened with.
func (s *Store) Config() Config {
	c := s.config
	c.Buckets = maps.Clone(s.config.Buckets)
	return c
}

func (s *Store) Path() string     { return s.config.Path }
func (s *Store) EnvID() uuid.UUID { return s.id }
func (s *Store) ReadOnly() bool   { return s.config.ReadOnly }
func (s *Store) Engine() string   { return s.config.Engine }
