// Package badger adapts github.com/dgraph-io/badger/v4 to the engine
// capability. Badger has a single keyspace, so a bucket is a key prefix made
// of the uvarint encoded name length followed by the name.
package badger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/inconshreveable/log15"
	"github.com/ostafen/kv/engine"
)

const supportedFlags = engine.IntegerKey

const (
	defaultGCInterval     = time.Minute * 5
	defaultGCDiscardRatio = 0.5
)

type badgerEnv struct {
	db     *badger.DB
	log    log15.Logger
	chWg   sync.WaitGroup
	chQuit chan struct{}

	readOnly       bool
	gcInterval     time.Duration
	gcDiscardRatio float64
}

// Open opens or creates a badger database in the directory opts.Path.
func Open(opts engine.Options) (engine.Env, error) {
	l := opts.Logger
	if l == nil {
		l = log15.New()
		l.SetHandler(log15.DiscardHandler())
	}
	l = l.New("engine", "badger")

	bopts := badger.DefaultOptions(opts.Path).
		WithReadOnly(opts.ReadOnly).
		WithSyncWrites(!opts.NoSync).
		WithLogger(logger{l})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}

	env := &badgerEnv{
		db:             db,
		log:            l,
		chQuit:         make(chan struct{}, 1),
		readOnly:       opts.ReadOnly,
		gcInterval:     defaultGCInterval,
		gcDiscardRatio: defaultGCDiscardRatio,
	}
	if opts.GCReclaimInterval > 0 {
		env.gcInterval = opts.GCReclaimInterval
	}
	if opts.GCDiscardRatio > 0 {
		env.gcDiscardRatio = opts.GCDiscardRatio
	}

	if !env.readOnly {
		env.startGC()
	}
	return env, nil
}

func (env *badgerEnv) startGC() {
	env.chWg.Add(1)

	go func() {
		defer env.chWg.Done()

		ticker := time.NewTicker(env.gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-env.chQuit:
				return

			case <-ticker.C:
				err := env.db.RunValueLogGC(env.gcDiscardRatio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					env.log.Warn("value log gc failed", "err", err)
				}
			}
		}
	}()
}

func (env *badgerEnv) stopGC() {
	if env.readOnly {
		return
	}
	env.chQuit <- struct{}{}
	env.chWg.Wait()
	close(env.chQuit)
}

type badgerBucket struct {
	name   string
	flags  engine.Flags
	prefix []byte
}

func (b *badgerBucket) Name() string        { return b.name }
func (b *badgerBucket) Flags() engine.Flags { return b.flags }

func (b *badgerBucket) key(key []byte) []byte {
	k := make([]byte, 0, len(b.prefix)+len(key))
	return append(append(k, b.prefix...), key...)
}

// end returns the smallest key greater than every key in the bucket. The
// first prefix byte encodes a name length below 128 or a continuation byte
// of a uvarint, so it is never 0xff and the increment always terminates.
func (b *badgerBucket) end() []byte {
	end := bytes.Clone(b.prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (env *badgerEnv) OpenBucket(name string, flags engine.Flags) (engine.Bucket, error) {
	if err := engine.Check(flags, supportedFlags); err != nil {
		return nil, err
	}

	prefix := binary.AppendUvarint(nil, uint64(len(name)))
	prefix = append(prefix, name...)
	return &badgerBucket{name: name, flags: flags, prefix: prefix}, nil
}

func (env *badgerEnv) Begin(writable bool) (engine.Txn, error) {
	return &badgerTx{Txn: env.db.NewTransaction(writable)}, nil
}

func (env *badgerEnv) Sync(force bool) error {
	if env.readOnly {
		return nil
	}
	return env.db.Sync()
}

func (env *badgerEnv) Stat() (engine.Stat, error) {
	var stat engine.Stat
	for _, t := range env.db.Tables() {
		stat.Entries += uint64(t.KeyCount)
		stat.LeafPages++
		if uint64(t.Level) > stat.Depth {
			stat.Depth = uint64(t.Level)
		}
	}
	return stat, nil
}

func (env *badgerEnv) Close() error {
	env.stopGC()
	return env.db.Close()
}

type badgerTx struct {
	*badger.Txn
}

func (tx *badgerTx) Get(b engine.Bucket, key []byte) ([]byte, error) {
	item, err := tx.Txn.Get(b.(*badgerBucket).key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (tx *badgerTx) Put(b engine.Bucket, key, value []byte) error {
	return tx.Txn.Set(b.(*badgerBucket).key(key), bytes.Clone(value))
}

func (tx *badgerTx) Delete(b engine.Bucket, key []byte) error {
	return tx.Txn.Delete(b.(*badgerBucket).key(key))
}

func (tx *badgerTx) Cursor(b engine.Bucket) (engine.Cursor, error) {
	return &badgerCursor{tx: tx.Txn, bucket: b.(*badgerBucket)}, nil
}

func (tx *badgerTx) Commit() error {
	return tx.Txn.Commit()
}

func (tx *badgerTx) Rollback() error {
	tx.Txn.Discard()
	return nil
}

// badgerCursor remembers its position as a key and opens a fresh iterator for
// every movement, since badger allows a single live iterator per update
// transaction.
type badgerCursor struct {
	tx     *badger.Txn
	bucket *badgerBucket

	key, value []byte

	// Set once a move has run off the bucket, with pastEnd telling which
	// side. Next and Prev keep failing in that direction, matching LMDB.
	exhausted, pastEnd bool
}

func (c *badgerCursor) move(reverse bool, seek []byte, skipEqual bool) ([]byte, []byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	if !reverse {
		opts.Prefix = c.bucket.prefix
	}

	it := c.tx.NewIterator(opts)
	defer it.Close()

	it.Seek(seek)
	if skipEqual && it.Valid() && bytes.Equal(it.Item().Key(), seek) {
		it.Next()
	}

	if !it.ValidForPrefix(c.bucket.prefix) {
		c.key, c.value = nil, nil
		c.exhausted, c.pastEnd = true, !reverse
		return nil, nil, engine.ErrNotFound
	}

	item := it.Item()
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}

	c.key = item.KeyCopy(nil)[len(c.bucket.prefix):]
	c.value = value
	c.exhausted = false
	return c.key, c.value, nil
}

func (c *badgerCursor) First() ([]byte, []byte, error) {
	return c.move(false, c.bucket.prefix, false)
}

func (c *badgerCursor) Last() ([]byte, []byte, error) {
	// Reverse seeks land on the largest key not above end, which belongs to
	// the next bucket when it exists and is then skipped.
	return c.move(true, c.bucket.end(), true)
}

func (c *badgerCursor) Next() ([]byte, []byte, error) {
	if c.key == nil {
		if c.exhausted && c.pastEnd {
			return nil, nil, engine.ErrNotFound
		}
		return c.First()
	}
	return c.move(false, c.bucket.key(c.key), true)
}

func (c *badgerCursor) Prev() ([]byte, []byte, error) {
	if c.key == nil {
		if c.exhausted && !c.pastEnd {
			return nil, nil, engine.ErrNotFound
		}
		return c.Last()
	}
	return c.move(true, c.bucket.key(c.key), true)
}

func (c *badgerCursor) Seek(key []byte) ([]byte, []byte, error) {
	return c.move(false, c.bucket.key(key), false)
}

func (c *badgerCursor) SeekExact(key []byte) ([]byte, error) {
	item, err := c.tx.Get(c.bucket.key(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		c.key, c.value = nil, nil
		c.exhausted = false
		return nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	c.key, c.value = bytes.Clone(key), value
	c.exhausted = false
	return value, nil
}

func (c *badgerCursor) Current() ([]byte, []byte, error) {
	if c.key == nil {
		return nil, nil, engine.ErrNotFound
	}
	return c.key, c.value, nil
}

func (c *badgerCursor) Close() error {
	return nil
}

// logger routes badger's printf style logging into log15.
type logger struct {
	l log15.Logger
}

func msg(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (l logger) Errorf(format string, args ...interface{})   { l.l.Error(msg(format, args)) }
func (l logger) Warningf(format string, args ...interface{}) { l.l.Warn(msg(format, args)) }
func (l logger) Infof(format string, args ...interface{})    { l.l.Info(msg(format, args)) }
func (l logger) Debugf(format string, args ...interface{})   { l.l.Debug(msg(format, args)) }
