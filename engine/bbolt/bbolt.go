// Package bbolt adapts go.etcd.io/bbolt to the engine capability. Each kv
// bucket is a top level bolt bucket.
package bbolt

import (
	"bytes"
	"errors"
	"path/filepath"

	"github.com/ostafen/kv/engine"
	"go.etcd.io/bbolt"
)

const (
	dbFileName    = "data.db"
	defaultBucket = "__default__"
)

const supportedFlags = engine.IntegerKey

type boltEnv struct {
	db       *bbolt.DB
	readOnly bool
}

// Open opens or creates the bolt file inside opts.Path.
func Open(opts engine.Options) (engine.Env, error) {
	mode := opts.FileMode
	if mode == 0 {
		mode = 0666
	}

	db, err := bbolt.Open(filepath.Join(opts.Path, dbFileName), mode, &bbolt.Options{
		Timeout:         opts.OpenTimeout,
		ReadOnly:        opts.ReadOnly,
		NoSync:          opts.NoSync,
		InitialMmapSize: int(opts.MapSize),
	})
	if err != nil {
		return nil, err
	}
	return &boltEnv{db: db, readOnly: opts.ReadOnly}, nil
}

type boltBucket struct {
	name  []byte
	flags engine.Flags
}

func (b *boltBucket) Name() string {
	if string(b.name) == defaultBucket {
		return ""
	}
	return string(b.name)
}

func (b *boltBucket) Flags() engine.Flags { return b.flags }

func bucketName(name string) []byte {
	if name == "" {
		return []byte(defaultBucket)
	}
	return []byte(name)
}

func (env *boltEnv) OpenBucket(name string, flags engine.Flags) (engine.Bucket, error) {
	if err := engine.Check(flags, supportedFlags); err != nil {
		return nil, err
	}

	b := &boltBucket{name: bucketName(name), flags: flags}
	if env.readOnly {
		return b, nil
	}

	err := env.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.name)
		return err
	})
	return b, err
}

func (env *boltEnv) Begin(writable bool) (engine.Txn, error) {
	tx, err := env.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &boltTx{Tx: tx}, nil
}

func (env *boltEnv) Sync(force bool) error {
	if env.readOnly {
		return nil
	}
	return env.db.Sync()
}

func (env *boltEnv) Stat() (engine.Stat, error) {
	stat := engine.Stat{PageSize: uint64(env.db.Info().PageSize)}
	err := env.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bbolt.Bucket) error {
			bs := b.Stats()
			stat.BranchPages += uint64(bs.BranchPageN)
			stat.LeafPages += uint64(bs.LeafPageN)
			stat.OverflowPages += uint64(bs.BranchOverflowN + bs.LeafOverflowN)
			stat.Entries += uint64(bs.KeyN)
			if uint64(bs.Depth) > stat.Depth {
				stat.Depth = uint64(bs.Depth)
			}
			return nil
		})
	})
	return stat, err
}

func (env *boltEnv) Close() error {
	return env.db.Close()
}

type boltTx struct {
	*bbolt.Tx
}

func (tx *boltTx) bucket(b engine.Bucket) *bbolt.Bucket {
	return tx.Bucket(b.(*boltBucket).name)
}

func (tx *boltTx) Get(b engine.Bucket, key []byte) ([]byte, error) {
	bucket := tx.bucket(b)
	if bucket == nil {
		return nil, engine.ErrNotFound
	}

	value := bucket.Get(key)
	if value == nil {
		return nil, engine.ErrNotFound
	}
	return value, nil
}

func (tx *boltTx) Put(b engine.Bucket, key, value []byte) error {
	bucket, err := tx.CreateBucketIfNotExists(b.(*boltBucket).name)
	if err != nil {
		return err
	}
	return bucket.Put(key, value)
}

func (tx *boltTx) Delete(b engine.Bucket, key []byte) error {
	bucket := tx.bucket(b)
	if bucket == nil {
		return nil
	}
	return bucket.Delete(key)
}

func (tx *boltTx) Cursor(b engine.Bucket) (engine.Cursor, error) {
	bucket := tx.bucket(b)
	if bucket == nil {
		return engine.EmptyCursor{}, nil
	}
	return &boltCursor{Cursor: bucket.Cursor()}, nil
}

func (tx *boltTx) Commit() error {
	return tx.Tx.Commit()
}

func (tx *boltTx) Rollback() error {
	err := tx.Tx.Rollback()
	if errors.Is(err, bbolt.ErrTxClosed) {
		return nil
	}
	return err
}

type boltCursor struct {
	*bbolt.Cursor
	positioned bool

	key, value []byte
}

func (c *boltCursor) item(key, value []byte) ([]byte, []byte, error) {
	c.positioned = true
	c.key, c.value = key, value
	if key == nil {
		return nil, nil, engine.ErrNotFound
	}
	return key, value, nil
}

func (c *boltCursor) First() ([]byte, []byte, error) {
	return c.item(c.Cursor.First())
}

func (c *boltCursor) Last() ([]byte, []byte, error) {
	return c.item(c.Cursor.Last())
}

func (c *boltCursor) Next() ([]byte, []byte, error) {
	if !c.positioned {
		return c.First()
	}
	return c.item(c.Cursor.Next())
}

func (c *boltCursor) Prev() ([]byte, []byte, error) {
	if !c.positioned {
		return c.Last()
	}
	return c.item(c.Cursor.Prev())
}

func (c *boltCursor) Seek(seek []byte) ([]byte, []byte, error) {
	return c.item(c.Cursor.Seek(seek))
}

func (c *boltCursor) SeekExact(seek []byte) ([]byte, error) {
	key, value, err := c.Seek(seek)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(key, seek) {
		c.key, c.value = nil, nil
		return nil, engine.ErrNotFound
	}
	return value, nil
}

func (c *boltCursor) Current() ([]byte, []byte, error) {
	if c.key == nil {
		return nil, nil, engine.ErrNotFound
	}
	return c.key, c.value, nil
}

func (c *boltCursor) Close() error {
	return nil
}
