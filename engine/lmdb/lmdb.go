// Package lmdb adapts LMDB, through github.com/bmatsuo/lmdb-go, to the engine
// capability.
//
// IntegerKey buckets are ordinary byte-ordered databases, since kv hands
// integer keys over big-endian.
//
// lmdb-go opens environments with MDB_NOTLS, so read transactions are free to
// move between threads. Write transactions are pinned to the OS thread of the
// goroutine that began them until Commit or Rollback.
package lmdb

import (
	"fmt"
	"runtime"

	"github.com/bmatsuo/lmdb-go/lmdb"
	"github.com/ostafen/kv/engine"
)

const supportedFlags = engine.IntegerKey | engine.DupSort | engine.ReverseKey

type lmdbEnv struct {
	env      *lmdb.Env
	readOnly bool
}

// Open opens or creates an LMDB environment in the directory opts.Path.
func Open(opts engine.Options) (engine.Env, error) {
	env, err := lmdb.NewEnv()
	if err != nil {
		return nil, err
	}

	if err := configure(env, opts); err != nil {
		env.Close()
		return nil, err
	}

	var flags uint
	if opts.ReadOnly {
		flags |= lmdb.Readonly
	}
	if opts.NoSync {
		flags |= lmdb.NoSync
	}

	mode := opts.FileMode
	if mode == 0 {
		mode = 0644
	}

	if err := env.Open(opts.Path, flags, mode); err != nil {
		env.Close()
		return nil, err
	}
	return &lmdbEnv{env: env, readOnly: opts.ReadOnly}, nil
}

func configure(env *lmdb.Env, opts engine.Options) error {
	if err := env.SetMaxDBs(max(opts.MaxBuckets, 1)); err != nil {
		return err
	}
	if opts.MaxReaders > 0 {
		if err := env.SetMaxReaders(opts.MaxReaders); err != nil {
			return err
		}
	}
	if opts.MapSize > 0 {
		return env.SetMapSize(opts.MapSize)
	}
	return nil
}

// orderFlags are the database flags that change key or value ordering.
const orderFlags = uint(lmdb.DupSort | lmdb.ReverseKey)

func dbiFlags(flags engine.Flags) uint {
	var f uint
	if flags.Has(engine.DupSort) {
		f |= lmdb.DupSort
	}
	if flags.Has(engine.ReverseKey) {
		f |= lmdb.ReverseKey
	}
	return f
}

type lmdbBucket struct {
	name  string
	flags engine.Flags
	dbi   lmdb.DBI
}

func (b *lmdbBucket) Name() string        { return b.name }
func (b *lmdbBucket) Flags() engine.Flags { return b.flags }

func (e *lmdbEnv) OpenBucket(name string, flags engine.Flags) (engine.Bucket, error) {
	if err := engine.Check(flags, supportedFlags); err != nil {
		return nil, err
	}

	f := dbiFlags(flags)
	var txnFlags uint
	if e.readOnly {
		txnFlags = lmdb.Readonly
	} else {
		f |= lmdb.Create
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	txn, err := e.env.BeginTxn(nil, txnFlags)
	if err != nil {
		return nil, err
	}

	var dbi lmdb.DBI
	if name == "" {
		dbi, err = txn.OpenRoot(f)
	} else {
		dbi, err = txn.OpenDBI(name, f)
	}
	if err == nil {
		err = checkFlags(txn, dbi, name, dbiFlags(flags))
	}
	if lmdb.IsErrno(err, lmdb.Incompatible) {
		err = fmt.Errorf("%w: database %q: %v", engine.ErrIncompatible, name, err)
	}
	if err != nil {
		txn.Abort()
		return nil, err
	}

	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return &lmdbBucket{name: name, flags: flags, dbi: dbi}, nil
}

func checkFlags(txn *lmdb.Txn, dbi lmdb.DBI, name string, want uint) error {
	have, err := txn.Flags(dbi)
	if err != nil {
		return err
	}
	if have&orderFlags != want&orderFlags {
		return fmt.Errorf("%w: database %q has flags %#x, bucket needs %#x", engine.ErrIncompatible, name, have&orderFlags, want&orderFlags)
	}
	return nil
}

func (e *lmdbEnv) Begin(writable bool) (engine.Txn, error) {
	var flags uint = lmdb.Readonly
	if writable {
		flags = 0
		runtime.LockOSThread()
	}

	txn, err := e.env.BeginTxn(nil, flags)
	if err != nil {
		if writable {
			runtime.UnlockOSThread()
		}
		return nil, err
	}
	return &lmdbTxn{txn: txn, writable: writable}, nil
}

func (e *lmdbEnv) Sync(force bool) error {
	if e.readOnly {
		return nil
	}
	return e.env.Sync(force)
}

func (e *lmdbEnv) Stat() (engine.Stat, error) {
	st, err := e.env.Stat()
	if err != nil {
		return engine.Stat{}, err
	}
	return engine.Stat{
		PageSize:      uint64(st.PSize),
		Depth:         uint64(st.Depth),
		BranchPages:   uint64(st.BranchPages),
		LeafPages:     uint64(st.LeafPages),
		OverflowPages: uint64(st.OverflowPages),
		Entries:       uint64(st.Entries),
	}, nil
}

func (e *lmdbEnv) Close() error {
	return e.env.Close()
}

type lmdbTxn struct {
	txn      *lmdb.Txn
	writable bool
}

func (t *lmdbTxn) done() {
	if t.writable {
		runtime.UnlockOSThread()
	}
}

func dbiOf(b engine.Bucket) lmdb.DBI {
	return b.(*lmdbBucket).dbi
}

func (t *lmdbTxn) Get(b engine.Bucket, key []byte) ([]byte, error) {
	value, err := t.txn.Get(dbiOf(b), key)
	if lmdb.IsNotFound(err) {
		return nil, engine.ErrNotFound
	}
	return value, err
}

func (t *lmdbTxn) Put(b engine.Bucket, key, value []byte) error {
	return t.txn.Put(dbiOf(b), key, value, 0)
}

func (t *lmdbTxn) Delete(b engine.Bucket, key []byte) error {
	err := t.txn.Del(dbiOf(b), key, nil)
	if lmdb.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *lmdbTxn) Cursor(b engine.Bucket) (engine.Cursor, error) {
	c, err := t.txn.OpenCursor(dbiOf(b))
	if err != nil {
		return nil, err
	}
	return &lmdbCursor{c: c}, nil
}

func (t *lmdbTxn) Commit() error {
	defer t.done()
	return t.txn.Commit()
}

func (t *lmdbTxn) Rollback() error {
	defer t.done()
	t.txn.Abort()
	return nil
}

type lmdbCursor struct {
	c     *lmdb.Cursor
	valid bool
}

func (c *lmdbCursor) get(key []byte, op uint) ([]byte, []byte, error) {
	k, v, err := c.c.Get(key, nil, op)
	c.valid = err == nil
	if lmdb.IsNotFound(err) {
		return nil, nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

func (c *lmdbCursor) First() ([]byte, []byte, error) { return c.get(nil, lmdb.First) }
func (c *lmdbCursor) Last() ([]byte, []byte, error)  { return c.get(nil, lmdb.Last) }
func (c *lmdbCursor) Next() ([]byte, []byte, error)  { return c.get(nil, lmdb.Next) }
func (c *lmdbCursor) Prev() ([]byte, []byte, error)  { return c.get(nil, lmdb.Prev) }

func (c *lmdbCursor) Seek(key []byte) ([]byte, []byte, error) {
	return c.get(key, lmdb.SetRange)
}

func (c *lmdbCursor) SeekExact(key []byte) ([]byte, error) {
	_, v, err := c.get(key, lmdb.SetKey)
	return v, err
}

func (c *lmdbCursor) Current() ([]byte, []byte, error) {
	if !c.valid {
		return nil, nil, engine.ErrNotFound
	}
	return c.get(nil, lmdb.GetCurrent)
}

func (c *lmdbCursor) Close() error {
	c.c.Close()
	return nil
}
