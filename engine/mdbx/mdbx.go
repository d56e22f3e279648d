// Package mdbx adapts libmdbx, through github.com/erigontech/mdbx-go, to the
// engine capability. Every kv bucket is an MDBX named database; the default
// bucket is the main database.
//
// IntegerKey buckets are ordinary byte-ordered databases: kv hands integer
// keys over big-endian, which already sorts numerically, so the database is
// never switched to MDBX_INTEGERKEY.
//
// libmdbx binds transactions to the OS thread that started them, so the
// adapter pins the calling goroutine's thread from Begin until Commit or
// Rollback. A transaction must not leave the goroutine that began it.
package mdbx

import (
	"fmt"
	"os"
	"runtime"

	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/ostafen/kv/engine"
)

const label = mdbx.Label("kv")

const supportedFlags = engine.IntegerKey | engine.DupSort | engine.ReverseKey

type mdbxEnv struct {
	env      *mdbx.Env
	readOnly bool
}

// Open opens or creates an MDBX environment in the directory opts.Path.
func Open(opts engine.Options) (engine.Env, error) {
	env, err := mdbx.NewEnv(label)
	if err != nil {
		return nil, err
	}

	if err := configure(env, opts); err != nil {
		env.Close()
		return nil, err
	}

	var flags uint
	if opts.ReadOnly {
		flags |= mdbx.Readonly
	}
	if opts.NoSync {
		flags |= mdbx.SafeNoSync
	}

	if err := env.Open(opts.Path, flags, fileMode(opts.FileMode)); err != nil {
		env.Close()
		return nil, err
	}
	return &mdbxEnv{env: env, readOnly: opts.ReadOnly}, nil
}

func configure(env *mdbx.Env, opts engine.Options) error {
	maxDBs := opts.MaxBuckets
	if maxDBs < 1 {
		maxDBs = 1
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(maxDBs)); err != nil {
		return err
	}

	if opts.MaxReaders > 0 {
		if err := env.SetOption(mdbx.OptMaxReaders, uint64(opts.MaxReaders)); err != nil {
			return err
		}
	}

	if opts.MapSize > 0 {
		return env.SetGeometry(-1, -1, int(opts.MapSize), -1, -1, -1)
	}
	return nil
}

func fileMode(mode os.FileMode) os.FileMode {
	if mode == 0 {
		return 0644
	}
	return mode
}

// orderFlags are the database flags that change key or value ordering.
const orderFlags = uint(mdbx.DupSort | mdbx.ReverseKey)

func dbiFlags(flags engine.Flags) uint {
	var f uint
	if flags.Has(engine.DupSort) {
		f |= mdbx.DupSort
	}
	if flags.Has(engine.ReverseKey) {
		f |= mdbx.ReverseKey
	}
	return f
}

type mdbxBucket struct {
	name  string
	flags engine.Flags
	dbi   mdbx.DBI
}

func (b *mdbxBucket) Name() string        { return b.name }
func (b *mdbxBucket) Flags() engine.Flags { return b.flags }

func (e *mdbxEnv) OpenBucket(name string, flags engine.Flags) (engine.Bucket, error) {
	if err := engine.Check(flags, supportedFlags); err != nil {
		return nil, err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var txnFlags uint
	f := dbiFlags(flags)
	if e.readOnly {
		txnFlags = mdbx.Readonly
	} else {
		f |= mdbx.Create
	}

	txn, err := e.env.BeginTxn(nil, txnFlags)
	if err != nil {
		return nil, err
	}

	var dbi mdbx.DBI
	if name == "" {
		dbi, err = txn.OpenRoot(f)
	} else {
		dbi, err = txn.OpenDBI(name, f, nil, nil)
	}
	if err == nil {
		err = checkFlags(txn, dbi, name, dbiFlags(flags))
	}
	if mdbx.IsErrno(err, mdbx.Incompatible) {
		err = fmt.Errorf("%w: database %q: %v", engine.ErrIncompatible, name, err)
	}
	if err != nil {
		txn.Abort()
		return nil, err
	}

	if _, err := txn.Commit(); err != nil {
		return nil, err
	}
	return &mdbxBucket{name: name, flags: flags, dbi: dbi}, nil
}

// checkFlags fails when an existing database orders its keys differently
// from what the bucket asks for.
func checkFlags(txn *mdbx.Txn, dbi mdbx.DBI, name string, want uint) error {
	have, err := txn.Flags(dbi)
	if err != nil {
		return err
	}
	if have&orderFlags != want&orderFlags {
		return fmt.Errorf("%w: database %q has flags %#x, bucket needs %#x", engine.ErrIncompatible, name, have&orderFlags, want&orderFlags)
	}
	return nil
}

func (e *mdbxEnv) Begin(writable bool) (engine.Txn, error) {
	runtime.LockOSThread()

	flags := uint(mdbx.Readonly)
	if writable {
		flags = 0
	}

	txn, err := e.env.BeginTxn(nil, flags)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return &mdbxTxn{txn: txn}, nil
}

func (e *mdbxEnv) Sync(force bool) error {
	if e.readOnly {
		return nil
	}
	return e.env.Sync(force, false)
}

func (e *mdbxEnv) Stat() (engine.Stat, error) {
	st, err := e.env.Stat()
	if err != nil {
		return engine.Stat{}, err
	}
	return engine.Stat{
		PageSize:      uint64(st.PSize),
		Depth:         uint64(st.Depth),
		BranchPages:   st.BranchPages,
		LeafPages:     st.LeafPages,
		OverflowPages: st.OverflowPages,
		Entries:       st.Entries,
	}, nil
}

func (e *mdbxEnv) Close() error {
	e.env.Close()
	return nil
}

type mdbxTxn struct {
	txn *mdbx.Txn
}

func dbiOf(b engine.Bucket) mdbx.DBI {
	return b.(*mdbxBucket).dbi
}

func (t *mdbxTxn) Get(b engine.Bucket, key []byte) ([]byte, error) {
	value, err := t.txn.Get(dbiOf(b), key)
	if mdbx.IsNotFound(err) {
		return nil, engine.ErrNotFound
	}
	return value, err
}

func (t *mdbxTxn) Put(b engine.Bucket, key, value []byte) error {
	return t.txn.Put(dbiOf(b), key, value, 0)
}

func (t *mdbxTxn) Delete(b engine.Bucket, key []byte) error {
	err := t.txn.Del(dbiOf(b), key, nil)
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (t *mdbxTxn) Cursor(b engine.Bucket) (engine.Cursor, error) {
	c, err := t.txn.OpenCursor(dbiOf(b))
	if err != nil {
		return nil, err
	}
	return &mdbxCursor{c: c}, nil
}

func (t *mdbxTxn) Commit() error {
	defer runtime.UnlockOSThread()
	_, err := t.txn.Commit()
	return err
}

func (t *mdbxTxn) Rollback() error {
	defer runtime.UnlockOSThread()
	t.txn.Abort()
	return nil
}

type mdbxCursor struct {
	c     *mdbx.Cursor
	valid bool
}

func (c *mdbxCursor) get(key []byte, op uint) ([]byte, []byte, error) {
	k, v, err := c.c.Get(key, nil, op)
	c.valid = err == nil
	if mdbx.IsNotFound(err) {
		return nil, nil, engine.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

func (c *mdbxCursor) First() ([]byte, []byte, error) { return c.get(nil, mdbx.First) }
func (c *mdbxCursor) Last() ([]byte, []byte, error)  { return c.get(nil, mdbx.Last) }
func (c *mdbxCursor) Next() ([]byte, []byte, error)  { return c.get(nil, mdbx.Next) }
func (c *mdbxCursor) Prev() ([]byte, []byte, error)  { return c.get(nil, mdbx.Prev) }

func (c *mdbxCursor) Seek(key []byte) ([]byte, []byte, error) {
	return c.get(key, mdbx.SetRange)
}

func (c *mdbxCursor) SeekExact(key []byte) ([]byte, error) {
	_, v, err := c.get(key, mdbx.SetKey)
	return v, err
}

func (c *mdbxCursor) Current() ([]byte, []byte, error) {
	if !c.valid {
		return nil, nil, engine.ErrNotFound
	}
	return c.get(nil, mdbx.GetCurrent)
}

func (c *mdbxCursor) Close() error {
	c.c.Close()
	return nil
}
