package kv

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ostafen/kv/engine"
)

// Cursor walks a bucket in key order. Movements that find no entry return
// ErrNotFound. Next on a fresh cursor behaves like First and Prev like Last.
type Cursor[K, V any] struct {
	txn    *Txn
	bucket *Bucket[K, V]
	h      *cursorHandle
}

// OpenCursor opens a cursor on b. The cursor is closed at the latest when
// txn ends.
func OpenCursor[K, V any](txn *Txn, b *Bucket[K, V]) (*Cursor[K, V], error) {
	if err := txn.use(b.store); err != nil {
		return nil, err
	}

	c, err := txn.txn.Cursor(b.raw)
	if err != nil {
		return nil, engineError("cursor", err)
	}

	h := &cursorHandle{c: c}
	txn.cursors = append(txn.cursors, h)
	return &Cursor[K, V]{txn: txn, bucket: b, h: h}, nil
}

func (c *Cursor[K, V]) check() error {
	if err := c.txn.check(); err != nil {
		return err
	}
	if c.h.closed {
		return fmt.Errorf("%w: cursor closed", ErrTxnState)
	}
	return nil
}

func (c *Cursor[K, V]) decode(k, v []byte, err error) (K, V, error) {
	var (
		key   K
		value V
	)
	if errors.Is(err, engine.ErrNotFound) {
		return key, value, ErrNotFound
	}
	if err != nil {
		return key, value, engineError("cursor", err)
	}

	if key, err = c.bucket.keys.Decode(k); err != nil {
		return key, value, encodingError("key", err)
	}
	if value, err = c.bucket.values.Decode(v); err != nil {
		return key, value, encodingError("value", err)
	}
	return key, value, nil
}

func (c *Cursor[K, V]) do(move func(engine.Cursor) ([]byte, []byte, error)) (K, V, error) {
	if err := c.check(); err != nil {
		var (
			key   K
			value V
		)
		return key, value, err
	}
	return c.decode(move(c.h.c))
}

func (c *Cursor[K, V]) First() (K, V, error)   { return c.do(engine.Cursor.First) }
func (c *Cursor[K, V]) Last() (K, V, error)    { return c.do(engine.Cursor.Last) }
func (c *Cursor[K, V]) Next() (K, V, error)    { return c.do(engine.Cursor.Next) }
func (c *Cursor[K, V]) Prev() (K, V, error)    { return c.do(engine.Cursor.Prev) }
func (c *Cursor[K, V]) Current() (K, V, error) { return c.do(engine.Cursor.Current) }

// Seek positions the cursor at the smallest key greater than or equal to
// key.
func (c *Cursor[K, V]) Seek(key K) (K, V, error) {
	k, err := c.bucket.keys.Encode(key)
	if err != nil {
		var (
			zero  K
			value V
		)
		return zero, value, encodingError("key", err)
	}
	return c.do(func(ec engine.Cursor) ([]byte, []byte, error) {
		return ec.Seek(k)
	})
}

// SeekExact positions the cursor at key, failing with ErrNotFound when it
// is absent.
func (c *Cursor[K, V]) SeekExact(key K) (V, error) {
	var zero V
	if err := c.check(); err != nil {
		return zero, err
	}

	k, err := c.bucket.keys.Encode(key)
	if err != nil {
		return zero, encodingError("key", err)
	}

	v, err := c.h.c.SeekExact(k)
	if errors.Is(err, engine.ErrNotFound) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, engineError("cursor", err)
	}

	value, err := c.bucket.values.Decode(v)
	if err != nil {
		return zero, encodingError("value", err)
	}
	return value, nil
}

// Close releases the cursor. Closing twice, or after the transaction
// ended, is a no-op.
func (c *Cursor[K, V]) Close() error {
	if c.txn.state == txnActive {
		c.h.close()
	}
	return nil
}

type iterConfig struct {
	from    any
	reverse bool
}

// IterOption configures Iterate.
type IterOption func(*iterConfig)

// From starts the iteration at key, or at the nearest key after it (before
// it when iterating in reverse). key must have the key type of the bucket.
func From(key any) IterOption {
	return func(c *iterConfig) { c.from = key }
}

// Reverse iterates from the largest key to the smallest.
func Reverse() IterOption {
	return func(c *iterConfig) { c.reverse = true }
}

// Iter is a single pass iteration over a bucket.
type Iter[K, V any] struct {
	cursor  *Cursor[K, V]
	from    []byte
	reverse bool
	started bool
	done    bool

	key   K
	value V
	err   error
}

// Iterate returns an iterator over b.
func Iterate[K, V any](txn *Txn, b *Bucket[K, V], opts ...IterOption) (*Iter[K, V], error) {
	var cfg iterConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var from []byte
	if cfg.from != nil {
		key, ok := cfg.from.(K)
		if !ok {
			return nil, fmt.Errorf("%w: iteration start %T is not a bucket key", ErrEncoding, cfg.from)
		}

		var err error
		if from, err = b.keys.Encode(key); err != nil {
			return nil, encodingError("key", err)
		}
	}

	c, err := OpenCursor(txn, b)
	if err != nil {
		return nil, err
	}
	return &Iter[K, V]{cursor: c, from: from, reverse: cfg.reverse}, nil
}

func (it *Iter[K, V]) move(ec engine.Cursor) ([]byte, []byte, error) {
	if it.started {
		if it.reverse {
			return ec.Prev()
		}
		return ec.Next()
	}
	it.started = true

	switch {
	case it.from == nil && it.reverse:
		return ec.Last()
	case it.from == nil:
		return ec.First()
	case !it.reverse:
		return ec.Seek(it.from)
	}

	k, v, err := ec.Seek(it.from)
	if errors.Is(err, engine.ErrNotFound) {
		return ec.Last()
	}
	if err != nil || bytes.Equal(k, it.from) {
		return k, v, err
	}
	return ec.Prev()
}

// Next advances the iterator and reports whether an entry is available.
func (it *Iter[K, V]) Next() bool {
	if it.done {
		return false
	}

	if err := it.cursor.check(); err != nil {
		it.err = err
		it.done = true
		return false
	}

	key, value, err := it.cursor.decode(it.move(it.cursor.h.c))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			it.err = err
		}
		it.done = true
		it.cursor.Close()
		return false
	}

	it.key, it.value = key, value
	return true
}

func (it *Iter[K, V]) Key() K     { return it.key }
func (it *Iter[K, V]) Value() V   { return it.value }
func (it *Iter[K, V]) Err() error { return it.err }

func (it *Iter[K, V]) Close() error {
	it.done = true
	return it.cursor.Close()
}

// Entry is a key/value pair.
type Entry[K, V any] struct {
	Key   K
	Value V
}

// Collect drains it into a slice and closes it.
func Collect[K, V any](it *Iter[K, V]) ([]Entry[K, V], error) {
	defer it.Close()

	var entries []Entry[K, V]
	for it.Next() {
		entries = append(entries, Entry[K, V]{Key: it.key, Value: it.value})
	}
	return entries, it.Err()
}
