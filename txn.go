package kv

import (
	"errors"
	"fmt"

	"github.com/ostafen/kv/engine"
)

type txnState uint8

const (
	txnActive txnState = iota
	txnCommitted
	txnAborted
)

func (s txnState) String() string {
	switch s {
	case txnActive:
		return "active"
	case txnCommitted:
		return "committed"
	}
	return "aborted"
}

// Txn is a transaction over a Store. A Txn belongs to the goroutine that
// began it and must be ended with Commit or Abort. Once ended, every
// operation on it, or on cursors opened from it, fails with ErrTxnState.
type Txn struct {
	store    *Store
	txn      engine.Txn
	writable bool
	state    txnState
	cursors  []*cursorHandle
}

type cursorHandle struct {
	c      engine.Cursor
	closed bool
}

func (h *cursorHandle) close() {
	if !h.closed {
		h.closed = true
		h.c.Close()
	}
}

func newTxn(s *Store, etx engine.Txn, writable bool) *Txn {
	countBegin(writable)
	return &Txn{store: s, txn: etx, writable: writable}
}

func (t *Txn) Writable() bool { return t.writable }

func (t *Txn) check() error {
	if t.state != txnActive {
		return fmt.Errorf("%w: %s", ErrTxnState, t.state)
	}
	return nil
}

// use checks that t is active and belongs to s.
func (t *Txn) use(s *Store) error {
	if err := t.check(); err != nil {
		return err
	}
	if s != t.store {
		return fmt.Errorf("%w: bucket belongs to another environment", ErrInvalidBucket)
	}
	return nil
}

func (t *Txn) writeCheck(s *Store) error {
	if err := t.use(s); err != nil {
		return err
	}
	if !t.writable {
		return ErrReadOnly
	}
	return nil
}

func (t *Txn) finish(state txnState) {
	t.state = state
	t.store.log.Debug("txn finished", "writable", t.writable, "state", state)
	if t.writable {
		t.store.gate.release()
	}
}

func (t *Txn) closeCursors() {
	for _, h := range t.cursors {
		h.close()
	}
	t.cursors = nil
}

// Commit makes the writes of a write transaction durable and visible to
// transactions begun afterwards. On a read transaction it releases the
// snapshot.
func (t *Txn) Commit() error {
	if err := t.check(); err != nil {
		return err
	}
	t.closeCursors()

	var err error
	if t.writable {
		err = t.txn.Commit()
	} else {
		err = t.txn.Rollback()
	}

	if err != nil {
		t.finish(txnAborted)
		countEnd(t.writable, "error")
		return engineError("commit", err)
	}

	t.finish(txnCommitted)
	countEnd(t.writable, "commit")
	return nil
}

// Abort discards the transaction. Aborting an active transaction always
// succeeds.
func (t *Txn) Abort() error {
	if err := t.check(); err != nil {
		return err
	}
	t.closeCursors()

	if err := t.txn.Rollback(); err != nil {
		t.store.log.Warn("rollback failed", "err", err)
	}
	t.finish(txnAborted)
	countEnd(t.writable, "abort")
	return nil
}

func (t *Txn) release() {
	if t.state == txnActive {
		t.Abort()
	}
}

// Get returns the value stored under key, or ErrNotFound.
func Get[K, V any](txn *Txn, b *Bucket[K, V], key K) (V, error) {
	var zero V
	if err := txn.use(b.store); err != nil {
		return zero, err
	}

	k, err := b.keys.Encode(key)
	if err != nil {
		return zero, encodingError("key", err)
	}

	raw, err := txn.txn.Get(b.raw, k)
	if errors.Is(err, engine.ErrNotFound) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, engineError("get", err)
	}

	v, err := b.values.Decode(raw)
	if err != nil {
		return zero, encodingError("value", err)
	}
	return v, nil
}

// Has reports whether key is present.
func Has[K, V any](txn *Txn, b *Bucket[K, V], key K) (bool, error) {
	if err := txn.use(b.store); err != nil {
		return false, err
	}

	k, err := b.keys.Encode(key)
	if err != nil {
		return false, encodingError("key", err)
	}

	_, err = txn.txn.Get(b.raw, k)
	if errors.Is(err, engine.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, engineError("get", err)
	}
	return true, nil
}

// Set stores value under key, replacing any previous value.
func Set[K, V any](txn *Txn, b *Bucket[K, V], key K, value V) error {
	if err := txn.writeCheck(b.store); err != nil {
		return err
	}

	k, err := b.keys.Encode(key)
	if err != nil {
		return encodingError("key", err)
	}
	v, err := b.values.Encode(value)
	if err != nil {
		return encodingError("value", err)
	}

	return engineError("put", txn.txn.Put(b.raw, k, v))
}

// Del removes key. Removing a key that is not present succeeds.
func Del[K, V any](txn *Txn, b *Bucket[K, V], key K) error {
	if err := txn.writeCheck(b.store); err != nil {
		return err
	}

	k, err := b.keys.Encode(key)
	if err != nil {
		return encodingError("key", err)
	}

	return engineError("delete", txn.txn.Delete(b.raw, k))
}
