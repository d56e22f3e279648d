// Package enginetest is a conformance suite run by every engine adapter.
package enginetest

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/ostafen/kv/engine"
	"github.com/stretchr/testify/require"
)

// Opener opens an adapter environment.
type Opener func(opts engine.Options) (engine.Env, error)

// Run executes the suite against open. supported lists the bucket flags the
// adapter claims to honor.
func Run(t *testing.T, open Opener, supported engine.Flags) {
	tests := []struct {
		name string
		fn   func(t *testing.T, open Opener, supported engine.Flags)
	}{
		{"PutGet", testPutGet},
		{"NotFound", testNotFound},
		{"DeleteMissing", testDeleteMissing},
		{"Rollback", testRollback},
		{"BucketsIsolated", testBucketsIsolated},
		{"CursorOrder", testCursorOrder},
		{"CursorFresh", testCursorFresh},
		{"CursorExhausted", testCursorExhausted},
		{"CursorSeek", testCursorSeek},
		{"CursorCurrent", testCursorCurrent},
		{"IntegerKeyOrder", testIntegerKeyOrder},
		{"Snapshot", testSnapshot},
		{"Reopen", testReopen},
		{"UnsupportedFlags", testUnsupportedFlags},
		{"IncompatibleFlags", testIncompatibleFlags},
		{"Stat", testStat},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.fn(t, open, supported)
		})
	}
}

func options(t *testing.T) engine.Options {
	return engine.Options{
		Path:       t.TempDir(),
		MaxBuckets: 8,
		MapSize:    64 << 20,
	}
}

func openEnv(t *testing.T, open Opener, opts engine.Options) engine.Env {
	env, err := open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

func openBucket(t *testing.T, env engine.Env, name string, flags engine.Flags) engine.Bucket {
	b, err := env.OpenBucket(name, flags)
	require.NoError(t, err)
	return b
}

func update(t *testing.T, env engine.Env, fn func(txn engine.Txn)) {
	txn, err := env.Begin(true)
	require.NoError(t, err)
	fn(txn)
	require.NoError(t, txn.Commit())
}

func view(t *testing.T, env engine.Env, fn func(txn engine.Txn)) {
	txn, err := env.Begin(false)
	require.NoError(t, err)
	defer txn.Rollback()
	fn(txn)
}

func put(t *testing.T, txn engine.Txn, b engine.Bucket, key, value string) {
	require.NoError(t, txn.Put(b, []byte(key), []byte(value)))
}

func get(t *testing.T, txn engine.Txn, b engine.Bucket, key string) string {
	v, err := txn.Get(b, []byte(key))
	require.NoError(t, err)
	return string(v)
}

func testPutGet(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "testing", "abc123")
		require.Equal(t, "abc123", get(t, txn, b, "testing"))
	})

	view(t, env, func(txn engine.Txn) {
		require.Equal(t, "abc123", get(t, txn, b, "testing"))
	})

	update(t, env, func(txn engine.Txn) {
		require.NoError(t, txn.Delete(b, []byte("testing")))
	})

	view(t, env, func(txn engine.Txn) {
		_, err := txn.Get(b, []byte("testing"))
		require.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func testNotFound(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "missing", 0)

	view(t, env, func(txn engine.Txn) {
		_, err := txn.Get(b, []byte(gofakeit.Word()))
		require.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func testDeleteMissing(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "b", 0)

	update(t, env, func(txn engine.Txn) {
		require.NoError(t, txn.Delete(b, []byte("nope")))
	})
}

func testRollback(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "", 0)

	txn, err := env.Begin(true)
	require.NoError(t, err)
	put(t, txn, b, "k", "v")
	require.NoError(t, txn.Rollback())

	view(t, env, func(txn engine.Txn) {
		_, err := txn.Get(b, []byte("k"))
		require.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func testBucketsIsolated(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b1 := openBucket(t, env, "b1", 0)
	b2 := openBucket(t, env, "b2", 0)
	b11 := openBucket(t, env, "b11", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b1, "k", "one")
		put(t, txn, b2, "k", "two")
		put(t, txn, b11, "a", "eleven")
	})

	view(t, env, func(txn engine.Txn) {
		require.Equal(t, "one", get(t, txn, b1, "k"))
		require.Equal(t, "two", get(t, txn, b2, "k"))

		c, err := txn.Cursor(b1)
		require.NoError(t, err)
		defer c.Close()

		k, _, err := c.First()
		require.NoError(t, err)
		require.Equal(t, "k", string(k))

		_, _, err = c.Next()
		require.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func testCursorOrder(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "ordered", 0)

	keys := make([]string, 50)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%03d", i)
	}
	shuffled := append([]string(nil), keys...)
	gofakeit.ShuffleStrings(shuffled)

	update(t, env, func(txn engine.Txn) {
		for _, k := range shuffled {
			put(t, txn, b, k, "v-"+k)
		}
	})

	view(t, env, func(txn engine.Txn) {
		c, err := txn.Cursor(b)
		require.NoError(t, err)
		defer c.Close()

		var forward []string
		for k, v, err := c.First(); err == nil; k, v, err = c.Next() {
			require.Equal(t, "v-"+string(k), string(v))
			forward = append(forward, string(k))
		}
		require.Equal(t, keys, forward)

		var backward []string
		for k, _, err := c.Last(); err == nil; k, _, err = c.Prev() {
			backward = append([]string{string(k)}, backward...)
		}
		require.Equal(t, keys, backward)
	})
}

func testCursorFresh(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "a", "1")
		put(t, txn, b, "b", "2")
		put(t, txn, b, "c", "3")
	})

	view(t, env, func(txn engine.Txn) {
		c, err := txn.Cursor(b)
		require.NoError(t, err)
		k, _, err := c.Next()
		require.NoError(t, err)
		require.Equal(t, "a", string(k))
		require.NoError(t, c.Close())

		c, err = txn.Cursor(b)
		require.NoError(t, err)
		k, _, err = c.Prev()
		require.NoError(t, err)
		require.Equal(t, "c", string(k))
		require.NoError(t, c.Close())
	})
}

func testCursorExhausted(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "a", "1")
		put(t, txn, b, "b", "2")
	})

	view(t, env, func(txn engine.Txn) {
		c, err := txn.Cursor(b)
		require.NoError(t, err)
		defer c.Close()

		var got []string
		for i := 0; i < 4; i++ {
			k, _, err := c.Next()
			if i < 2 {
				require.NoError(t, err)
				got = append(got, string(k))
				continue
			}
			require.ErrorIs(t, err, engine.ErrNotFound, "next #%d", i+1)
		}
		require.Equal(t, []string{"a", "b"}, got)

		_, _, err = c.Current()
		require.ErrorIs(t, err, engine.ErrNotFound)

		k, _, err := c.First()
		require.NoError(t, err)
		require.Equal(t, "a", string(k))
	})
}

func testCursorSeek(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "seek", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "apple", "1")
		put(t, txn, b, "banana", "2")
		put(t, txn, b, "cherry", "3")
	})

	view(t, env, func(txn engine.Txn) {
		c, err := txn.Cursor(b)
		require.NoError(t, err)
		defer c.Close()

		k, v, err := c.Seek([]byte("b"))
		require.NoError(t, err)
		require.Equal(t, "banana", string(k))
		require.Equal(t, "2", string(v))

		k, _, err = c.Next()
		require.NoError(t, err)
		require.Equal(t, "cherry", string(k))

		_, _, err = c.Seek([]byte("d"))
		require.ErrorIs(t, err, engine.ErrNotFound)

		v, err = c.SeekExact([]byte("apple"))
		require.NoError(t, err)
		require.Equal(t, "1", string(v))

		_, err = c.SeekExact([]byte("apricot"))
		require.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func testCursorCurrent(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "only", "one")
	})

	view(t, env, func(txn engine.Txn) {
		c, err := txn.Cursor(b)
		require.NoError(t, err)
		defer c.Close()

		_, _, err = c.First()
		require.NoError(t, err)

		k, v, err := c.Current()
		require.NoError(t, err)
		require.Equal(t, "only", string(k))
		require.Equal(t, "one", string(v))

		_, _, err = c.Next()
		require.ErrorIs(t, err, engine.ErrNotFound)

		_, _, err = c.Current()
		require.ErrorIs(t, err, engine.ErrNotFound)
	})
}

func u64(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

func testIntegerKeyOrder(t *testing.T, open Opener, supported engine.Flags) {
	if !supported.Has(engine.IntegerKey) {
		t.Skip("integer keys not supported")
	}

	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "ints", engine.IntegerKey)

	nums := []uint64{256, 1, 1 << 40, 2, 3}
	update(t, env, func(txn engine.Txn) {
		for _, n := range nums {
			require.NoError(t, txn.Put(b, u64(n), []byte(fmt.Sprint(n))))
		}
	})

	view(t, env, func(txn engine.Txn) {
		v, err := txn.Get(b, u64(256))
		require.NoError(t, err)
		require.Equal(t, "256", string(v))

		c, err := txn.Cursor(b)
		require.NoError(t, err)
		defer c.Close()

		var got []uint64
		for k, _, err := c.First(); err == nil; k, _, err = c.Next() {
			got = append(got, binary.BigEndian.Uint64(k))
		}
		require.Equal(t, []uint64{1, 2, 3, 256, 1 << 40}, got)

		k, _, err := c.Seek(u64(4))
		require.NoError(t, err)
		require.Equal(t, uint64(256), binary.BigEndian.Uint64(k))
	})
}

// testSnapshot keeps the read transaction on its own goroutine, as engines
// bind transactions to threads.
func testSnapshot(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "k", "old")
	})

	begun := make(chan struct{})
	written := make(chan struct{})
	result := make(chan string, 1)
	errs := make(chan error, 1)

	go func() {
		txn, err := env.Begin(false)
		if err != nil {
			errs <- err
			close(begun)
			return
		}
		defer txn.Rollback()
		close(begun)

		<-written
		v, err := txn.Get(b, []byte("k"))
		if err != nil {
			errs <- err
			return
		}
		result <- string(v)
	}()

	<-begun
	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "k", "new")
	})
	close(written)

	select {
	case err := <-errs:
		require.NoError(t, err)
	case v := <-result:
		require.Equal(t, "old", v)
	}

	view(t, env, func(txn engine.Txn) {
		require.Equal(t, "new", get(t, txn, b, "k"))
	})
}

func testReopen(t *testing.T, open Opener, _ engine.Flags) {
	opts := options(t)

	env, err := open(opts)
	require.NoError(t, err)
	b := openBucket(t, env, "persist", 0)
	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "k", "v")
	})
	require.NoError(t, env.Sync(true))
	require.NoError(t, env.Close())

	opts.ReadOnly = true
	env = openEnv(t, open, opts)
	b = openBucket(t, env, "persist", 0)
	view(t, env, func(txn engine.Txn) {
		require.Equal(t, "v", get(t, txn, b, "k"))
	})
	require.NoError(t, env.Sync(true))
}

func testUnsupportedFlags(t *testing.T, open Opener, supported engine.Flags) {
	env := openEnv(t, open, options(t))

	for _, f := range []engine.Flags{engine.IntegerKey, engine.DupSort, engine.ReverseKey} {
		if supported.Has(f) {
			continue
		}
		_, err := env.OpenBucket("flagged", f)
		require.ErrorIs(t, err, engine.ErrUnsupported)
	}
}

func testIncompatibleFlags(t *testing.T, open Opener, supported engine.Flags) {
	if !supported.Has(engine.DupSort) {
		t.Skip("dupsort not supported")
	}

	opts := options(t)
	env, err := open(opts)
	require.NoError(t, err)
	b := openBucket(t, env, "dups", engine.DupSort)
	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, "k", "v")
	})
	require.NoError(t, env.Close())

	env = openEnv(t, open, opts)
	_, err = env.OpenBucket("dups", 0)
	require.ErrorIs(t, err, engine.ErrIncompatible)

	b = openBucket(t, env, "dups", engine.DupSort|engine.IntegerKey)
	view(t, env, func(txn engine.Txn) {
		require.Equal(t, "v", get(t, txn, b, "k"))
	})
}

func testStat(t *testing.T, open Opener, _ engine.Flags) {
	env := openEnv(t, open, options(t))
	b := openBucket(t, env, "", 0)

	update(t, env, func(txn engine.Txn) {
		put(t, txn, b, gofakeit.UUID(), gofakeit.Sentence(4))
	})

	_, err := env.Stat()
	require.NoError(t, err)
}
