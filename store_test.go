package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

var testEngines = []string{"mdbx", "lmdb", "bbolt", "badger"}

func testConfig(t *testing.T, dir, engineName string, opts ...Option) *Config {
	cfg, err := NewConfig(dir, append([]Option{WithEngine(engineName), WithMapSize(64 << 20)}, opts...)...)
	require.NoError(t, err)
	return cfg
}

func runStoreTest(t *testing.T, opts []Option, test func(t *testing.T, s *Store)) {
	for _, name := range testEngines {
		t.Run(name, func(t *testing.T) {
			h, err := NewManager().Open(testConfig(t, t.TempDir(), name, opts...))
			require.NoError(t, err)
			defer h.Close()

			require.NoError(t, h.Read(func(s *Store) error {
				test(t, s)
				return nil
			}))
		})
	}
}

func set[K, V any](t *testing.T, s *Store, b *Bucket[K, V], key K, value V) {
	require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
		return Set(txn, b, key, value)
	}))
}

func get[K, V any](t *testing.T, s *Store, b *Bucket[K, V], key K) (V, error) {
	return View(s, func(txn *Txn) (V, error) {
		return Get(txn, b, key)
	})
}

func TestSetGetDefaultBucket(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)
		require.Equal(t, "", b.Name())

		set(t, s, b, "testing", "abc123")

		v, err := get(t, s, b, "testing")
		require.NoError(t, err)
		require.Equal(t, "abc123", v)

		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			return Del(txn, b, "testing")
		}))

		_, err = get(t, s, b, "testing")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDefaultBucketName(t *testing.T) {
	runStoreTest(t, []Option{WithBucket(DefaultBucketName, 0)}, func(t *testing.T, s *Store) {
		require.Equal(t, []string{""}, s.Buckets())

		b1, err := OpenBucket[string, string](s, DefaultBucketName)
		require.NoError(t, err)
		b2, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		set(t, s, b1, "k", "v")
		v, err := get(t, s, b2, "k")
		require.NoError(t, err)
		require.Equal(t, "v", v)
	})
}

func TestUndeclaredBucket(t *testing.T) {
	runStoreTest(t, []Option{WithBucket("users", 0)}, func(t *testing.T, s *Store) {
		_, err := OpenBucket[string, string](s, "orders")
		require.ErrorIs(t, err, ErrInvalidBucket)

		_, err = OpenIntBucket[string](s, "orders")
		require.ErrorIs(t, err, ErrInvalidBucket)

		_, err = OpenBucket[string, string](s, "users")
		require.NoError(t, err)
	})
}

func TestBucketsAreSeparate(t *testing.T) {
	opts := []Option{WithBucket("a", 0), WithBucket("b", 0)}
	runStoreTest(t, opts, func(t *testing.T, s *Store) {
		a, err := OpenBucket[string, string](s, "a")
		require.NoError(t, err)
		b, err := OpenBucket[string, string](s, "b")
		require.NoError(t, err)

		set(t, s, a, "k", "in a")

		_, err = get(t, s, b, "k")
		require.ErrorIs(t, err, ErrNotFound)
		require.Equal(t, []string{"", "a", "b"}, s.Buckets())
	})
}

func TestHas(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, []byte](s, "")
		require.NoError(t, err)

		key := gofakeit.UUID()
		set(t, s, b, key, []byte(gofakeit.Sentence(3)))

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			ok, err := Has(txn, b, key)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = Has(txn, b, "missing")
			require.NoError(t, err)
			require.False(t, ok)
			return nil
		}))
	})
}

func TestDelMissingKey(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			return Del(txn, b, "never-written")
		}))
	})
}

func TestWriteInReadTxn(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			require.False(t, txn.Writable())
			require.ErrorIs(t, Set(txn, b, "k", "v"), ErrReadOnly)
			require.ErrorIs(t, Del(txn, b, "k"), ErrReadOnly)
			return nil
		}))
	})
}

func TestTxnState(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		txn, err := s.WriteTxn()
		require.NoError(t, err)
		require.NoError(t, Set(txn, b, "k", "v"))
		require.NoError(t, txn.Commit())

		require.ErrorIs(t, txn.Commit(), ErrTxnState)
		require.ErrorIs(t, txn.Abort(), ErrTxnState)
		require.ErrorIs(t, Set(txn, b, "k", "v2"), ErrTxnState)
		_, err = Get(txn, b, "k")
		require.ErrorIs(t, err, ErrTxnState)
		_, err = OpenCursor(txn, b)
		require.ErrorIs(t, err, ErrTxnState)

		txn, err = s.ReadTxn()
		require.NoError(t, err)
		require.NoError(t, txn.Abort())
		require.ErrorIs(t, txn.Abort(), ErrTxnState)
		require.ErrorIs(t, txn.Commit(), ErrTxnState)

		txn, err = s.ReadTxn()
		require.NoError(t, err)
		v, err := Get(txn, b, "k")
		require.NoError(t, err)
		require.Equal(t, "v", v)
		require.NoError(t, txn.Commit())
	})
}

func TestAbortDiscardsWrites(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		txn, err := s.WriteTxn()
		require.NoError(t, err)
		require.NoError(t, Set(txn, b, "k", "v"))
		require.NoError(t, txn.Abort())

		_, err = get(t, s, b, "k")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestWithWriteTxnAbortsOnError(t *testing.T) {
	runStoreTest(t, []Option{WithWriteTimeout(0)}, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		errBoom := errors.New("boom")
		err = s.WithWriteTxn(func(txn *Txn) error {
			require.NoError(t, Set(txn, b, "k", "v"))
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)

		_, err = get(t, s, b, "k")
		require.ErrorIs(t, err, ErrNotFound)

		require.Panics(t, func() {
			s.WithWriteTxn(func(txn *Txn) error {
				require.NoError(t, Set(txn, b, "k", "v"))
				panic("boom")
			})
		})

		_, err = get(t, s, b, "k")
		require.ErrorIs(t, err, ErrNotFound)

		// the writer slot was released by the aborted transactions
		txn, err := s.WriteTxn()
		require.NoError(t, err)
		require.NoError(t, txn.Abort())
	})
}

func TestViewUpdate(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, uint64](s, "")
		require.NoError(t, err)

		n, err := Update(s, func(txn *Txn) (uint64, error) {
			return 42, Set(txn, b, "answer", 42)
		})
		require.NoError(t, err)
		require.Equal(t, uint64(42), n)

		n, err = View(s, func(txn *Txn) (uint64, error) {
			return Get(txn, b, "answer")
		})
		require.NoError(t, err)
		require.Equal(t, uint64(42), n)
	})
}

// The reader runs on its own goroutine: engines bind transactions to the
// thread that began them.
func TestSnapshotIsolation(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)
		set(t, s, b, "k", "old")

		begun := make(chan error, 1)
		written := make(chan struct{})
		seen := make(chan string, 2)
		errs := make(chan error, 1)

		go func() {
			txn, err := s.ReadTxn()
			begun <- err
			if err != nil {
				return
			}
			defer txn.Abort()

			<-written
			v, err := Get(txn, b, "k")
			if err != nil {
				errs <- err
				return
			}
			seen <- v
		}()

		require.NoError(t, <-begun)
		set(t, s, b, "k", "new")
		close(written)

		select {
		case err := <-errs:
			require.NoError(t, err)
		case v := <-seen:
			require.Equal(t, "old", v)
		}

		v, err := get(t, s, b, "k")
		require.NoError(t, err)
		require.Equal(t, "new", v)
	})
}

func TestIntegerKeysIterateInOrder(t *testing.T) {
	runStoreTest(t, []Option{WithBucket("ints", IntegerKey)}, func(t *testing.T, s *Store) {
		b, err := OpenIntBucket[string](s, "ints")
		require.NoError(t, err)
		require.True(t, b.Flags().Has(IntegerKey))

		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			for _, e := range []struct {
				n uint64
				v string
			}{{3, "c"}, {1, "a"}, {2, "b"}} {
				if err := Set(txn, b, IntegerFrom(e.n), e.v); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			it, err := Iterate(txn, b)
			require.NoError(t, err)

			entries, err := Collect(it)
			require.NoError(t, err)
			require.Len(t, entries, 3)

			for i, e := range entries {
				require.Equal(t, uint64(i+1), e.Key.Uint64())
				require.Equal(t, string(rune('a'+i)), e.Value)
			}
			return nil
		}))
	})
}

func TestIntegerKeysAcrossByteBoundary(t *testing.T) {
	runStoreTest(t, []Option{WithBucket("ints", IntegerKey)}, func(t *testing.T, s *Store) {
		b, err := OpenIntBucketWith(s, "ints", Uint64Codec{})
		require.NoError(t, err)

		nums := []uint64{1 << 32, 255, 256, 1, 65535, 1 << 16}
		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			for _, n := range nums {
				if err := Set(txn, b, IntegerFrom(n), n); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			it, err := Iterate(txn, b)
			require.NoError(t, err)
			defer it.Close()

			var got []uint64
			for it.Next() {
				require.Equal(t, it.Key().Uint64(), it.Value())
				got = append(got, it.Value())
			}
			require.NoError(t, it.Err())
			require.Equal(t, []uint64{1, 255, 256, 65535, 1 << 16, 1 << 32}, got)
			return nil
		}))
	})
}

func TestIntegerKeysOnPlainBucket(t *testing.T) {
	runStoreTest(t, []Option{WithBucket("nums", 0)}, func(t *testing.T, s *Store) {
		b, err := OpenIntBucketWith(s, "nums", Uint64Codec{})
		require.NoError(t, err)

		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			for _, n := range []uint64{256, 1, 2} {
				if err := Set(txn, b, IntegerFrom(n), n); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			it, err := Iterate(txn, b)
			require.NoError(t, err)

			entries, err := Collect(it)
			require.NoError(t, err)

			var got []uint64
			for _, e := range entries {
				got = append(got, e.Key.Uint64())
			}
			require.Equal(t, []uint64{1, 2, 256}, got)
			return nil
		}))
	})
}

func TestOpenBucketInsideWriteTxn(t *testing.T) {
	opts := []Option{WithBucket("nums", 0), WithBucket("names", 0), WithWriteTimeout(0)}
	runStoreTest(t, opts, func(t *testing.T, s *Store) {
		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			ints, err := OpenIntBucket[string](s, "nums")
			require.NoError(t, err)
			names, err := OpenBucket[string, string](s, "names")
			require.NoError(t, err)

			require.NoError(t, Set(txn, ints, IntegerFrom(7), "seven"))
			return Set(txn, names, "seven", "7")
		}))

		b, err := OpenIntBucket[string](s, "nums")
		require.NoError(t, err)
		v, err := get(t, s, b, IntegerFrom(7))
		require.NoError(t, err)
		require.Equal(t, "seven", v)
	})
}

func fillLetters(t *testing.T, s *Store, b *Bucket[string, string]) {
	require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
		for _, k := range []string{"d", "b", "a", "e", "c"} {
			if err := Set(txn, b, k, "v"+k); err != nil {
				return err
			}
		}
		return nil
	}))
}

func TestCursor(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)
		fillLetters(t, s, b)

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			c, err := OpenCursor(txn, b)
			require.NoError(t, err)
			defer c.Close()

			_, _, err = c.Current()
			require.ErrorIs(t, err, ErrNotFound)

			k, v, err := c.Next()
			require.NoError(t, err)
			require.Equal(t, "a", k)
			require.Equal(t, "va", v)

			k, _, err = c.Last()
			require.NoError(t, err)
			require.Equal(t, "e", k)

			k, _, err = c.Prev()
			require.NoError(t, err)
			require.Equal(t, "d", k)

			k, v, err = c.Current()
			require.NoError(t, err)
			require.Equal(t, "d", k)
			require.Equal(t, "vd", v)

			k, _, err = c.Seek("bb")
			require.NoError(t, err)
			require.Equal(t, "c", k)

			_, _, err = c.Seek("z")
			require.ErrorIs(t, err, ErrNotFound)

			v, err = c.SeekExact("b")
			require.NoError(t, err)
			require.Equal(t, "vb", v)

			_, err = c.SeekExact("bb")
			require.ErrorIs(t, err, ErrNotFound)

			k, _, err = c.First()
			require.NoError(t, err)
			require.Equal(t, "a", k)

			_, _, err = c.Prev()
			require.ErrorIs(t, err, ErrNotFound)
			return nil
		}))
	})
}

func TestFreshCursorPrevIsLast(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)
		fillLetters(t, s, b)

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			c, err := OpenCursor(txn, b)
			require.NoError(t, err)

			k, _, err := c.Prev()
			require.NoError(t, err)
			require.Equal(t, "e", k)

			require.NoError(t, c.Close())
			require.NoError(t, c.Close())

			_, _, err = c.First()
			require.ErrorIs(t, err, ErrTxnState)
			return nil
		}))
	})
}

func TestIterOptions(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)
		fillLetters(t, s, b)

		keys := func(txn *Txn, opts ...IterOption) []string {
			it, err := Iterate(txn, b, opts...)
			require.NoError(t, err)

			entries, err := Collect(it)
			require.NoError(t, err)

			var ks []string
			for _, e := range entries {
				ks = append(ks, e.Key)
			}
			return ks
		}

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			require.Equal(t, []string{"a", "b", "c", "d", "e"}, keys(txn))
			require.Equal(t, []string{"e", "d", "c", "b", "a"}, keys(txn, Reverse()))
			require.Equal(t, []string{"c", "d", "e"}, keys(txn, From("c")))
			require.Equal(t, []string{"c", "d", "e"}, keys(txn, From("bb")))
			require.Equal(t, []string{"c", "b", "a"}, keys(txn, From("c"), Reverse()))
			require.Equal(t, []string{"b", "a"}, keys(txn, From("bb"), Reverse()))
			require.Equal(t, []string{"e", "d", "c", "b", "a"}, keys(txn, From("z"), Reverse()))
			require.Empty(t, keys(txn, From("z")))

			_, err := Iterate(txn, b, From(42))
			require.ErrorIs(t, err, ErrEncoding)
			return nil
		}))
	})
}

func TestIterSinglePass(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)
		fillLetters(t, s, b)

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			it, err := Iterate(txn, b)
			require.NoError(t, err)

			n := 0
			for it.Next() {
				n++
			}
			require.Equal(t, 5, n)
			require.False(t, it.Next())
			require.NoError(t, it.Err())
			return it.Close()
		}))
	})
}

func TestCursorAfterTxnEnd(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)
		fillLetters(t, s, b)

		txn, err := s.ReadTxn()
		require.NoError(t, err)

		c, err := OpenCursor(txn, b)
		require.NoError(t, err)
		it, err := Iterate(txn, b)
		require.NoError(t, err)
		require.True(t, it.Next())

		require.NoError(t, txn.Commit())

		_, _, err = c.Next()
		require.ErrorIs(t, err, ErrTxnState)
		_, err = c.SeekExact("a")
		require.ErrorIs(t, err, ErrTxnState)
		require.NoError(t, c.Close())

		require.False(t, it.Next())
		require.ErrorIs(t, it.Err(), ErrTxnState)
	})
}

func TestValueRef(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, ValueRef](s, "")
		require.NoError(t, err)
		set(t, s, b, "k", ValueRef("borrowed"))

		var kept []byte
		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			ref, err := Get(txn, b, "k")
			require.NoError(t, err)
			require.Equal(t, "borrowed", string(ref))
			kept = ref.Copy()
			return nil
		}))
		require.Equal(t, []byte("borrowed"), kept)
	})
}

func TestTupleKeys(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[[]byte, string](s, "")
		require.NoError(t, err)

		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			for _, user := range []string{"bob", "alice"} {
				for _, n := range []uint64{10, 2} {
					k, err := Tuple(user, n)
					require.NoError(t, err)
					require.NoError(t, Set(txn, b, k, fmt.Sprintf("%s/%d", user, n)))
				}
			}
			return nil
		}))

		require.NoError(t, s.WithReadTxn(func(txn *Txn) error {
			it, err := Iterate(txn, b)
			require.NoError(t, err)

			entries, err := Collect(it)
			require.NoError(t, err)

			var values []string
			for _, e := range entries {
				values = append(values, e.Value)
			}
			require.Equal(t, []string{"alice/2", "alice/10", "bob/2", "bob/10"}, values)

			var (
				user string
				n    uint64
			)
			require.NoError(t, ParseTuple(entries[1].Key, &user, &n))
			require.Equal(t, "alice", user)
			require.Equal(t, uint64(10), n)
			return nil
		}))
	})
}

func TestBucketOfOtherStore(t *testing.T) {
	for _, name := range testEngines {
		t.Run(name, func(t *testing.T) {
			m := NewManager()

			h1, err := m.Open(testConfig(t, t.TempDir(), name))
			require.NoError(t, err)
			defer h1.Close()
			h2, err := m.Open(testConfig(t, t.TempDir(), name))
			require.NoError(t, err)
			defer h2.Close()

			var b1 *Bucket[string, string]
			require.NoError(t, h1.Read(func(s *Store) error {
				b1, err = OpenBucket[string, string](s, "")
				return err
			}))

			require.NoError(t, h2.Read(func(s *Store) error {
				return s.WithReadTxn(func(txn *Txn) error {
					_, err := Get(txn, b1, "k")
					require.ErrorIs(t, err, ErrInvalidBucket)
					return nil
				})
			}))
		})
	}
}

func TestWriterBusy(t *testing.T) {
	runStoreTest(t, []Option{WithWriteTimeout(0)}, func(t *testing.T, s *Store) {
		txn, err := s.WriteTxn()
		require.NoError(t, err)

		_, err = s.WriteTxn()
		require.ErrorIs(t, err, ErrWriterBusy)
		require.ErrorIs(t, err, ErrEngine)

		require.NoError(t, txn.Commit())

		txn, err = s.WriteTxn()
		require.NoError(t, err)
		require.NoError(t, txn.Abort())
	})
}

func TestWriterTimeout(t *testing.T) {
	runStoreTest(t, []Option{WithWriteTimeout(20 * time.Millisecond)}, func(t *testing.T, s *Store) {
		txn, err := s.WriteTxn()
		require.NoError(t, err)
		defer txn.Abort()

		start := time.Now()
		_, err = s.WriteTxn()
		require.ErrorIs(t, err, ErrWriterBusy)
		require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}

func TestWriterContext(t *testing.T) {
	runStoreTest(t, []Option{WithWriteTimeout(-1)}, func(t *testing.T, s *Store) {
		txn, err := s.WriteTxn()
		require.NoError(t, err)
		defer txn.Abort()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = s.WriteTxnContext(ctx)
		require.ErrorIs(t, err, ErrWriterBusy)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWriterWaitsForSlot(t *testing.T) {
	runStoreTest(t, []Option{WithWriteTimeout(-1)}, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		txn, err := s.WriteTxn()
		require.NoError(t, err)
		require.NoError(t, Set(txn, b, "k", "first"))

		done := make(chan error, 1)
		go func() {
			done <- s.WithWriteTxn(func(txn *Txn) error {
				return Set(txn, b, "k", "second")
			})
		}()

		select {
		case err := <-done:
			t.Fatalf("second writer finished early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}

		require.NoError(t, txn.Commit())
		require.NoError(t, <-done)

		v, err := get(t, s, b, "k")
		require.NoError(t, err)
		require.Equal(t, "second", v)
	})
}

type fileState struct {
	size    int64
	modTime time.Time
}

func snapshotDir(t *testing.T, dir string) map[string]fileState {
	files := map[string]fileState{}
	require.NoError(t, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files[path] = fileState{size: info.Size(), modTime: info.ModTime()}
		}
		return nil
	}))
	return files
}

func TestReadOnlyStore(t *testing.T) {
	for _, name := range testEngines {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			h, err := NewManager().Open(testConfig(t, dir, name, WithBucket("users", 0)))
			require.NoError(t, err)
			require.NoError(t, h.Read(func(s *Store) error {
				b, err := OpenBucket[string, string](s, "users")
				require.NoError(t, err)
				set(t, s, b, "alice", "admin")
				return s.Sync(true)
			}))
			require.NoError(t, h.Close())

			h, err = NewManager().Open(testConfig(t, dir, name, WithBucket("users", 0), WithReadOnly(true)))
			require.NoError(t, err)
			defer h.Close()

			require.NoError(t, h.Read(func(s *Store) error {
				require.True(t, s.ReadOnly())
				before := snapshotDir(t, dir)

				_, err := s.WriteTxn()
				require.ErrorIs(t, err, ErrReadOnly)
				err = s.WithWriteTxn(func(*Txn) error { return nil })
				require.ErrorIs(t, err, ErrReadOnly)

				require.Equal(t, before, snapshotDir(t, dir))

				b, err := OpenBucket[string, string](s, "users")
				require.NoError(t, err)
				v, err := get(t, s, b, "alice")
				require.NoError(t, err)
				require.Equal(t, "admin", v)
				return nil
			}))
		})
	}
}

func TestReadOnlyOpenMissingPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")

	_, err := NewManager().Open(testConfig(t, dir, "bbolt", WithReadOnly(true)))
	require.Error(t, err)

	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestStatAndSync(t *testing.T) {
	runStoreTest(t, nil, func(t *testing.T, s *Store) {
		b, err := OpenBucket[string, string](s, "")
		require.NoError(t, err)

		require.NoError(t, s.WithWriteTxn(func(txn *Txn) error {
			for i := 0; i < 100; i++ {
				if err := Set(txn, b, gofakeit.UUID(), gofakeit.Sentence(6)); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.Sync(true))
		require.NoError(t, s.Sync(false))

		_, err = s.Stat()
		require.NoError(t, err)
	})
}

func TestStoreConfigIsCopy(t *testing.T) {
	runStoreTest(t, []Option{WithBucket("a", 0)}, func(t *testing.T, s *Store) {
		c := s.Config()
		c.Buckets["b"] = 0
		c.ReadOnly = true

		require.Equal(t, []string{"", "a"}, s.Buckets())
		require.False(t, s.ReadOnly())
		require.NotEmpty(t, s.Path())
		require.False(t, s.EnvID().IsNil())
	})
}
