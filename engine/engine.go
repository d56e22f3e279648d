// Package engine defines the capability kv needs from an embedded, ordered,
// transactional key/value engine, and the adapters implementing it live in its
// sub-packages.
package engine

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/inconshreveable/log15"
)

var (
	// ErrNotFound is returned by Txn.Get and by cursor movements that run off
	// the end of a bucket.
	ErrNotFound = errors.New("engine: not found")
	// ErrUnsupported is returned when an engine cannot honor a bucket flag.
	ErrUnsupported = errors.New("engine: unsupported bucket flags")
	// ErrIncompatible is returned when a bucket already exists with flags
	// that order it differently.
	ErrIncompatible = errors.New("engine: bucket exists with incompatible flags")
)

// Flags select the ordering and duplicate policy of a bucket.
type Flags uint

const (
	// IntegerKey orders keys as unsigned 64 bit integers. Keys are handed to
	// the engine as 8 byte big-endian values, whose byte order is already
	// numeric, so adapters store them in ordinary byte-ordered databases.
	IntegerKey Flags = 1 << iota
	// DupSort allows several sorted values per key.
	DupSort
	// ReverseKey compares keys starting from their last byte.
	ReverseKey
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{IntegerKey, "integer_key"},
	{DupSort, "dup_sort"},
	{ReverseKey, "reverse_key"},
}

// Has reports whether all bits of o are set.
func (f Flags) Has(o Flags) bool { return f&o == o }

// Names returns the symbolic names of the set flags.
func (f Flags) Names() []string {
	names := make([]string, 0, len(flagNames))
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			names = append(names, fn.name)
		}
	}
	return names
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// ParseFlag returns the flag with the given symbolic name.
func ParseFlag(name string) (Flags, bool) {
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}

// Options are the environment level settings shared by all adapters.
// Adapters ignore the settings that have no meaning for them.
type Options struct {
	// Path is a directory; adapters place their files inside it.
	Path        string
	ReadOnly    bool
	NoSync      bool
	FileMode    os.FileMode
	MapSize     int64
	MaxReaders  int
	MaxBuckets  int
	OpenTimeout time.Duration

	// GCReclaimInterval and GCDiscardRatio drive value log garbage
	// collection on engines that have one.
	GCReclaimInterval time.Duration
	GCDiscardRatio    float64

	Logger log15.Logger
}

// Env is one opened engine instance.
type Env interface {
	// OpenBucket opens the named sub-database, creating it unless the
	// environment is read-only. The empty name denotes the default bucket.
	OpenBucket(name string, flags Flags) (Bucket, error)
	Begin(writable bool) (Txn, error)
	Sync(force bool) error
	Stat() (Stat, error)
	Close() error
}

// Bucket is an opaque handle to a sub-database, valid for the lifetime of
// the Env that opened it.
type Bucket interface {
	Name() string
	Flags() Flags
}

// Txn is a transaction. Returned slices are owned by the engine and stay valid
// until the transaction ends.
type Txn interface {
	Get(b Bucket, key []byte) ([]byte, error)
	Put(b Bucket, key, value []byte) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(b Bucket, key []byte) error
	Cursor(b Bucket) (Cursor, error)
	Commit() error
	Rollback() error
}

// Cursor walks a bucket in key order. Every movement returns ErrNotFound
// when there is no entry at the requested position. Next on a fresh cursor
// behaves like First, Prev like Last.
type Cursor interface {
	First() (key, value []byte, err error)
	Last() (key, value []byte, err error)
	Next() (key, value []byte, err error)
	Prev() (key, value []byte, err error)
	// Seek positions at the smallest key greater than or equal to key.
	Seek(key []byte) (k, value []byte, err error)
	SeekExact(key []byte) (value []byte, err error)
	Current() (key, value []byte, err error)
	Close() error
}

// Stat is engine reported environment statistics.
type Stat struct {
	PageSize      uint64
	Depth         uint64
	BranchPages   uint64
	LeafPages     uint64
	OverflowPages uint64
	Entries       uint64
}

// Check returns ErrUnsupported when flags contains bits outside supported.
func Check(flags, supported Flags) error {
	if flags&^supported != 0 {
		return fmt.Errorf("%w: %s", ErrUnsupported, flags&^supported)
	}
	return nil
}

// EmptyCursor is a cursor over a bucket without entries.
type EmptyCursor struct{}

func (EmptyCursor) First() ([]byte, []byte, error)      { return nil, nil, ErrNotFound }
func (EmptyCursor) Last() ([]byte, []byte, error)       { return nil, nil, ErrNotFound }
func (EmptyCursor) Next() ([]byte, []byte, error)       { return nil, nil, ErrNotFound }
func (EmptyCursor) Prev() ([]byte, []byte, error)       { return nil, nil, ErrNotFound }
func (EmptyCursor) Seek([]byte) ([]byte, []byte, error) { return nil, nil, ErrNotFound }
func (EmptyCursor) SeekExact([]byte) ([]byte, error)    { return nil, ErrNotFound }
func (EmptyCursor) Current() ([]byte, []byte, error)    { return nil, nil, ErrNotFound }
func (EmptyCursor) Close() error                        { return nil }
