package kv

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
)

// Codec converts values of type T to and from the bytes stored in a bucket.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// Integer is an unsigned 64 bit key stored big-endian, so that byte order
// and numeric order agree.
type Integer [8]byte

// IntegerFrom returns n as an Integer.
func IntegerFrom(n uint64) Integer {
	var i Integer
	binary.BigEndian.PutUint64(i[:], n)
	return i
}

// IntegerFromBytes fails with ErrEncoding unless b is exactly 8 bytes long.
func IntegerFromBytes(b []byte) (Integer, error) {
	var i Integer
	if len(b) != len(i) {
		return i, fmt.Errorf("%w: integer needs 8 bytes, got %d", ErrEncoding, len(b))
	}
	copy(i[:], b)
	return i, nil
}

// Uint64 returns the numeric value of i.
func (i Integer) Uint64() uint64 {
	return binary.BigEndian.Uint64(i[:])
}

// Bytes returns the 8 byte big-endian encoding of i. The slice is a copy
// and may be retained.
func (i Integer) Bytes() []byte {
	return i[:]
}

// Compare returns -1, 0 or +1 as i is less than, equal to or greater than o.
// Numeric and byte order agree.
func (i Integer) Compare(o Integer) int {
	return bytes.Compare(i[:], o[:])
}

// String formats i in decimal.
func (i Integer) String() string {
	return strconv.FormatUint(i.Uint64(), 10)
}

// ValueRef is a value borrowed from the engine. It is only valid until the
// transaction that produced it ends; use Copy to keep it longer.
type ValueRef []byte

// Copy returns a copy of v that outlives its transaction.
func (v ValueRef) Copy() []byte {
	return bytes.Clone(v)
}

// StringCodec stores a string as its raw bytes.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }
func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// BytesCodec copies decoded values out of engine memory.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }
func (BytesCodec) Decode(b []byte) ([]byte, error) { return bytes.Clone(b), nil }

// RefCodec decodes without copying. Decoded values carry the lifetime rules
// of ValueRef.
type RefCodec struct{}

func (RefCodec) Encode(v ValueRef) ([]byte, error) { return v, nil }
func (RefCodec) Decode(b []byte) (ValueRef, error) { return ValueRef(b), nil }

// IntegerCodec stores an Integer as its 8 byte encoding. Decoding fails
// with ErrEncoding for values of any other length.
type IntegerCodec struct{}

func (IntegerCodec) Encode(v Integer) ([]byte, error) { return v.Bytes(), nil }
func (IntegerCodec) Decode(b []byte) (Integer, error) { return IntegerFromBytes(b) }

// Uint64Codec stores a uint64 as an Integer.
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) ([]byte, error) {
	return IntegerFrom(v).Bytes(), nil
}

func (Uint64Codec) Decode(b []byte) (uint64, error) {
	i, err := IntegerFromBytes(b)
	return i.Uint64(), err
}

// CodecFor returns the built-in codec for T. Supported types are string,
// []byte, ValueRef, Integer and uint64.
func CodecFor[T any]() (Codec[T], error) {
	var (
		zero T
		c    any
	)

	switch any(zero).(type) {
	case string:
		c = StringCodec{}
	case []byte:
		c = BytesCodec{}
	case ValueRef:
		c = RefCodec{}
	case Integer:
		c = IntegerCodec{}
	case uint64:
		c = Uint64Codec{}
	default:
		return nil, fmt.Errorf("%w: no default codec for %s", ErrEncoding, reflect.TypeFor[T]())
	}
	return c.(Codec[T]), nil
}
