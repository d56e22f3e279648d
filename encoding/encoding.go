// Package encoding provides value codecs for kv buckets. Every constructor
// returns a Codec usable with kv.OpenBucketWith.
package encoding

import (
	"bytes"
	"encoding"
	"encoding/gob"
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/hamba/avro"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec has the method set of kv.Codec.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

type funcCodec[T any] struct {
	marshal   func(v any) ([]byte, error)
	unmarshal func(b []byte, v any) error
}

func (c funcCodec[T]) Encode(v T) ([]byte, error) {
	return c.marshal(v)
}

func (c funcCodec[T]) Decode(b []byte) (T, error) {
	var v T
	err := c.unmarshal(b, &v)
	return v, err
}

func JSON[T any]() Codec[T] {
	return funcCodec[T]{marshal: json.Marshal, unmarshal: json.Unmarshal}
}

func Msgpack[T any]() Codec[T] {
	return funcCodec[T]{marshal: msgpack.Marshal, unmarshal: msgpack.Unmarshal}
}

var (
	cborEnc, _ = cbor.EncOptions{Sort: cbor.SortCanonical}.EncMode()
	cborDec, _ = cbor.DecOptions{}.DecMode()
)

// CBOR encodes values in canonical CBOR, so equal values always produce
// equal bytes.
func CBOR[T any]() Codec[T] {
	return funcCodec[T]{marshal: cborEnc.Marshal, unmarshal: cborDec.Unmarshal}
}

// Avro encodes values with the given Avro schema.
func Avro[T any](schema string) (Codec[T], error) {
	s, err := avro.Parse(schema)
	if err != nil {
		return nil, err
	}

	return funcCodec[T]{
		marshal: func(v any) ([]byte, error) { return avro.Marshal(s, v) },
		unmarshal: func(b []byte, v any) error {
			return avro.Unmarshal(s, b, v)
		},
	}, nil
}

// Gob encodes each value as a self describing gob stream.
func Gob[T any]() Codec[T] {
	return funcCodec[T]{
		marshal: func(v any) ([]byte, error) {
			var buf bytes.Buffer
			err := gob.NewEncoder(&buf).Encode(v)
			return buf.Bytes(), err
		},
		unmarshal: func(b []byte, v any) error {
			return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
		},
	}
}

type binaryCodec[T any, PT interface {
	*T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}] struct{}

func (binaryCodec[T, PT]) Encode(v T) ([]byte, error) {
	return PT(&v).MarshalBinary()
}

func (binaryCodec[T, PT]) Decode(b []byte) (T, error) {
	var v T
	err := PT(&v).UnmarshalBinary(b)
	return v, err
}

// Binary uses the encoding.BinaryMarshaler implementation of *T, as found
// on uuid.UUID or time.Time.
func Binary[T any, PT interface {
	*T
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}]() Codec[T] {
	return binaryCodec[T, PT]{}
}
