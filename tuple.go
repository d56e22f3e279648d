package kv

import (
	"fmt"

	"github.com/google/orderedcode"
)

// Tuple encodes items into a composite key whose byte order follows the
// order of its items, compared left to right. Items may be string, int64,
// uint64, float64 or any other type accepted by orderedcode.
func Tuple(items ...any) ([]byte, error) {
	b, err := orderedcode.Append(nil, items...)
	if err != nil {
		return nil, encodingError("tuple", err)
	}
	return b, nil
}

// ParseTuple decodes a key built by Tuple into ptrs, which must match the
// encoded items in number and type.
func ParseTuple(b []byte, ptrs ...any) error {
	rest, err := orderedcode.Parse(string(b), ptrs...)
	if err != nil {
		return encodingError("tuple", err)
	}
	if rest != "" {
		return fmt.Errorf("%w: tuple: %d trailing bytes", ErrEncoding, len(rest))
	}
	return nil
}
