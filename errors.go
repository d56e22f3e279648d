package kv

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBucket   = errors.New("invalid bucket")
	ErrReadOnly        = errors.New("read-only")
	ErrNotFound        = errors.New("not found")
	ErrTxnState        = errors.New("transaction already finished")
	ErrEngine          = errors.New("engine error")
	ErrEncoding        = errors.New("encoding error")
	ErrManagerConflict = errors.New("environment already open with another configuration")
	ErrHandleClosed    = errors.New("handle closed")

	// ErrWriterBusy is returned when the writer slot of an environment could
	// not be acquired in time. It is an ErrEngine.
	ErrWriterBusy = fmt.Errorf("%w: writer busy", ErrEngine)
)

func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrEngine, op, err)
}

func encodingError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEncoding, what, err)
}
