package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreIO is matched by every failure to read, write, lock or decode the store.
	ErrStoreIO = errors.New("persistence: store i/o failure")
	// ErrLockTimeout is returned when the store lock could not be acquired in time.
	ErrLockTimeout = errors.New("persistence: lock acquisition timed out")
)

// IOError wraps a filesystem, lock or encoding failure with the operation that hit it.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *IOError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match ErrStoreIO for any IOError.
func (e *IOError) Is(target error) bool {
	return target == ErrStoreIO
}

// DecodeError reports a stored row that could not be decoded.
type DecodeError struct {
	Sheet  string
	Row    int
	Column string
	Err    error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("persistence: decode %s row %d column %s: %v", e.Sheet, e.Row, e.Column, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
