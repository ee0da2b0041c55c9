package bufarena

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("bufarena: out of memory")

	// ErrInvalidSize is returned for negative allocation sizes.
	ErrInvalidSize = errors.New("bufarena: invalid allocation size")

	// ErrInvalidAlignment is returned when an alignment is not a power of two.
	ErrInvalidAlignment = errors.New("bufarena: alignment must be a power of two")

	// ErrReadOnly is returned when writing into a buffer whose memory is not
	// flagged Temporary.
	ErrReadOnly = errors.New("bufarena: buffer is read-only")
)

// AllocError describes an allocation refused by the arena's byte limit.
type AllocError struct {
	Size  int
	Limit int64
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("bufarena: out of memory allocating %d bytes (limit %d)", e.Size, e.Limit)
}

func (e *AllocError) Unwrap() error {
	return ErrOutOfMemory
}
