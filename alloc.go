package bufarena

import (
	"runtime"
	"unsafe"
)

// Alloc returns a pointer to a zeroed T stored inside the arena.
// T must not contain Go pointers: the garbage collector does not scan arena
// blocks. The returned pointer is valid until the arena is reset or destroyed.
func Alloc[T any](a *Arena) (*T, error) {
	checkPointerFree[T]()
	var zero T
	b, err := a.AllocZeroed(int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return new(T), nil
	}
	return (*T)(unsafe.Pointer(&b[0])), nil
}

// AllocUninitialized returns a *T located in the arena without zeroing memory.
// The contents are whatever the block held before.
func AllocUninitialized[T any](a *Arena) (*T, error) {
	checkPointerFree[T]()
	var zero T
	b, err := a.Alloc(int(unsafe.Sizeof(zero)))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return new(T), nil
	}
	return (*T)(unsafe.Pointer(&b[0])), nil
}

// AllocSlice allocates a slice of n elements of type T inside the arena.
// The slice elements are not initialized. Returns nil if n <= 0.
func AllocSlice[T any](a *Arena, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	checkPointerFree[T]()
	b, err := a.Alloc(sliceBytes[T](n))
	if err != nil {
		return nil, err
	}
	return castSlice[T](b, n), nil
}

// AllocSliceZeroed allocates a slice of n zeroed elements of type T.
func AllocSliceZeroed[T any](a *Arena, n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	checkPointerFree[T]()
	b, err := a.AllocZeroed(sliceBytes[T](n))
	if err != nil {
		return nil, err
	}
	return castSlice[T](b, n), nil
}

// PtrAndKeepAlive returns t and keeps the arena reachable until this call.
func PtrAndKeepAlive[T any](a *Arena, t *T) *T {
	runtime.KeepAlive(a)
	return t
}

func sliceBytes[T any](n int) int {
	var zero T
	return int(unsafe.Sizeof(zero)) * n
}

func castSlice[T any](b []byte, n int) []T {
	if len(b) == 0 {
		return make([]T, n)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
