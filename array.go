package bufarena

// Array is a growable array of pointer-free T stored in an arena. When its
// storage is the newest allocation of its block it grows in place; otherwise
// it moves to a fresh allocation of twice the size and the old storage is
// abandoned to the arena.
type Array[T any] struct {
	arena *Arena
	raw   []byte
	elts  []T
	n     int
}

// NewArray creates an array with room for n elements.
func NewArray[T any](a *Arena, n int) (*Array[T], error) {
	checkPointerFree[T]()
	if n < 0 {
		return nil, ErrInvalidSize
	}
	arr := &Array[T]{arena: a}
	if err := arr.realloc(n); err != nil {
		return nil, err
	}
	return arr, nil
}

// Push appends one zeroed element and returns a pointer to it.
func (arr *Array[T]) Push() (*T, error) {
	s, err := arr.PushN(1)
	if err != nil {
		return nil, err
	}
	return &s[0], nil
}

// PushN appends n zeroed elements and returns them.
func (arr *Array[T]) PushN(n int) ([]T, error) {
	if n <= 0 {
		return nil, nil
	}
	if arr.n+n > len(arr.elts) {
		if !arr.growInPlace(arr.n + n - len(arr.elts)) {
			if err := arr.realloc(2 * max(n, len(arr.elts))); err != nil {
				return nil, err
			}
		}
	}
	s := arr.elts[arr.n : arr.n+n]
	clear(s)
	arr.n += n
	return s, nil
}

// Items returns the pushed elements.
func (arr *Array[T]) Items() []T {
	return arr.elts[:arr.n]
}

// Len returns the number of pushed elements.
func (arr *Array[T]) Len() int {
	return arr.n
}

// Cap returns the number of elements the current storage holds.
func (arr *Array[T]) Cap() int {
	return len(arr.elts)
}

// Destroy hands the storage back to the arena when it is still the newest
// allocation of its block. The array must not be used afterwards.
func (arr *Array[T]) Destroy() bool {
	ok := arr.arena.Rollback(arr.raw)
	arr.raw, arr.elts, arr.n = nil, nil, 0
	return ok
}

func (arr *Array[T]) growInPlace(extra int) bool {
	if len(arr.raw) == 0 {
		return false
	}
	raw, ok := arr.arena.Extend(arr.raw, sliceBytes[T](extra))
	if !ok {
		return false
	}
	arr.raw = raw
	arr.elts = castSlice[T](raw, len(arr.elts)+extra)
	return true
}

func (arr *Array[T]) realloc(n int) error {
	raw, err := arr.arena.Alloc(sliceBytes[T](n))
	if err != nil {
		return err
	}
	elts := castSlice[T](raw, n)
	copy(elts, arr.elts[:arr.n])
	arr.raw, arr.elts = raw, elts
	return nil
}
