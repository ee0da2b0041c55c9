package bufarena

import (
	"unsafe"

	"github.com/asciimoth/bufpool"
)

// largeScanLimit bounds how many list entries are probed for a tombstone
// before a new entry is pushed.
const largeScanLimit = 4

// large tracks one independently allocated region. A released entry keeps its
// place in the list with raw == nil and may be reused.
type large struct {
	raw  []byte // as returned by the pool
	data []byte // aligned window handed to the caller
	next *large
}

// AllocAligned returns size bytes whose address is a multiple of alignment.
// It always bypasses the blocks and is tracked as a large allocation.
func (a *Arena) AllocAligned(size int, alignment int) ([]byte, error) {
	a.panicIfDestroyed()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, ErrInvalidAlignment
	}
	return a.allocLarge(size, uintptr(alignment))
}

func (a *Arena) allocLarge(size int, align uintptr) ([]byte, error) {
	n := size + int(align) - 1
	if err := a.reserve(n); err != nil {
		return nil, err
	}
	raw := bufpool.GetBuffer(a.pool, n)
	off := alignedOffset(raw, 0, align)
	data := raw[off : off+size : off+size]
	a.stats.largeAllocs++

	probed := 0
	for l := a.large; l != nil; l = l.next {
		if l.raw == nil {
			l.raw, l.data = raw, data
			return data, nil
		}
		probed++
		if probed > largeScanLimit {
			break
		}
	}

	a.large = &large{raw: raw, data: data, next: a.large}
	a.log.Debug("large allocation", "size", size, "align", align)
	return data, nil
}

// FreeLarge releases p if it was returned by the large-allocation path and is
// still live. It reports whether such an allocation was found; small
// allocations are never individually freed.
func (a *Arena) FreeLarge(p []byte) bool {
	a.panicIfDestroyed()
	if len(p) == 0 {
		return false
	}
	ptr := unsafe.SliceData(p)
	for l := a.large; l != nil; l = l.next {
		if l.raw != nil && unsafe.SliceData(l.data) == ptr {
			a.freeEntry(l)
			return true
		}
	}
	return false
}

func (a *Arena) freeEntry(l *large) {
	bufpool.PutBuffer(a.pool, l.raw)
	a.unreserve(len(l.raw))
	l.raw, l.data = nil, nil
}

// releaseLarge frees every live large allocation and drops the list.
func (a *Arena) releaseLarge() {
	for l := a.large; l != nil; l = l.next {
		if l.raw != nil {
			a.freeEntry(l)
		}
	}
	a.large = nil
}
