package bufarena

import (
	"log/slog"
	"unsafe"

	"github.com/asciimoth/bufpool"
	"golang.org/x/sys/unix"
)

const (
	// DefaultArenaSize is the block size used when NewArena is given size <= 0.
	DefaultArenaSize = 16 * 1024

	// DefaultSkipAfter is the number of misses after which a block stops
	// being scanned for small allocations.
	DefaultSkipAfter = 4

	ptrAlign = unsafe.Sizeof(uintptr(0))
)

var pageSize = unix.Getpagesize()

// block is a single bump-pointer region within an arena.
type block struct {
	buf    []byte // backing memory, taken from the arena's bufpool
	last   int    // next free offset within buf
	failed int    // times this block missed a small allocation
}

// ResetPolicy selects what Reset releases besides block cursors.
type ResetPolicy int

const (
	// ResetRelease frees large allocations and drops cleanup records
	// without running them.
	ResetRelease ResetPolicy = iota
	// ResetCursorsOnly only rewinds blocks; large allocations and cleanup
	// records survive until Destroy.
	ResetCursorsOnly
)

// Arena serves small allocations from chained bump-pointer blocks and tracks
// large allocations individually. It is not goroutine-safe: an arena and every
// chain built from it belong to one flow of control at a time.
type Arena struct {
	blocks    []*block
	current   int
	size      int
	max       int
	skipAfter int
	policy    ResetPolicy

	large   *large
	cleanup *Cleanup

	links     []linkSlot
	freeLinks []Link

	headers   [][]Buffer
	headerIdx int

	pool  bufpool.Pool
	log   *slog.Logger
	limit int64 // 0 means unlimited
	used  int64 // bytes reserved from the pool and slabs

	gen       uint64
	destroyed bool

	stats counters
}

type counters struct {
	smallAllocs uint64
	largeAllocs uint64
	misses      uint64
	linkReuses  uint64
}

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the diagnostics logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(a *Arena) {
		if log != nil {
			a.log = log
		}
	}
}

// WithPool sets the memory source for blocks and large allocations.
// A nil pool allocates with make and lets the GC reclaim released memory.
func WithPool(pool bufpool.Pool) Option {
	return func(a *Arena) { a.pool = pool }
}

// WithLimit caps the bytes the arena may reserve. Requests past the cap fail
// with ErrOutOfMemory. Zero disables the cap.
func WithLimit(n int64) Option {
	return func(a *Arena) { a.limit = n }
}

// WithSkipAfter sets how many misses a block tolerates before small
// allocations stop scanning it. It only changes which block serves a request.
func WithSkipAfter(n int) Option {
	return func(a *Arena) {
		if n >= 0 {
			a.skipAfter = n
		}
	}
}

// WithResetPolicy selects the Reset behaviour.
func WithResetPolicy(p ResetPolicy) Option {
	return func(a *Arena) { a.policy = p }
}

// NewArena creates an arena whose blocks are size bytes.
// If size <= 0, DefaultArenaSize is used.
func NewArena(size int, opts ...Option) (*Arena, error) {
	if size <= 0 {
		size = DefaultArenaSize
	}
	a := &Arena{
		size:      size,
		max:       min(size, pageSize-1),
		skipAfter: DefaultSkipAfter,
		log:       slog.New(slog.DiscardHandler),
		links:     make([]linkSlot, 1),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.reserve(size); err != nil {
		return nil, err
	}
	a.blocks = append(a.blocks, &block{buf: bufpool.GetBuffer(a.pool, size)})
	return a, nil
}

// Alloc returns size pointer-aligned bytes. Requests above the small threshold
// are served by the large-allocation path. The returned slice has cap == len.
func (a *Arena) Alloc(size int) ([]byte, error) {
	a.panicIfDestroyed()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return []byte{}, nil
	}
	if size <= a.max {
		return a.allocSmall(size, true)
	}
	return a.allocLarge(size, ptrAlign)
}

// AllocUnaligned is Alloc without pointer alignment, for byte-exact text.
func (a *Arena) AllocUnaligned(size int) ([]byte, error) {
	a.panicIfDestroyed()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return []byte{}, nil
	}
	if size <= a.max {
		return a.allocSmall(size, false)
	}
	return a.allocLarge(size, 1)
}

// AllocZeroed is Alloc followed by zero-fill.
func (a *Arena) AllocZeroed(size int) ([]byte, error) {
	b, err := a.Alloc(size)
	if err != nil {
		return nil, err
	}
	clear(b)
	return b, nil
}

func (a *Arena) allocSmall(size int, align bool) ([]byte, error) {
	for i := a.current; i < len(a.blocks); i++ {
		b := a.blocks[i]
		off := b.last
		if align {
			off = alignedOffset(b.buf, off, ptrAlign)
		}
		if len(b.buf)-off >= size {
			b.last = off + size
			a.stats.smallAllocs++
			return b.buf[off : off+size : off+size], nil
		}
	}
	return a.allocBlock(size, align)
}

// allocBlock chains a new block and carves size bytes off its front.
func (a *Arena) allocBlock(size int, align bool) ([]byte, error) {
	n := a.size
	if size+int(ptrAlign) > n {
		n = size + int(ptrAlign)
	}
	if err := a.reserve(n); err != nil {
		return nil, err
	}

	for i := a.current; i < len(a.blocks); i++ {
		b := a.blocks[i]
		if b.failed > a.skipAfter {
			a.current = i + 1
		}
		b.failed++
		a.stats.misses++
	}

	nb := &block{buf: bufpool.GetBuffer(a.pool, n)}
	a.blocks = append(a.blocks, nb)
	a.log.Debug("arena grew", "block", len(a.blocks)-1, "size", n, "current", a.current)

	off := 0
	if align {
		off = alignedOffset(nb.buf, 0, ptrAlign)
	}
	nb.last = off + size
	a.stats.smallAllocs++
	return nb.buf[off : off+size : off+size], nil
}

// Rollback undoes p if it is the most recent small allocation of its block,
// returning whether the space was reclaimed.
func (a *Arena) Rollback(p []byte) bool {
	a.panicIfDestroyed()
	b, start := a.tailOf(p)
	if b == nil {
		return false
	}
	b.last = start
	return true
}

// Extend grows p by n bytes in place when p is the most recent small
// allocation of its block and the block has room.
func (a *Arena) Extend(p []byte, n int) ([]byte, bool) {
	a.panicIfDestroyed()
	if n < 0 {
		return p, false
	}
	b, start := a.tailOf(p)
	if b == nil || b.last+n > len(b.buf) {
		return p, false
	}
	b.last += n
	end := start + len(p) + n
	return b.buf[start:end:end], true
}

// tailOf finds the block whose free cursor sits exactly at the end of p and
// returns it along with p's offset inside that block.
func (a *Arena) tailOf(p []byte) (*block, int) {
	if len(p) == 0 {
		return nil, 0
	}
	start := addrOf(p)
	for _, b := range a.blocks {
		base := addrOf(b.buf)
		if start < base || start >= base+uintptr(len(b.buf)) {
			continue
		}
		off := int(start - base)
		if off+len(p) == b.last {
			return b, off
		}
		return nil, 0
	}
	return nil, 0
}

// Reset rewinds every block for reuse without returning memory to the pool.
// What happens to large allocations and cleanup records depends on the
// ResetPolicy. Links, buffer headers and previously returned memory must not
// be used after Reset.
func (a *Arena) Reset() {
	a.panicIfDestroyed()
	if a.policy == ResetRelease {
		a.releaseLarge()
		a.cleanup = nil
	}
	for _, b := range a.blocks {
		b.last = 0
		b.failed = 0
	}
	a.current = 0
	a.resetSlabs()
	a.stats = counters{}
	a.gen++
}

// Recycle runs every cleanup record and then performs a releasing reset,
// regardless of the configured policy.
func (a *Arena) Recycle() {
	a.panicIfDestroyed()
	a.runCleanups()
	a.cleanup = nil
	a.releaseLarge()
	for _, b := range a.blocks {
		b.last = 0
		b.failed = 0
	}
	a.current = 0
	a.resetSlabs()
	a.stats = counters{}
	a.gen++
}

// Destroy runs cleanup records newest first, releases large allocations and
// then every block. Further use of the arena panics; repeated calls are no-ops.
func (a *Arena) Destroy() {
	if a.destroyed {
		return
	}
	a.runCleanups()
	a.cleanup = nil
	a.releaseLarge()
	for _, b := range a.blocks {
		bufpool.PutBuffer(a.pool, b.buf)
	}
	a.blocks = nil
	a.links = nil
	a.freeLinks = nil
	a.headers = nil
	a.used = 0
	a.destroyed = true
}

// Generation counts how many times the arena has been reset.
func (a *Arena) Generation() uint64 {
	return a.gen
}

// Logger returns the arena's diagnostics logger.
func (a *Arena) Logger() *slog.Logger {
	return a.log
}

// reserve accounts n bytes against the limit.
func (a *Arena) reserve(n int) error {
	if a.limit > 0 && a.used+int64(n) > a.limit {
		return &AllocError{Size: n, Limit: a.limit}
	}
	a.used += int64(n)
	return nil
}

func (a *Arena) unreserve(n int) {
	a.used -= int64(n)
}

func (a *Arena) panicIfDestroyed() {
	if a.destroyed {
		panic("bufarena: use after Destroy()")
	}
}

func addrOf(p []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}

// alignedOffset rounds off up so that &buf[off] is a multiple of align.
func alignedOffset(buf []byte, off int, align uintptr) int {
	base := addrOf(buf)
	return int(alignPtr(base+uintptr(off), align) - base)
}

// alignPtr aligns p up to align, which must be a power of two.
func alignPtr(p, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}
