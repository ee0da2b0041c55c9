package bufarena

import (
	"errors"
	"sync"
)

// ErrRecyclerClosed is returned by Get after Close.
var ErrRecyclerClosed = errors.New("bufarena: recycler closed")

// Recycler is a mutex-protected free list of arenas for servers that run one
// arena per request. Arenas themselves stay single-owner: Get hands one out,
// Put takes it back. Recycler methods are safe for concurrent use.
type Recycler struct {
	mu      sync.Mutex
	idle    []*Arena
	size    int
	maxIdle int
	opts    []Option
	closed  bool

	// OnRelease, when set, observes each arena's metrics as it is returned.
	// It runs without the recycler lock and may be called concurrently.
	OnRelease func(ArenaMetrics)
}

// NewRecycler creates a recycler whose arenas have size-byte blocks and the
// given options. At most maxIdle arenas are kept for reuse; the rest are
// destroyed on Put.
func NewRecycler(size, maxIdle int, opts ...Option) *Recycler {
	return &Recycler{
		size:    size,
		maxIdle: max(maxIdle, 0),
		opts:    opts,
	}
}

// Get returns an idle arena or a new one.
func (r *Recycler) Get() (*Arena, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRecyclerClosed
	}
	if n := len(r.idle); n > 0 {
		a := r.idle[n-1]
		r.idle[n-1] = nil
		r.idle = r.idle[:n-1]
		return a, nil
	}
	return NewArena(r.size, r.opts...)
}

// Put runs the arena's cleanups and either keeps it for reuse or destroys it.
// The caller must not touch a or anything allocated from it afterwards.
// Cleanup handlers run without the recycler lock, so they may call back
// into the Recycler.
func (r *Recycler) Put(a *Arena) {
	if a == nil || a.destroyed {
		return
	}
	if r.OnRelease != nil {
		r.OnRelease(a.Metrics())
	}
	a.Recycle()

	r.mu.Lock()
	keep := !r.closed && len(r.idle) < r.maxIdle
	if keep {
		r.idle = append(r.idle, a)
	}
	r.mu.Unlock()

	if !keep {
		a.Destroy()
	}
}

// Idle returns the number of arenas waiting for reuse.
func (r *Recycler) Idle() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.idle)
}

// Close destroys every idle arena. Arenas handed out earlier are destroyed
// when they are Put back.
func (r *Recycler) Close() {
	r.mu.Lock()
	idle := r.idle
	r.idle = nil
	r.closed = true
	r.mu.Unlock()

	for _, a := range idle {
		a.Destroy()
	}
}
