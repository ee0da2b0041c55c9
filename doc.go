// Package bufarena implements a request-scoped memory arena together with the
// buffer and chain-link structures a network server threads its I/O through.
//
// # Overview
//
// An Arena serves small allocations from chained bump-pointer blocks and
// hands larger ones to a separate list that can be freed individually.
// Everything the arena hands out dies together when the arena is reset or
// destroyed. Typical usage is one arena per request or connection:
//
//	a, err := bufarena.NewArena(0) // default block size
//	if err != nil {
//		return err
//	}
//	defer a.Destroy()
//
//	p, _ := a.Alloc(128)                    // small, from a block
//	big, _ := a.Alloc(64 * 1024)            // large, tracked separately
//	a.FreeLarge(big)                        // only large allocations free early
//	hdr, _ := bufarena.Alloc[Header](a)     // typed, zeroed
//	ids, _ := bufarena.AllocSlice[uint64](a, 16)
//
// # Buffers and Chains
//
// A Buffer describes unread bytes in memory (Mem[Pos:Last]), in a file
// (FilePos..FileLast of File), or both. Chains are singly linked lists of
// buffers whose links live in a per-arena slab and are addressed by Link
// indices; NilLink ends a chain. Links are recycled through the arena's
// free list:
//
//	cl, _ := a.AllocLink()
//	b, _ := a.CreateTempBuf(4096)
//	a.SetBuf(cl, b)
//	...
//	a.FreeLink(cl)
//
// UpdateChains, CoalesceFile and UpdateSent are the three primitives an
// output pipeline needs to move buffers between free, busy and outgoing
// lists, to batch contiguous file ranges, and to account for partial sends.
// The output subpackage builds a complete output driver on top of them.
//
// # Memory Source and Limits
//
// Block and large-allocation memory comes from a bufpool.Pool when one is
// supplied with WithPool, so arenas of a long-running server reuse buffers
// instead of churning the GC. WithLimit caps the bytes an arena may reserve;
// requests past the cap fail with an error matching ErrOutOfMemory.
//
// # Lifecycle
//
//   - Reset rewinds all blocks. With ResetRelease (the default) large
//     allocations are freed and cleanups dropped; with ResetCursorsOnly
//     they survive until Destroy.
//   - Recycle runs cleanups and then resets, ready for the next request.
//   - Destroy runs cleanups newest first, then returns all memory.
//
// # Thread Safety
//
// An Arena is not safe for concurrent use. A Recycler hands arenas out to
// concurrent workers and takes them back:
//
//	r := bufarena.NewRecycler(0, 64)
//	defer r.Close()
//	a, _ := r.Get()
//	defer r.Put(a)
//
// # Debug Checks
//
// Building with -tags debug enables checks that panic when a freed link is
// used or when a type holding Go pointers is placed in arena memory.
package bufarena
