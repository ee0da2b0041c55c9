package bufarena

// SizeInUse returns the bytes currently handed out from blocks, including
// alignment padding. Large allocations are not counted.
func (a *Arena) SizeInUse() int {
	sum := 0
	for _, b := range a.blocks {
		sum += b.last
	}
	return sum
}

// NumBlocks returns the number of blocks chained in the arena.
func (a *Arena) NumBlocks() int {
	return len(a.blocks)
}

// Capacity returns the total size of all blocks.
func (a *Arena) Capacity() int {
	sum := 0
	for _, b := range a.blocks {
		sum += len(b.buf)
	}
	return sum
}

// Utilization returns the ratio of bytes in use to block capacity (0.0 to 1.0).
func (a *Arena) Utilization() float64 {
	capacity := a.Capacity()
	if capacity == 0 {
		return 0
	}
	return float64(a.SizeInUse()) / float64(capacity)
}

// ArenaSize returns the block size the arena was created with.
func (a *Arena) ArenaSize() int {
	return a.size
}

// SmallThreshold returns the largest request served from blocks.
func (a *Arena) SmallThreshold() int {
	return a.max
}

// LargeInUse returns the number and total size of live large allocations.
func (a *Arena) LargeInUse() (count int, bytes int) {
	for l := a.large; l != nil; l = l.next {
		if l.raw != nil {
			count++
			bytes += len(l.data)
		}
	}
	return count, bytes
}

// Reserved returns the bytes counted against the arena's limit.
func (a *Arena) Reserved() int64 {
	return a.used
}

// Metrics returns a snapshot of arena statistics.
func (a *Arena) Metrics() ArenaMetrics {
	largeCount, largeBytes := a.LargeInUse()
	return ArenaMetrics{
		SizeInUse:   a.SizeInUse(),
		Capacity:    a.Capacity(),
		NumBlocks:   a.NumBlocks(),
		ArenaSize:   a.size,
		Utilization: a.Utilization(),
		LargeAllocs: largeCount,
		LargeBytes:  largeBytes,
		Cleanups:    a.Cleanups(),
		Links:       max(len(a.links)-1, 0),
		FreeLinks:   len(a.freeLinks),
		Reserved:    a.used,
		SmallTotal:  a.stats.smallAllocs,
		LargeTotal:  a.stats.largeAllocs,
		Misses:      a.stats.misses,
		LinkReuses:  a.stats.linkReuses,
	}
}

// ArenaMetrics contains statistical information about an arena.
type ArenaMetrics struct {
	SizeInUse   int     // Bytes handed out from blocks
	Capacity    int     // Total block capacity in bytes
	NumBlocks   int     // Number of blocks
	ArenaSize   int     // Block size
	Utilization float64 // Ratio of used to total block capacity (0.0-1.0)
	LargeAllocs int     // Live large allocations
	LargeBytes  int     // Bytes held by live large allocations
	Cleanups    int     // Registered cleanup records
	Links       int     // Chain link slots in the slab
	FreeLinks   int     // Slots on the free list
	Reserved    int64   // Bytes counted against the limit

	// Counters below restart on every Reset or Recycle.
	SmallTotal uint64 // Small allocations served
	LargeTotal uint64 // Large allocations served
	Misses     uint64 // Block misses that led to growth
	LinkReuses uint64 // Links taken from the free list
}
