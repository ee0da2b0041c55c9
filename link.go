package bufarena

import "unsafe"

// Link is a chain link: an index into its arena's link slab. NilLink ends a
// chain, so a zero-valued Link field is an empty chain. A Link is only
// meaningful together with the arena that allocated it.
type Link uint32

// NilLink terminates a chain.
const NilLink Link = 0

const (
	headerChunk      = 32
	bufferHeaderSize = unsafe.Sizeof(Buffer{})
	linkSlotSize     = unsafe.Sizeof(linkSlot{})
)

type linkSlot struct {
	buf  *Buffer
	next Link
	free bool
}

// Bufs is a buffer-count budget: Num buffers of Size bytes each.
type Bufs struct {
	Num  int
	Size int
}

// AllocLink returns a link from the arena's free list, or a new one. The
// buffer of a recycled link is whatever it last held; callers must SetBuf.
func (a *Arena) AllocLink() (Link, error) {
	a.panicIfDestroyed()
	if n := len(a.freeLinks); n > 0 {
		l := a.freeLinks[n-1]
		a.freeLinks = a.freeLinks[:n-1]
		a.links[l].free = false
		a.stats.linkReuses++
		return l, nil
	}
	if err := a.reserve(int(linkSlotSize)); err != nil {
		return NilLink, err
	}
	a.links = append(a.links, linkSlot{})
	return Link(len(a.links) - 1), nil
}

// FreeLink returns l to the arena's free list. The buffer it points to is
// not touched.
func (a *Arena) FreeLink(l Link) {
	s := a.slot(l)
	s.free = true
	s.next = NilLink
	a.freeLinks = append(a.freeLinks, l)
}

// Buf returns the buffer held by l.
func (a *Arena) Buf(l Link) *Buffer {
	return a.slot(l).buf
}

// SetBuf stores b in l.
func (a *Arena) SetBuf(l Link, b *Buffer) {
	a.slot(l).buf = b
}

// Next returns the link following l.
func (a *Arena) Next(l Link) Link {
	return a.slot(l).next
}

// SetNext links next after l.
func (a *Arena) SetNext(l, next Link) {
	a.slot(l).next = next
}

// FreeLinks returns the number of links waiting on the arena's free list.
func (a *Arena) FreeLinks() int {
	return len(a.freeLinks)
}

func (a *Arena) slot(l Link) *linkSlot {
	if l == NilLink {
		panic("bufarena: nil chain link")
	}
	s := &a.links[l]
	checkLinkLive(l, s)
	return s
}

func (a *Arena) resetSlabs() {
	a.unreserve((len(a.links) - 1) * int(linkSlotSize))
	clear(a.links)
	a.links = a.links[:1]
	a.freeLinks = a.freeLinks[:0]
	a.headerIdx = 0
}

// CreateChainOfBufs carves one allocation of bufs.Num*bufs.Size bytes into
// bufs.Num temporary buffers, each on its own link, in allocation order.
func (a *Arena) CreateChainOfBufs(bufs Bufs) (Link, error) {
	if bufs.Num < 0 || bufs.Size < 0 {
		return NilLink, ErrInvalidSize
	}
	mem, err := a.Alloc(bufs.Num * bufs.Size)
	if err != nil {
		return NilLink, err
	}

	var head, tail Link
	for i := 0; i < bufs.Num; i++ {
		b, err := a.NewBuffer()
		if err != nil {
			return NilLink, err
		}
		off := i * bufs.Size
		b.Mem = mem[off : off+bufs.Size : off+bufs.Size]
		b.Flags = Temporary

		cl, err := a.AllocLink()
		if err != nil {
			return NilLink, err
		}
		a.SetBuf(cl, b)
		a.SetNext(cl, NilLink)
		if tail == NilLink {
			head = cl
		} else {
			a.SetNext(tail, cl)
		}
		tail = cl
	}
	return head, nil
}

// ChainGetFreeBuf pops a link off *free, or allocates a link with a zeroed
// buffer when the list is empty. The returned link is detached.
func (a *Arena) ChainGetFreeBuf(free *Link) (Link, error) {
	if *free != NilLink {
		cl := *free
		*free = a.Next(cl)
		a.SetNext(cl, NilLink)
		return cl, nil
	}
	cl, err := a.AllocLink()
	if err != nil {
		return NilLink, err
	}
	b, err := a.NewBuffer()
	if err != nil {
		return NilLink, err
	}
	a.SetBuf(cl, b)
	a.SetNext(cl, NilLink)
	return cl, nil
}

// ChainLen counts the links from head.
func (a *Arena) ChainLen(head Link) int {
	n := 0
	for cl := head; cl != NilLink; cl = a.Next(cl) {
		n++
	}
	return n
}

// ChainSize sums the unread bytes of every non-special buffer from head.
func (a *Arena) ChainSize(head Link) int64 {
	var size int64
	for cl := head; cl != NilLink; cl = a.Next(cl) {
		if b := a.Buf(cl); !b.Special() {
			size += b.Size()
		}
	}
	return size
}

// ChainTail returns the last link of the chain, or NilLink for an empty one.
func (a *Arena) ChainTail(head Link) Link {
	if head == NilLink {
		return NilLink
	}
	cl := head
	for next := a.Next(cl); next != NilLink; next = a.Next(cl) {
		cl = next
	}
	return cl
}

// ChainBufs returns the buffers of the chain in order.
func (a *Arena) ChainBufs(head Link) []*Buffer {
	var bufs []*Buffer
	for cl := head; cl != NilLink; cl = a.Next(cl) {
		bufs = append(bufs, a.Buf(cl))
	}
	return bufs
}
