// Package output drives buffer chains from a producer to a downstream filter.
//
// A Chain accepts input chains, forwards buffers that need no copying by
// reference, copies the rest into a bounded set of arena-backed output
// buffers, and hands the result to a FilterFunc. Buffers the filter has
// drained are reclaimed into the Chain's free list for the next call.
package output

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavanmanishd/bufarena"
	"golang.org/x/sys/unix"
)

const (
	// DefaultBufsNum and DefaultBufsSize form the default output budget.
	DefaultBufsNum  = 2
	DefaultBufsSize = 32 * 1024

	// DefaultAlignment is the direct I/O alignment used when none is set.
	DefaultAlignment = 512
)

var (
	// ErrAgain reports that output is pending and the caller should call
	// again once the downstream can accept more.
	ErrAgain = errors.New("output: again")

	// ErrDone reports that the downstream has finished and wants no more
	// output. It is passed through unchanged.
	ErrDone = errors.New("output: done")

	// ErrNegativeSize reports a buffer whose cursors are inverted.
	ErrNegativeSize = errors.New("output: negative size buf")
)

// ShortReadError reports a file read that returned fewer bytes than asked.
type ShortReadError struct {
	Name string
	Read int
	Want int64
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("output: read only %d of %d from %q", e.Read, e.Want, e.Name)
}

// FilterFunc consumes a chain. It returns nil or ErrAgain to keep the output
// going, ErrDone to stop, or any other error to fail.
type FilterFunc func(in bufarena.Link) error

// ReadFunc reads len(p) bytes of f at off into p.
type ReadFunc func(f *bufarena.File, p []byte, off int64) (int, error)

// Options configure a Chain.
type Options struct {
	// Bufs bounds how many output buffers the chain allocates and their size.
	Bufs bufarena.Bufs
	// Alignment is the direct I/O alignment; a power of two.
	Alignment int64
	// Sendfile lets file-backed buffers pass through without being read.
	Sendfile bool
	// NeedInMemory forces file-only buffers to be read into memory.
	NeedInMemory bool
	// NeedInTemp forces read-only memory to be copied into writable buffers.
	NeedInTemp bool
	// Tag marks buffers owned by this chain. Zero picks a fresh tag.
	Tag bufarena.Tag
	// ReadFile reads file ranges. The default uses pread(2).
	ReadFile ReadFunc
}

// Chain is an output chain driver bound to one arena. It is not safe for
// concurrent use.
type Chain struct {
	a      *bufarena.Arena
	filter FilterFunc
	log    *slog.Logger

	buf  *bufarena.Buffer
	in   bufarena.Link
	free bufarena.Link
	busy bufarena.Link

	opts      Options
	directio  bool
	allocated int
}

// New creates a Chain that allocates from a and delivers to filter.
func New(a *bufarena.Arena, filter FilterFunc, opts Options) (*Chain, error) {
	if opts.Bufs.Num == 0 && opts.Bufs.Size == 0 {
		opts.Bufs = bufarena.Bufs{Num: DefaultBufsNum, Size: DefaultBufsSize}
	}
	if opts.Bufs.Num <= 0 || opts.Bufs.Size <= 0 {
		return nil, bufarena.ErrInvalidSize
	}
	if opts.Alignment == 0 {
		opts.Alignment = DefaultAlignment
	}
	if opts.Alignment < 0 || opts.Alignment&(opts.Alignment-1) != 0 {
		return nil, bufarena.ErrInvalidAlignment
	}
	if opts.Tag == 0 {
		opts.Tag = bufarena.NewTag()
	}
	if opts.ReadFile == nil {
		opts.ReadFile = preadFile
	}
	return &Chain{
		a:      a,
		filter: filter,
		log:    a.Logger(),
		opts:   opts,
	}, nil
}

// Tag returns the tag stamped on buffers the chain allocates.
func (c *Chain) Tag() bufarena.Tag {
	return c.opts.Tag
}

// Pending reports whether input or unsent output remains.
func (c *Chain) Pending() bool {
	return c.in != bufarena.NilLink || c.busy != bufarena.NilLink
}

// Allocated returns how many budgeted output buffers the chain has created.
func (c *Chain) Allocated() int {
	return c.allocated
}

// Output queues in and pushes as much as possible to the filter. The links
// of in are not retained; their buffers are. On error nothing already given
// to the filter is taken back.
func (c *Chain) Output(in bufarena.Link) error {
	a := c.a

	if c.in == bufarena.NilLink && c.busy == bufarena.NilLink {
		if in == bufarena.NilLink {
			return c.filter(in)
		}
		if a.Next(in) == bufarena.NilLink && c.asIs(a.Buf(in)) {
			return c.filter(in)
		}
	}

	if in != bufarena.NilLink {
		if err := a.ChainAddCopy(&c.in, in); err != nil {
			return err
		}
	}

	var out, tail bufarena.Link
	var last error
	filtered := false

	appendOut := func(cl bufarena.Link) {
		a.SetNext(cl, bufarena.NilLink)
		if tail == bufarena.NilLink {
			out = cl
		} else {
			a.SetNext(tail, cl)
		}
		tail = cl
	}

	for {
		for c.in != bufarena.NilLink {
			b := a.Buf(c.in)
			bsize := b.Size()

			if bsize == 0 && !b.Special() {
				c.log.Error("zero size buf in output",
					"temporary", b.Has(bufarena.Temporary),
					"recycled", b.Has(bufarena.Recycled),
					"in_file", b.Has(bufarena.InFile),
					"file_pos", b.FilePos, "file_last", b.FileLast)
				c.advance()
				continue
			}

			if bsize < 0 {
				c.log.Error("negative size buf in output",
					"pos", b.Pos, "last", b.Last,
					"file_pos", b.FilePos, "file_last", b.FileLast)
				return ErrNegativeSize
			}

			if c.asIs(b) {
				cl := c.in
				c.in = a.Next(cl)
				appendOut(cl)
				continue
			}

			if c.buf == nil {
				aligned, err := c.alignFileBuf(bsize)
				if err != nil {
					return err
				}
				if !aligned {
					if c.free != bufarena.NilLink {
						cl := c.free
						c.buf = a.Buf(cl)
						c.free = a.Next(cl)
						a.FreeLink(cl)
					} else if out != bufarena.NilLink || c.allocated == c.opts.Bufs.Num {
						break
					} else if err := c.getBuf(bsize); err != nil {
						return err
					}
				}
			}

			if err := c.copyBuf(); err != nil {
				return err
			}

			if b.Size() == 0 {
				c.advance()
			}

			cl, err := a.AllocLink()
			if err != nil {
				return err
			}
			a.SetBuf(cl, c.buf)
			appendOut(cl)
			c.buf = nil
		}

		if out == bufarena.NilLink && filtered {
			if c.in != bufarena.NilLink {
				return ErrAgain
			}
			return last
		}

		last = c.filter(out)
		filtered = true
		if last != nil && !errors.Is(last, ErrAgain) {
			return last
		}

		a.UpdateChains(&c.free, &c.busy, &out, c.opts.Tag)
		tail = bufarena.NilLink
	}
}

// advance drops the head of the pending input. The link was allocated by
// Output, so it goes back to the arena; the buffer stays with its owner.
func (c *Chain) advance() {
	cl := c.in
	c.in = c.a.Next(cl)
	c.a.FreeLink(cl)
}

// asIs reports whether b can be forwarded without copying. Memory buffers
// lose their file range when sendfile is off.
func (c *Chain) asIs(b *bufarena.Buffer) bool {
	if b.Special() {
		return true
	}
	if b.Has(bufarena.InFile) && b.File != nil && b.File.Directio {
		return false
	}
	if !c.opts.Sendfile {
		if !b.InMemory() {
			return false
		}
		b.Clear(bufarena.InFile)
	}
	if c.opts.NeedInMemory && !b.InMemory() {
		return false
	}
	if c.opts.NeedInTemp && b.Flags&(bufarena.Memory|bufarena.MMap) != 0 {
		return false
	}
	return true
}

// alignFileBuf prepares a small untagged buffer that carries a direct I/O
// file up to the next aligned offset. It reports whether c.buf was set.
func (c *Chain) alignFileBuf(bsize int64) (bool, error) {
	in := c.a.Buf(c.in)
	if in.File == nil || !in.File.Directio {
		return false, nil
	}

	c.directio = true

	size := in.FilePos - in.FilePos&^(c.opts.Alignment-1)
	if size == 0 {
		if bsize >= int64(c.opts.Bufs.Size) {
			return false, nil
		}
		size = bsize
	} else {
		size = min(c.opts.Alignment-size, bsize)
	}

	b, err := c.a.CreateTempBuf(int(size))
	if err != nil {
		return false, err
	}
	// Left untagged so it never returns through the free list.
	c.buf = b
	return true, nil
}

// getBuf allocates a budgeted output buffer. A small final buffer gets an
// exact-size, non-recycled allocation.
func (c *Chain) getBuf(bsize int64) error {
	in := c.a.Buf(c.in)
	size := int64(c.opts.Bufs.Size)
	recycled := true

	if in.Has(bufarena.LastInChain) {
		if bsize < size {
			size = bsize
			recycled = false
		} else if !c.directio && c.opts.Bufs.Num == 1 && bsize < size+size/4 {
			size = bsize
			recycled = false
		}
	}

	b, err := c.a.NewBuffer()
	if err != nil {
		return err
	}
	if c.directio {
		b.Mem, err = c.a.AllocAligned(int(size), int(c.opts.Alignment))
	} else {
		b.Mem, err = c.a.Alloc(int(size))
	}
	if err != nil {
		return err
	}

	b.Flags = bufarena.Temporary
	if recycled {
		b.Set(bufarena.Recycled)
	}
	b.Tag = c.opts.Tag

	c.buf = b
	c.allocated++
	return nil
}

// copyBuf moves as much of the head input buffer as fits into c.buf.
func (c *Chain) copyBuf() error {
	src := c.a.Buf(c.in)
	dst := c.buf

	size := min(src.Size(), int64(dst.Room()))
	sendfile := c.opts.Sendfile && !c.directio

	if src.InMemory() {
		copy(dst.Mem[dst.Last:], src.Mem[src.Pos:src.Pos+int(size)])
		src.Pos += int(size)
		dst.Last += int(size)

		if src.Has(bufarena.InFile) {
			if sendfile {
				dst.Set(bufarena.InFile)
				dst.File = src.File
				dst.FilePos = src.FilePos
				dst.FileLast = src.FilePos + size
			} else {
				dst.Clear(bufarena.InFile)
			}
			src.FilePos += size
		} else {
			dst.Clear(bufarena.InFile)
		}

		if src.Pos == src.Last {
			inheritLast(dst, src)
		}
		return nil
	}

	n, err := c.opts.ReadFile(src.File, dst.Mem[dst.Last:dst.Last+int(size)], src.FilePos)
	if err != nil {
		return err
	}
	if int64(n) != size {
		c.log.Error("short file read in output", "name", src.File.Name, "read", n, "want", size)
		return &ShortReadError{Name: src.File.Name, Read: n, Want: size}
	}

	dst.Last += n
	if sendfile {
		dst.Set(bufarena.InFile)
		dst.File = src.File
		dst.FilePos = src.FilePos
		dst.FileLast = src.FilePos + int64(n)
	} else {
		dst.Clear(bufarena.InFile)
	}
	src.FilePos += int64(n)

	if src.FilePos == src.FileLast {
		inheritLast(dst, src)
	}
	return nil
}

// inheritLast copies the end-of-stream markers of a drained source.
func inheritLast(dst, src *bufarena.Buffer) {
	const marks = bufarena.Flush | bufarena.LastBuf | bufarena.LastInChain
	dst.Flags = dst.Flags&^marks | src.Flags&marks
}

func preadFile(f *bufarena.File, p []byte, off int64) (int, error) {
	n, err := unix.Pread(f.Fd, p, off)
	if err != nil {
		return 0, err
	}
	return n, nil
}
