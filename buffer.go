package bufarena

import "sync/atomic"

// Flags classify a Buffer. They are not mutually exclusive.
type Flags uint16

const (
	// Temporary memory may be changed in place.
	Temporary Flags = 1 << iota
	// Memory is cached or read-only and must not be changed.
	Memory
	// MMap memory is mapped from a file and must not be changed.
	MMap
	// Recycled buffers should be drained and handed back quickly.
	Recycled
	// InFile marks a valid FilePos..FileLast range.
	InFile
	// Flush asks downstream to send what it has before more data arrives.
	Flush
	// Sync requests a synchronous write.
	Sync
	// LastBuf marks the final buffer of a logical message.
	LastBuf
	// LastInChain marks the final link of this chain segment.
	LastInChain
	// LastShadow marks the last buffer of a shadow group.
	LastShadow
	// TempFile marks a range backed by a temporary file.
	TempFile
)

// File identifies an open file referenced by file-backed buffers.
type File struct {
	Fd       int
	Name     string
	Directio bool
}

// Buffer describes one span of bytes in memory, in a file, or both.
//
// Mem is the physical allocation; Pos and Last are offsets into Mem bounding
// the unread bytes. FilePos and FileLast bound the unread range of File.
type Buffer struct {
	Mem       []byte
	Pos, Last int

	File              *File
	FilePos, FileLast int64

	// Shadow is the buffer this one overlays. It is never freed through.
	Shadow *Buffer
	Tag    Tag
	Flags  Flags
	Num    int
}

// Has reports whether every flag in f is set.
func (b *Buffer) Has(f Flags) bool {
	return b.Flags&f == f
}

// Set sets the flags in f.
func (b *Buffer) Set(f Flags) {
	b.Flags |= f
}

// Clear clears the flags in f.
func (b *Buffer) Clear(f Flags) {
	b.Flags &^= f
}

// InMemory reports whether the payload is in memory.
func (b *Buffer) InMemory() bool {
	return b.Flags&(Temporary|Memory|MMap) != 0
}

// InMemoryOnly reports whether the payload is in memory and not in a file.
func (b *Buffer) InMemoryOnly() bool {
	return b.InMemory() && b.Flags&InFile == 0
}

// Special reports whether b is a control marker without payload.
func (b *Buffer) Special() bool {
	return b.Flags&(Flush|LastBuf|Sync) != 0 && !b.InMemory() && b.Flags&InFile == 0
}

// SyncOnly reports whether b only carries the Sync marker.
func (b *Buffer) SyncOnly() bool {
	return b.Flags&Sync != 0 && !b.InMemory() && b.Flags&(InFile|Flush|LastBuf) == 0
}

// Size is the number of unread bytes: Last-Pos for memory buffers and
// FileLast-FilePos otherwise.
func (b *Buffer) Size() int64 {
	if b.InMemory() {
		return int64(b.Last - b.Pos)
	}
	return b.FileLast - b.FilePos
}

// Bytes returns the unread memory window.
func (b *Buffer) Bytes() []byte {
	return b.Mem[b.Pos:b.Last]
}

// Room returns how many bytes can still be written after Last.
func (b *Buffer) Room() int {
	return len(b.Mem) - b.Last
}

// Write appends p after Last. Only Temporary buffers are writable; a short
// write returns the count copied and no error, like a bounded io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.Flags&Temporary == 0 {
		return 0, ErrReadOnly
	}
	n := copy(b.Mem[b.Last:], p)
	b.Last += n
	return n, nil
}

// Rewind moves both cursors back to the start of Mem.
func (b *Buffer) Rewind() {
	b.Pos = 0
	b.Last = 0
}

// Tag identifies the subsystem that owns a buffer. The zero Tag belongs to
// nobody.
type Tag uint32

var lastTag atomic.Uint32

// NewTag returns a process-unique Tag.
func NewTag() Tag {
	return Tag(lastTag.Add(1))
}

// NewBuffer returns a zeroed buffer header from the arena's header slab.
func (a *Arena) NewBuffer() (*Buffer, error) {
	a.panicIfDestroyed()
	chunk := a.headerIdx / headerChunk
	if chunk == len(a.headers) {
		if err := a.reserve(headerChunk * int(bufferHeaderSize)); err != nil {
			return nil, err
		}
		a.headers = append(a.headers, make([]Buffer, headerChunk))
	}
	b := &a.headers[chunk][a.headerIdx%headerChunk]
	*b = Buffer{}
	a.headerIdx++
	return b, nil
}

// CreateTempBuf returns a writable buffer over size freshly allocated bytes.
func (a *Arena) CreateTempBuf(size int) (*Buffer, error) {
	b, err := a.NewBuffer()
	if err != nil {
		return nil, err
	}
	mem, err := a.Alloc(size)
	if err != nil {
		return nil, err
	}
	b.Mem = mem
	b.Flags = Temporary
	return b, nil
}
