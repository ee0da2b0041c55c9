package output

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net"

	"github.com/pavanmanishd/bufarena"
	"golang.org/x/sys/unix"
)

// Sender writes a chain to a transport. It sends at most limit bytes, or
// everything when limit <= 0, advances buffer cursors by what was sent, and
// returns the first link with unsent bytes (NilLink once the chain is
// drained). A short send without error means the transport would block.
type Sender interface {
	SendChain(a *bufarena.Arena, in bufarena.Link, limit int64) (bufarena.Link, error)
}

// Writer is a FilterFunc that queues chains and pushes them through a Sender.
// Sent links are returned to the arena; their buffers are left alone.
type Writer struct {
	a      *bufarena.Arena
	sender Sender
	log    *slog.Logger

	out  bufarena.Link
	tail bufarena.Link

	// Limit caps the bytes offered to the sender per call. Zero is unlimited.
	Limit int64
}

// NewWriter creates a Writer over sender.
func NewWriter(a *bufarena.Arena, sender Sender) *Writer {
	return &Writer{a: a, sender: sender, log: a.Logger()}
}

// Pending reports whether queued links remain unsent.
func (w *Writer) Pending() bool {
	return w.out != bufarena.NilLink
}

// Filter queues in behind any unsent links and sends. It returns ErrAgain
// while data remains queued.
func (w *Writer) Filter(in bufarena.Link) error {
	a := w.a

	for ; in != bufarena.NilLink; in = a.Next(in) {
		b := a.Buf(in)
		bsize := b.Size()
		if bsize == 0 && !b.Special() {
			w.log.Error("zero size buf in writer",
				"temporary", b.Has(bufarena.Temporary),
				"in_file", b.Has(bufarena.InFile))
			continue
		}
		if bsize < 0 {
			w.log.Error("negative size buf in writer", "pos", b.Pos, "last", b.Last)
			return ErrNegativeSize
		}

		cl, err := a.AllocLink()
		if err != nil {
			return err
		}
		a.SetBuf(cl, b)
		a.SetNext(cl, bufarena.NilLink)
		if w.tail == bufarena.NilLink {
			w.out = cl
		} else {
			a.SetNext(w.tail, cl)
		}
		w.tail = cl
	}

	if a.ChainSize(w.out) == 0 {
		w.release(bufarena.NilLink)
		return nil
	}

	rest, err := w.sender.SendChain(a, w.out, w.Limit)
	w.release(rest)

	if err != nil {
		return err
	}
	if w.out != bufarena.NilLink {
		return ErrAgain
	}
	return nil
}

// release frees the queued links before rest and makes rest the queue head.
func (w *Writer) release(rest bufarena.Link) {
	a := w.a

	for cl := w.out; cl != bufarena.NilLink && cl != rest; {
		next := a.Next(cl)
		a.FreeLink(cl)
		cl = next
	}
	w.out = rest
	if rest == bufarena.NilLink {
		w.tail = bufarena.NilLink
	}
}

// ConnSender is a Sender over an io.Writer. Memory runs are written as one
// vector through net.Buffers, so a net.Conn gets writev; file runs are
// coalesced and copied through pread.
type ConnSender struct {
	W io.Writer
}

// SendChain implements Sender.
func (s *ConnSender) SendChain(a *bufarena.Arena, in bufarena.Link, limit int64) (bufarena.Link, error) {
	if limit <= 0 {
		limit = math.MaxInt64
	}
	var sent int64

	for {
		in = skipEmpty(a, in)
		if in == bufarena.NilLink || sent >= limit {
			return in, nil
		}

		b := a.Buf(in)
		var size, n int64
		var err error
		if b.InMemory() {
			var vec net.Buffers
			vec, size = gather(a, in, limit-sent)
			n, err = vec.WriteTo(s.W)
		} else {
			next := in
			size = a.CoalesceFile(&next, limit-sent)
			n, err = io.CopyN(s.W, io.NewSectionReader(fileReader(b.File.Fd), b.FilePos, size), size)
			if errors.Is(err, io.EOF) {
				err = &ShortReadError{Name: b.File.Name, Read: int(n), Want: size}
			}
		}

		sent += n
		in = a.UpdateSent(in, n)
		if err != nil {
			return in, err
		}
		if n < size {
			return in, nil
		}
	}
}

// gather collects the memory windows of consecutive in-memory buffers from
// in, up to limit bytes.
func gather(a *bufarena.Arena, in bufarena.Link, limit int64) (net.Buffers, int64) {
	var vec net.Buffers
	var size int64
	for cl := in; cl != bufarena.NilLink && size < limit; cl = a.Next(cl) {
		b := a.Buf(cl)
		if b.Special() {
			continue
		}
		if !b.InMemory() {
			break
		}
		p := b.Bytes()
		if int64(len(p)) > limit-size {
			p = p[:limit-size]
		}
		if len(p) > 0 {
			vec = append(vec, p)
			size += int64(len(p))
		}
	}
	return vec, size
}

// skipEmpty steps over special and drained buffers.
func skipEmpty(a *bufarena.Arena, in bufarena.Link) bufarena.Link {
	for in != bufarena.NilLink {
		b := a.Buf(in)
		if !b.Special() && b.Size() != 0 {
			break
		}
		in = a.Next(in)
	}
	return in
}

type fileReader int

func (fd fileReader) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(int(fd), p, off)
	if err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
