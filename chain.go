package bufarena

// ChainAddCopy appends to *chain a new link for every link of in, sharing
// (not copying) the buffers. If a link cannot be allocated the destination
// stays terminated after the last appended link and the error is returned.
func (a *Arena) ChainAddCopy(chain *Link, in Link) error {
	tail := a.ChainTail(*chain)
	for ; in != NilLink; in = a.Next(in) {
		cl, err := a.AllocLink()
		if err != nil {
			return err
		}
		a.SetBuf(cl, a.Buf(in))
		a.SetNext(cl, NilLink)
		if tail == NilLink {
			*chain = cl
		} else {
			a.SetNext(tail, cl)
		}
		tail = cl
	}
	return nil
}

// UpdateChains moves *out onto the tail of *busy, then drains *busy from the
// front while its buffers are empty. Drained links whose buffer carries tag
// are rewound and pushed onto *free; links of other owners go back to the
// arena. Draining stops at the first buffer with unread bytes.
func (a *Arena) UpdateChains(free, busy, out *Link, tag Tag) {
	if *out != NilLink {
		if *busy == NilLink {
			*busy = *out
		} else {
			a.SetNext(a.ChainTail(*busy), *out)
		}
		*out = NilLink
	}

	for *busy != NilLink {
		cl := *busy
		b := a.Buf(cl)
		if b.Size() != 0 {
			break
		}

		*busy = a.Next(cl)
		if b.Tag != tag {
			a.FreeLink(cl)
			continue
		}

		b.Rewind()
		a.SetNext(cl, *free)
		*free = cl
	}
}

// CoalesceFile sums the bytes of the run of file buffers starting at *in that
// share a descriptor and are contiguous on disk, up to limit. When a buffer
// crosses limit its share is rounded up to the next page boundary if that stays
// inside the buffer. *in is left at the first buffer not fully covered.
// The head buffer must be a file buffer.
func (a *Arena) CoalesceFile(in *Link, limit int64) int64 {
	cl := *in
	if cl == NilLink {
		return 0
	}

	var total, fprev int64
	fd := a.Buf(cl).File.Fd
	page := int64(pageSize)

	for {
		b := a.Buf(cl)
		size := b.FileLast - b.FilePos

		if size > limit-total {
			size = limit - total
			aligned := (b.FilePos + size + page - 1) &^ (page - 1)
			if aligned <= b.FileLast {
				size = aligned - b.FilePos
			}
			total += size
			break
		}

		total += size
		fprev = b.FilePos + size
		cl = a.Next(cl)

		if cl == NilLink || total >= limit {
			break
		}
		nb := a.Buf(cl)
		if nb.Flags&InFile == 0 || nb.File == nil || nb.File.Fd != fd || nb.FilePos != fprev {
			break
		}
	}

	*in = cl
	return total
}

// UpdateSent advances the cursors of the chain by sent bytes and returns the
// first link that still has unread bytes. Special buffers are skipped without
// consuming anything. Sending zero bytes leaves the chain untouched.
func (a *Arena) UpdateSent(in Link, sent int64) Link {
	if sent == 0 {
		return in
	}
	for ; in != NilLink; in = a.Next(in) {
		b := a.Buf(in)
		if b.Special() {
			continue
		}
		if sent == 0 {
			break
		}

		size := b.Size()
		if sent >= size {
			sent -= size
			if b.InMemory() {
				b.Pos = b.Last
			}
			if b.Flags&InFile != 0 {
				b.FilePos = b.FileLast
			}
			continue
		}

		if b.InMemory() {
			b.Pos += int(sent)
		}
		if b.Flags&InFile != 0 {
			b.FilePos += sent
		}
		break
	}
	return in
}
