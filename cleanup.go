package bufarena

import (
	"log/slog"

	"golang.org/x/sys/unix"
)

// CleanupHandler is invoked with the record's Data when the arena is destroyed.
type CleanupHandler func(data any)

// Cleanup is a deferred action registered on an arena. Callers set Handler
// and, optionally, Data after AddCleanup returns.
type Cleanup struct {
	Handler CleanupHandler
	Data    any
	next    *Cleanup
	file    bool
}

// FileCleanup is the Data of a cleanup record that owns a file descriptor.
type FileCleanup struct {
	Fd   int
	Name string
	Log  *slog.Logger
}

// AddCleanup pushes a cleanup record onto the front of the arena's list.
// When size > 0, Data is preset to a zeroed []byte of that length for the
// caller's state.
// The record lives outside the blocks, so ResetCursorsOnly keeps it intact.
func (a *Arena) AddCleanup(size int) (*Cleanup, error) {
	a.panicIfDestroyed()
	if size < 0 {
		return nil, ErrInvalidSize
	}
	c := &Cleanup{}
	if size > 0 {
		c.Data = make([]byte, size)
	}
	c.next = a.cleanup
	a.cleanup = c
	return c, nil
}

// AddFileCleanup registers fd to be closed when the arena is destroyed.
func (a *Arena) AddFileCleanup(fd int, name string) (*Cleanup, error) {
	c, err := a.AddCleanup(0)
	if err != nil {
		return nil, err
	}
	c.Handler = CleanupFile
	c.file = true
	c.Data = &FileCleanup{Fd: fd, Name: name, Log: a.log}
	return c, nil
}

// RunFileCleanup runs the file cleanup registered for fd right away and
// disarms it so Destroy does not close the descriptor a second time.
func (a *Arena) RunFileCleanup(fd int) {
	a.panicIfDestroyed()
	for c := a.cleanup; c != nil; c = c.next {
		if c.Handler == nil {
			continue
		}
		cf, ok := c.Data.(*FileCleanup)
		if !c.file || !ok || cf.Fd != fd {
			continue
		}
		c.Handler(c.Data)
		c.Handler = nil
		return
	}
}

// Cleanups returns the number of registered cleanup records.
func (a *Arena) Cleanups() int {
	n := 0
	for c := a.cleanup; c != nil; c = c.next {
		n++
	}
	return n
}

func (a *Arena) runCleanups() {
	for c := a.cleanup; c != nil; c = c.next {
		if c.Handler != nil {
			a.log.Debug("run cleanup", "data", c.Data)
			c.Handler(c.Data)
		}
	}
}

// CleanupFile closes the descriptor held in a *FileCleanup. Failures are
// logged and otherwise ignored.
func CleanupFile(data any) {
	cf := data.(*FileCleanup)
	if err := unix.Close(cf.Fd); err != nil {
		logOf(cf).Warn("close file failed", "fd", cf.Fd, "name", cf.Name, "err", err)
	}
}

// DeleteFile unlinks the file named in a *FileCleanup and closes its
// descriptor. A missing file is not reported.
func DeleteFile(data any) {
	cf := data.(*FileCleanup)
	if err := unix.Unlink(cf.Name); err != nil && err != unix.ENOENT {
		logOf(cf).Error("delete file failed", "name", cf.Name, "err", err)
	}
	if err := unix.Close(cf.Fd); err != nil {
		logOf(cf).Warn("close file failed", "fd", cf.Fd, "name", cf.Name, "err", err)
	}
}

func logOf(cf *FileCleanup) *slog.Logger {
	if cf.Log == nil {
		return slog.Default()
	}
	return cf.Log
}
