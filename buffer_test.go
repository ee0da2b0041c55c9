package bufarena

import (
	"errors"
	"testing"
)

func TestBufferClassification(t *testing.T) {
	file := &File{Fd: 3, Name: "f"}
	tests := []struct {
		name         string
		buf          Buffer
		inMemory     bool
		inMemoryOnly bool
		special      bool
		syncOnly     bool
		size         int64
	}{
		{
			name:         "temporary memory",
			buf:          Buffer{Mem: make([]byte, 10), Pos: 2, Last: 7, Flags: Temporary},
			inMemory:     true,
			inMemoryOnly: true,
			size:         5,
		},
		{
			name:     "memory mirrored in file",
			buf:      Buffer{Mem: make([]byte, 10), Last: 10, File: file, FileLast: 10, Flags: Memory | InFile},
			inMemory: true,
			size:     10,
		},
		{
			name: "file only",
			buf:  Buffer{File: file, FilePos: 100, FileLast: 350, Flags: InFile},
			size: 250,
		},
		{
			name:    "flush marker",
			buf:     Buffer{Flags: Flush},
			special: true,
		},
		{
			name:    "last buf marker",
			buf:     Buffer{Flags: LastBuf},
			special: true,
		},
		{
			name:     "sync marker",
			buf:      Buffer{Flags: Sync},
			special:  true,
			syncOnly: true,
		},
		{
			name:    "sync and flush",
			buf:     Buffer{Flags: Sync | Flush},
			special: true,
		},
		{
			name:         "last buf with payload",
			buf:          Buffer{Mem: make([]byte, 4), Last: 4, Flags: MMap | LastBuf},
			inMemory:     true,
			inMemoryOnly: true,
			size:         4,
		},
		{
			name: "sync with file range",
			buf:  Buffer{File: file, FileLast: 1, Flags: Sync | InFile},
			size: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.buf
			if got := b.InMemory(); got != tt.inMemory {
				t.Errorf("InMemory = %v, want %v", got, tt.inMemory)
			}
			if got := b.InMemoryOnly(); got != tt.inMemoryOnly {
				t.Errorf("InMemoryOnly = %v, want %v", got, tt.inMemoryOnly)
			}
			if got := b.Special(); got != tt.special {
				t.Errorf("Special = %v, want %v", got, tt.special)
			}
			if got := b.SyncOnly(); got != tt.syncOnly {
				t.Errorf("SyncOnly = %v, want %v", got, tt.syncOnly)
			}
			if got := b.Size(); got != tt.size {
				t.Errorf("Size = %d, want %d", got, tt.size)
			}
		})
	}
}

func TestBufferFlags(t *testing.T) {
	var b Buffer
	b.Set(Temporary | Flush)
	if !b.Has(Temporary) || !b.Has(Temporary|Flush) {
		t.Errorf("Has after Set: flags = %b", b.Flags)
	}
	b.Clear(Flush)
	if b.Has(Flush) || !b.Has(Temporary) {
		t.Errorf("Clear(Flush): flags = %b", b.Flags)
	}
}

func TestBufferWrite(t *testing.T) {
	a := mustArena(t, 1024)
	defer a.Destroy()

	b, err := a.CreateTempBuf(8)
	if err != nil {
		t.Fatal(err)
	}
	if b.Pos != 0 || b.Last != 0 || len(b.Mem) != 8 || !b.Has(Temporary) {
		t.Fatalf("CreateTempBuf = %+v", b)
	}

	n, err := b.Write([]byte("hello"))
	if n != 5 || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	n, _ = b.Write([]byte("world"))
	if n != 3 {
		t.Errorf("short Write = %d, want 3", n)
	}
	if string(b.Bytes()) != "hellowor" || b.Room() != 0 {
		t.Errorf("Bytes = %q room %d", b.Bytes(), b.Room())
	}

	b.Rewind()
	if b.Size() != 0 || b.Room() != 8 {
		t.Errorf("after Rewind size %d room %d", b.Size(), b.Room())
	}

	ro := &Buffer{Mem: []byte("static"), Last: 6, Flags: Memory}
	if _, err := ro.Write([]byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write to read-only buffer error = %v, want ErrReadOnly", err)
	}
}

func TestNewTag(t *testing.T) {
	seen := make(map[Tag]bool)
	for i := 0; i < 100; i++ {
		tag := NewTag()
		if tag == 0 || seen[tag] {
			t.Fatalf("NewTag returned %d twice or zero", tag)
		}
		seen[tag] = true
	}
}

func TestNewBuffer(t *testing.T) {
	a := mustArena(t, 1024)
	defer a.Destroy()

	// Spans several header chunks
	seen := make(map[*Buffer]bool)
	for i := 0; i < 3*headerChunk; i++ {
		b, err := a.NewBuffer()
		if err != nil {
			t.Fatal(err)
		}
		if seen[b] {
			t.Fatalf("NewBuffer returned %p twice", b)
		}
		seen[b] = true
		b.Pos = i
	}

	// Headers are zeroed when handed out again after Reset
	a.Reset()
	b, _ := a.NewBuffer()
	if b.Mem != nil || b.Pos != 0 || b.File != nil || b.Flags != 0 {
		t.Errorf("NewBuffer after Reset = %+v, want zero", b)
	}
}
