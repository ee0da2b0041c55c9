package bufarena

import (
	"errors"
	"testing"
)

type point struct{ x, y int32 }

func TestArrayPush(t *testing.T) {
	a := mustArena(t, 4096)
	defer a.Destroy()

	arr, err := NewArray[point](a, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		p, err := arr.Push()
		if err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		if *p != (point{}) {
			t.Fatalf("Push %d returned non-zero element %+v", i, *p)
		}
		p.x, p.y = int32(i), int32(-i)
	}

	items := arr.Items()
	if arr.Len() != 100 || len(items) != 100 {
		t.Fatalf("Len = %d, items = %d; want 100", arr.Len(), len(items))
	}
	for i, p := range items {
		if p.x != int32(i) || p.y != int32(-i) {
			t.Fatalf("items[%d] = %+v", i, p)
		}
	}
	if arr.Cap() < 100 {
		t.Errorf("Cap = %d, want >= 100", arr.Cap())
	}
}

func TestArrayGrowsInPlace(t *testing.T) {
	a := mustArena(t, 4096)
	defer a.Destroy()

	arr, _ := NewArray[int64](a, 4)
	before := a.SizeInUse()
	first := &arr.elts[0]

	// Nothing else was allocated, so the storage stays put
	arr.PushN(4)
	arr.PushN(4)
	if &arr.Items()[0] != first {
		t.Error("array moved although it was the newest allocation")
	}
	if got := a.SizeInUse() - before; got != 4*8 {
		t.Errorf("in-place growth used %d bytes, want 32", got)
	}
}

func TestArrayMovesWhenNotTail(t *testing.T) {
	a := mustArena(t, 4096)
	defer a.Destroy()

	arr, _ := NewArray[int32](a, 2)
	s, _ := arr.PushN(2)
	s[0], s[1] = 7, 9

	// Another allocation now sits after the array
	a.Alloc(8)

	arr.Push()
	if arr.Cap() != 4 {
		t.Errorf("Cap after move = %d, want 4", arr.Cap())
	}
	items := arr.Items()
	if len(items) != 3 || items[0] != 7 || items[1] != 9 || items[2] != 0 {
		t.Errorf("items after move = %v", items)
	}
}

func TestArrayDestroy(t *testing.T) {
	a := mustArena(t, 4096)
	defer a.Destroy()

	before := a.SizeInUse()
	arr, _ := NewArray[int64](a, 8)
	if !arr.Destroy() {
		t.Error("Destroy of the newest allocation did not roll back")
	}
	if a.SizeInUse() != before {
		t.Errorf("SizeInUse after Destroy = %d, want %d", a.SizeInUse(), before)
	}

	arr, _ = NewArray[int64](a, 8)
	a.Alloc(8)
	if arr.Destroy() {
		t.Error("Destroy rolled back storage that is not the newest allocation")
	}
}

func TestNewArrayInvalid(t *testing.T) {
	a := mustArena(t, 4096)
	defer a.Destroy()

	if _, err := NewArray[int](a, -1); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("NewArray(-1) error = %v, want ErrInvalidSize", err)
	}

	// An empty array grows on first push
	arr, err := NewArray[int](a, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := arr.Push(); err != nil || arr.Len() != 1 {
		t.Errorf("Push on empty array = %v, len %d", err, arr.Len())
	}
}
