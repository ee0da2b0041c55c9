//go:build debug

package bufarena

import (
	"fmt"
	"reflect"
)

// checkLinkLive panics when a recycled link is used.
func checkLinkLive(l Link, s *linkSlot) {
	if s.free {
		panic(fmt.Sprintf("bufarena invariant: use of free chain link %d", l))
	}
}

// checkPointerFree panics if T holds Go pointers, which must never live in
// arena blocks because the GC does not scan them.
func checkPointerFree[T any]() {
	t := reflect.TypeFor[T]()
	if hasPointers(t) {
		panic(fmt.Sprintf("bufarena invariant: %s contains pointers", t))
	}
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
