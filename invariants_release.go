//go:build !debug

package bufarena

func checkLinkLive(Link, *linkSlot) {}

func checkPointerFree[T any]() {}
