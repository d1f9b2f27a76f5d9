//go:build cgo

package engine

import (
	"runtime/cgo"
	"unsafe"
)

// decodeObserver is the value behind the cgo.Handle passed to whisper
// callbacks as user data.
type decodeObserver interface {
	aborted() bool
	newSegments(n int)
}

func observerFromHandle(userData unsafe.Pointer) (decodeObserver, bool) {
	if userData == nil {
		return nil, false
	}

	handlePtr := (*cgo.Handle)(userData)
	handle := *handlePtr
	if handle == 0 {
		return nil, false
	}
	var (
		value     any
		recovered bool
	)

	func() {
		defer func() {
			if r := recover(); r != nil {
				recovered = true
				value = nil
			}
		}()
		value = handle.Value()
	}()

	if recovered || value == nil {
		return nil, false
	}

	obs, ok := value.(decodeObserver)
	return obs, ok
}

func shouldAbort(userData unsafe.Pointer) bool {
	obs, ok := observerFromHandle(userData)
	if !ok {
		return false
	}
	return obs.aborted()
}

func notifySegments(userData unsafe.Pointer, n int) {
	if n <= 0 {
		return
	}
	if obs, ok := observerFromHandle(userData); ok {
		obs.newSegments(n)
	}
}
