package arena

import "unsafe"

// ptrDiff returns the distance in bytes from base to p. Both must point
// into the same backing array.
func ptrDiff(p, base *byte) uintptr {
	return uintptr(unsafe.Pointer(p)) - uintptr(unsafe.Pointer(base))
}
