//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// Supported is true when this platform provides a real memory-mapped file,
// as opposed to the read-once/write-back fallback.
const Supported = true

// Anonymous allocates a large contiguous chunk of memory using the OS mmap
// syscall, outside the Go runtime allocator and garbage collector. The
// returned buffer must be passed to Unmap when no longer needed. Its length
// is exactly size, though the OS maps whole pages behind it.
func Anonymous(size int) ([]byte, error) {
	if size < 1 {
		panic("mmap: invalid anonymous allocation size")
	}
	return unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE,
	)
}

// File maps length bytes of f starting at offset into memory.
func File(f *os.File, offset int64, length int, writable bool, flags Flags) ([]byte, error) {
	prot := unix.PROT_READ
	mapFlags := unix.MAP_PRIVATE
	if writable {
		prot |= unix.PROT_WRITE
	}
	if flags.Has(Shared) {
		mapFlags = unix.MAP_SHARED
	}
	return unix.Mmap(int(f.Fd()), offset, length, prot, mapFlags)
}

// Sync synchronously flushes dirty pages of b back to their backing file.
func Sync(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Msync(b, unix.MS_SYNC)
}

// SyncAsync schedules dirty pages of b to be flushed, without waiting for
// the write to complete.
func SyncAsync(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Msync(b, unix.MS_ASYNC)
}

// Unmap releases a mapping previously returned by Anonymous or File.
func Unmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}
