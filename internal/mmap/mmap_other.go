//go:build !unix

package mmap

import (
	"io"
	"os"
)

// Supported is false on platforms without a real memory-mapped file; File
// and Anonymous fall back to plain heap slices here.
const Supported = false

// Anonymous returns a zeroed heap slice; there is no OS mapping to back it.
func Anonymous(size int) ([]byte, error) {
	if size < 1 {
		panic("mmap: invalid anonymous allocation size")
	}
	return make([]byte, size), nil
}

// File reads length bytes of f at offset into a heap buffer. Since there is
// no live mapping and Sync is a no-op here, writes reach f only when the
// caller writes the buffer back to f itself.
func File(f *os.File, offset int64, length int, _ bool, _ Flags) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// Sync and SyncAsync are no-ops here; the arena package writes the buffer
// back to its file explicitly on this platform.
func Sync(b []byte) error      { return nil }
func SyncAsync(b []byte) error { return nil }

// Unmap is a no-op; the buffer is ordinary heap memory.
func Unmap(b []byte) error { return nil }
