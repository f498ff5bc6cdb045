// Package mmap provides the OS-specific memory-mapping backend used by the
// arena package. Implementations are selected by build tag: unix platforms
// get a real mmap backed by golang.org/x/sys/unix, everything else falls
// back to a plain heap-allocated slice that is read in full from (and
// written in full back to) the underlying file on Flush.
package mmap

// Flags configures how a file mapping is established.
type Flags uint8

const (
	// Shared maps changes back to the underlying file, visible to other
	// mappings of the same file. Without it, the mapping is copy-on-write.
	Shared Flags = 1 << iota
	// Populate marks a request to prefault the whole mapping at creation
	// time. File does not act on it on any platform: pages are faulted in
	// lazily on first touch.
	Populate
	// Huge marks a request for huge pages. File does not act on it on any
	// platform: the mapping uses the default page size.
	Huge
)

// Has reports whether f is set in flags.
func (flags Flags) Has(f Flags) bool { return flags&f != 0 }
