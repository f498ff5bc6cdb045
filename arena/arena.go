// Package arena implements a lock-free bump allocator over a fixed-capacity
// byte region. All storage handed out by an Arena is addressed by 32-bit
// offsets rather than pointers, so a region backed by a memory mapping can
// be copied, persisted, or remapped into a different address space without
// any relocation of the structures living inside it.
//
// An Arena can be backed by the Go heap (New), an anonymous memory mapping
// (NewAnon), or a file-backed mapping that persists across process restarts
// (Map, MapMut in file.go).
package arena

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/latticedb/skl/internal/mmap"
)

// headerSize is the width of the persisted high-water mark reserved at the
// start of a file-backed arena's region. Heap and anonymous arenas have no
// header: their body starts at buffer offset 0.
const headerSize = 8

// nilOffset is the reserved sentinel offset meaning "no value"; no
// allocation ever starts at 0.
const nilOffset = 0

// Option configures an Arena at construction time.
type Option func(*config)

type config struct {
	reserve uint32
}

// WithReserve reserves n extra bytes at the tail of the arena's backing
// buffer, beyond its declared capacity. Allocate never hands these bytes
// out, but callers that cast a variable-length record (e.g. a skiplist
// node's truncated tower) may read slightly past their own allocation; the
// reserve keeps that read inside the backing slice instead of panicking.
// Callers sizing a reserve should use the maximum overshoot any single
// allocation's overflow argument can request.
func WithReserve(n uint32) Option {
	return func(c *config) { c.reserve = n }
}

// Arena is a lock-free bump allocator over a fixed-capacity byte region.
// The only point of contention between concurrent allocators is an atomic
// compare-and-swap on the high-water mark; no allocation ever fails
// spuriously, only once capacity is genuinely exhausted.
type Arena struct {
	buffer     []byte
	bodyOffset uint32 // 0 for heap/anon, headerSize for file-backed
	capacity   uint32 // body capacity, excluding header and reserve
	reserve    uint32
	allocated  atomic.Uint64 // next free body offset; starts at 1

	file     *fileHandle
	readOnly bool

	refs   *atomic.Int32
	closed *sync.Once
}

// New allocates a new heap-backed Arena with the given body capacity.
func New(capacity uint32, opts ...Option) *Arena {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	a := &Arena{
		buffer:   make([]byte, uint64(capacity)+uint64(cfg.reserve)),
		capacity: capacity,
		reserve:  cfg.reserve,
		refs:     new(atomic.Int32),
		closed:   new(sync.Once),
	}
	a.refs.Store(1)
	a.allocated.Store(1)
	return a
}

// NewAnon allocates a new Arena backed by an anonymous memory mapping, kept
// outside the Go heap and garbage collector. It falls back to a heap
// allocation if the platform mapping fails.
func NewAnon(capacity uint32, opts ...Option) *Arena {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	total := int(uint64(capacity) + uint64(cfg.reserve))
	buf, err := mmap.Anonymous(total)
	if err != nil {
		buf = make([]byte, total)
	}
	a := &Arena{
		buffer:   buf,
		capacity: capacity,
		reserve:  cfg.reserve,
		refs:     new(atomic.Int32),
		closed:   new(sync.Once),
	}
	a.refs.Store(1)
	a.allocated.Store(1)
	return a
}

// Allocate bumps the arena's high-water mark by size bytes, aligned to
// align (a power of two), and returns the aligned offset. overflow bounds
// how much further a caller intends to read or write past offset+size
// without it counting as a separate allocation (e.g. a skiplist node's
// unused tower tail): the allocation fails unless offset+size+overflow
// still fits within capacity, even though only size bytes are reserved.
func (a *Arena) Allocate(size, align, overflow uint32) (offset uint32, err error) {
	if a.readOnly {
		return 0, ErrReadOnly
	}
	if align == 0 {
		align = 1
	}

	padded := uint64(size) + uint64(align) - 1
	for {
		prior := a.allocated.Load()
		newSize := prior + padded
		if newSize+uint64(overflow) > uint64(a.capacity) {
			remaining := uint32(0)
			if uint64(a.capacity) > prior {
				remaining = a.capacity - uint32(prior)
			}
			return 0, &FullError{Requested: size, Remaining: remaining}
		}
		if a.allocated.CompareAndSwap(prior, newSize) {
			offset = uint32((prior + uint64(align) - 1) &^ (uint64(align) - 1))
			return offset, nil
		}
	}
}

// Bytes returns the arena bytes in [offset, offset+size). Offset 0 always
// yields an empty slice, matching the nil-offset convention.
func (a *Arena) Bytes(offset, size uint32) []byte {
	if offset == nilOffset || size == 0 {
		return nil
	}
	start := a.bodyOffset + offset
	end := start + size
	return a.buffer[start:end:end]
}

// BytesMut is Bytes without the read-only distinction; the arena never
// distinguishes mutable and immutable views beyond Go's own slice aliasing.
func (a *Arena) BytesMut(offset, size uint32) []byte {
	return a.Bytes(offset, size)
}

// PointerOffset returns the body offset of a byte previously returned by
// Bytes, given the same backing buffer. It is used by callers that hold an
// unsafe.Pointer into the arena (e.g. a *node) and need to recover its
// offset for linking into the skiplist's towers.
func (a *Arena) PointerOffset(p *byte) uint32 {
	if p == nil {
		return nilOffset
	}
	base := &a.buffer[a.bodyOffset]
	return uint32(ptrDiff(p, base))
}

// At returns a pointer to the arena byte at the given body offset, or nil
// for the reserved offset 0.
func (a *Arena) At(offset uint32) *byte {
	if offset == nilOffset {
		return nil
	}
	return &a.buffer[a.bodyOffset+offset]
}

// Len returns the number of bytes allocated so far (excluding the reserved
// nil offset).
func (a *Arena) Len() uint32 {
	return uint32(a.allocated.Load()) - 1
}

// Allocated is an alias of Len matching the core handle's vocabulary.
func (a *Arena) Allocated() uint32 { return a.Len() }

// Capacity returns the usable body capacity of the arena.
func (a *Arena) Capacity() uint32 { return a.capacity - 1 }

// Remaining returns the number of bytes still available for allocation.
func (a *Arena) Remaining() uint32 {
	allocated := uint32(a.allocated.Load())
	if allocated >= a.capacity {
		return 0
	}
	return a.capacity - allocated
}

// Clear resets the arena to empty, reclaiming all previously allocated
// bytes at once. The caller must have exclusive access: Clear is not safe
// to race with any other Arena or SkipList operation.
func (a *Arena) Clear() {
	a.allocated.Store(1)
}

// Clone returns a new handle sharing the same backing region, incrementing
// the arena's reference count. The region is released only once every
// clone has been Closed.
func (a *Arena) Clone() *Arena {
	a.refs.Add(1)
	clone := *a
	return &clone
}

// writeHeader records the current high-water mark into the persisted
// header so a reopened file resumes allocating after everything already
// written, instead of overwriting it. A no-op for heap/anon arenas and for
// read-only handles, which never advance the mark.
func (a *Arena) writeHeader() {
	if a.file == nil || a.readOnly {
		return
	}
	binary.LittleEndian.PutUint64(a.buffer[:headerSize], a.allocated.Load())
}

// Flush persists dirty pages of a file-backed arena synchronously. It is a
// no-op for heap and anonymous arenas.
func (a *Arena) Flush() error {
	if a.file == nil {
		return nil
	}
	a.writeHeader()
	return a.file.flush(a.buffer, true)
}

// FlushAsync schedules dirty pages of a file-backed arena to be persisted
// without blocking for completion. It is a no-op for heap and anonymous
// arenas.
func (a *Arena) FlushAsync() error {
	if a.file == nil {
		return nil
	}
	a.writeHeader()
	return a.file.flush(a.buffer, false)
}

// Close releases the arena's resources once every clone sharing it has
// also called Close. For file-backed arenas this unmaps the region and
// closes the file (optionally truncating it per its OpenOptions).
func (a *Arena) Close() error {
	if a.refs.Add(-1) > 0 {
		return nil
	}
	var err error
	a.closed.Do(func() {
		if a.file != nil {
			a.writeHeader()
			err = a.file.close(a.buffer)
		}
	})
	return err
}
