package skl

import (
	"sync/atomic"
	"unsafe"

	"github.com/latticedb/skl/arena"
)

// node is the in-arena layout of one skiplist entry. A node is never moved
// or resized after construction; every mutable field is an atomic updated
// in place, which is what lets readers walk the tower without taking a
// lock.
//
// Only height of the tower's maxHeight slots are ever allocated for a given
// node — see newNode — so nothing outside this package may read tower[i]
// for i >= height: that memory may belong to a different node entirely.
type node[T Trailer] struct {
	valuePointer     atomic.Uint64
	keyOffset        uint32
	keySizeAndHeight uint32
	trailer          T

	tower [maxHeight]atomic.Uint32
}

var linksSize = uint32(unsafe.Sizeof(atomic.Uint32{}))

// headOffsetFor returns the arena offset New always allocates the head
// sentinel at when initializing an empty arena: the very first allocation
// the arena ever serves, aligned to node[T]'s alignment. A reopened
// arena's head lives here deterministically, so New can recover it
// without anything persisting the offset itself — only the high-water
// mark is ever written to the header.
func headOffsetFor[T Trailer]() uint32 {
	var zero node[T]
	align := uint32(unsafe.Alignof(zero))
	const firstAllocated = 1
	return (firstAllocated + align - 1) &^ (align - 1)
}

// newNode allocates and initializes a node of the given height in a,
// copying key and, unless tombstone is set, value into arena-owned storage.
func newNode[T Trailer](a *arena.Arena, key, value []byte, trailer T, height uint32, tombstone bool) (nd *node[T], offset uint32, err error) {
	if height < 1 || height > maxHeight {
		panic("skl: height out of range")
	}

	var zero node[T]
	fullSize := uint32(unsafe.Sizeof(zero))
	align := uint32(unsafe.Alignof(zero))
	unusedTower := (maxHeight - height) * linksSize
	nodeSize := fullSize - unusedTower

	keySize := uint32(len(key))
	valueSize := uint32(len(value))

	total := nodeSize + keySize
	if !tombstone {
		total += valueSize
	}

	offset, err = a.Allocate(total, align, unusedTower)
	if err != nil {
		return nil, 0, err
	}

	nd = (*node[T])(unsafe.Pointer(a.At(offset)))
	nd.keyOffset = offset + nodeSize
	nd.keySizeAndHeight = packKeySizeAndHeight(keySize, height)
	nd.trailer = trailer
	copy(a.BytesMut(nd.keyOffset, keySize), key)

	var valueOffset uint32
	if !tombstone {
		valueOffset = nd.keyOffset + keySize
		copy(a.BytesMut(valueOffset, valueSize), value)
	}
	nd.valuePointer.Store(packValuePointer(valueOffset, valueSize, tombstone))

	return nd, offset, nil
}

// newNodeReserved allocates a node with room for a value of exactly
// valueSize bytes without writing into it, returning that region as
// valueRegion. Used by the *With builder variants: a caller-supplied
// closure fills valueRegion directly, skipping the build-then-copy a
// plain Insert would otherwise pay for a value assembled on the fly (e.g.
// encoded from a larger in-memory structure). Used by the
// InsertWithValue/GetOrInsertWithValue variants; see newNodeReservedKV for
// the dual key/value-builder variants.
func newNodeReserved[T Trailer](a *arena.Arena, key []byte, valueSize uint32, trailer T, height uint32) (nd *node[T], offset uint32, valueRegion []byte, err error) {
	if height < 1 || height > maxHeight {
		panic("skl: height out of range")
	}

	var zero node[T]
	fullSize := uint32(unsafe.Sizeof(zero))
	align := uint32(unsafe.Alignof(zero))
	unusedTower := (maxHeight - height) * linksSize
	nodeSize := fullSize - unusedTower

	keySize := uint32(len(key))
	total := nodeSize + keySize + valueSize

	offset, err = a.Allocate(total, align, unusedTower)
	if err != nil {
		return nil, 0, nil, err
	}

	nd = (*node[T])(unsafe.Pointer(a.At(offset)))
	nd.keyOffset = offset + nodeSize
	nd.keySizeAndHeight = packKeySizeAndHeight(keySize, height)
	nd.trailer = trailer
	copy(a.BytesMut(nd.keyOffset, keySize), key)

	valueOffset := nd.keyOffset + keySize
	valueRegion = a.BytesMut(valueOffset, valueSize)
	nd.valuePointer.Store(packValuePointer(valueOffset, 0, false))
	return nd, offset, valueRegion, nil
}

// newNodeReservedKV allocates a node with room for a key of exactly
// keySize bytes and a value of exactly valueSize bytes, without writing
// into either, returning both regions. Used by the dual-builder *With
// variants, which construct both key and value in place.
func newNodeReservedKV[T Trailer](a *arena.Arena, keySize, valueSize uint32, trailer T, height uint32) (nd *node[T], offset uint32, keyRegion, valueRegion []byte, err error) {
	if height < 1 || height > maxHeight {
		panic("skl: height out of range")
	}

	var zero node[T]
	fullSize := uint32(unsafe.Sizeof(zero))
	align := uint32(unsafe.Alignof(zero))
	unusedTower := (maxHeight - height) * linksSize
	nodeSize := fullSize - unusedTower

	total := nodeSize + keySize + valueSize

	offset, err = a.Allocate(total, align, unusedTower)
	if err != nil {
		return nil, 0, nil, nil, err
	}

	nd = (*node[T])(unsafe.Pointer(a.At(offset)))
	nd.keyOffset = offset + nodeSize
	nd.keySizeAndHeight = packKeySizeAndHeight(keySize, height)
	nd.trailer = trailer
	keyRegion = a.BytesMut(nd.keyOffset, keySize)

	valueOffset := nd.keyOffset + keySize
	valueRegion = a.BytesMut(valueOffset, valueSize)
	nd.valuePointer.Store(packValuePointer(valueOffset, 0, false))
	return nd, offset, keyRegion, valueRegion, nil
}

// finalizeKey records the number of bytes a key builder actually wrote
// into the region newNodeReservedKV handed it, which may be less than the
// region requested. The value region's own offset was already fixed at
// allocation time and does not shift to follow a shorter key.
func (n *node[T]) finalizeKey(keySize, height uint32) {
	n.keySizeAndHeight = packKeySizeAndHeight(keySize, height)
}

// finalizeValue records the number of bytes a builder actually wrote into
// the region newNodeReserved handed it, which may be less than the region
// requested.
func (n *node[T]) finalizeValue(offset, size uint32) {
	n.valuePointer.Store(packValuePointer(offset, size, false))
}

func (n *node[T]) key(a *arena.Arena) []byte {
	keySize, _ := unpackKeySizeAndHeight(n.keySizeAndHeight)
	return a.Bytes(n.keyOffset, keySize)
}

func (n *node[T]) height() uint32 {
	_, h := unpackKeySizeAndHeight(n.keySizeAndHeight)
	return h
}

// value returns the node's current value and whether it is a tombstone.
// The load is a single atomic read of the packed pointer, so a concurrent
// writer's update is seen either fully or not at all.
func (n *node[T]) value(a *arena.Arena) (value []byte, tombstone bool) {
	offset, size, tombstone := unpackValuePointer(n.valuePointer.Load())
	if tombstone {
		return nil, true
	}
	return a.Bytes(offset, size), false
}

func (n *node[T]) casValue(a *arena.Arena, old uint64, value []byte, tombstone bool) (uint64, bool) {
	var offset uint32
	var err error
	size := uint32(len(value))
	if !tombstone {
		offset, err = a.Allocate(size, 1, 0)
		if err != nil {
			return old, false
		}
		copy(a.BytesMut(offset, size), value)
	}
	next := packValuePointer(offset, size, tombstone)
	if n.valuePointer.CompareAndSwap(old, next) {
		return next, true
	}
	return n.valuePointer.Load(), false
}

// setValue republishes a node's value, retrying until it wins the race
// against any concurrent writer of the same node. Each retry allocates a
// fresh value region; a region written by a losing attempt is simply left
// behind in the arena, never freed.
func (n *node[T]) setValue(a *arena.Arena, value []byte, tombstone bool) error {
	size := uint32(len(value))
	for {
		old := n.valuePointer.Load()
		var offset uint32
		if !tombstone {
			var err error
			offset, err = a.Allocate(size, 1, 0)
			if err != nil {
				return err
			}
			copy(a.BytesMut(offset, size), value)
		}
		if n.valuePointer.CompareAndSwap(old, packValuePointer(offset, size, tombstone)) {
			return nil
		}
	}
}

// setValueWith is setValue's builder-based counterpart: build constructs
// the replacement value directly inside a freshly allocated region.
func (n *node[T]) setValueWith(a *arena.Arena, size uint32, build ValueBuilder) error {
	for {
		old := n.valuePointer.Load()
		offset, err := a.Allocate(size, 1, 0)
		if err != nil {
			return err
		}
		region := a.BytesMut(offset, size)
		buf := &Buffer{data: region}
		if err := build(buf); err != nil {
			return err
		}
		next := packValuePointer(offset, uint32(buf.Len()), false)
		if n.valuePointer.CompareAndSwap(old, next) {
			return nil
		}
	}
}

func (n *node[T]) nextOffset(level int) uint32 {
	return n.tower[level].Load()
}

func (n *node[T]) casNextOffset(level int, old, next uint32) bool {
	return n.tower[level].CompareAndSwap(old, next)
}
