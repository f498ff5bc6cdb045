package skl

import "errors"

// ErrBufferFull is returned by Buffer.WriteAt when a write would extend
// past the space reserved for it.
var ErrBufferFull = errors.New("skl: buffer full")

// Buffer is the arena-backed window a ValueBuilder writes a value into.
// Its capacity is fixed at construction — set by the size the caller of
// InsertWith/GetOrInsertWith requested — since that space was already
// carved out of the node's allocation; Buffer never grows.
type Buffer struct {
	data []byte
	n    int
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int { return b.n }

// Cap returns the buffer's fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Remaining returns the number of bytes still available before ErrBufferFull.
func (b *Buffer) Remaining() int { return len(b.data) - b.n }

// WriteAt copies p into the buffer starting at byte offset off. It never
// reallocates: a write that would extend past Cap returns ErrBufferFull
// and the buffer is left unchanged.
func (b *Buffer) WriteAt(p []byte, off int) (int, error) {
	if off < 0 || off+len(p) > len(b.data) {
		return 0, ErrBufferFull
	}
	copy(b.data[off:], p)
	if end := off + len(p); end > b.n {
		b.n = end
	}
	return len(p), nil
}

// Write appends p at the buffer's current length.
func (b *Buffer) Write(p []byte) (int, error) {
	return b.WriteAt(p, b.n)
}

// ValueBuilder constructs a value directly inside an arena-owned Buffer,
// avoiding a separate build-then-copy allocation for values assembled on
// the fly (e.g. encoded from a larger in-memory structure). The builder
// need not fill the whole buffer; the caller records whatever length it
// left behind as the value's final size.
type ValueBuilder func(buf *Buffer) error

// KeyBuilder is ValueBuilder's counterpart for in-place key construction,
// used by the dual-builder InsertWith/GetOrInsertWith.
type KeyBuilder func(buf *Buffer) error

// InsertWithValue adds a new (key, trailer) entry whose value is
// constructed by build into a Buffer of exactly valueSize bytes. If an
// entry with that exact key and trailer.Version() already exists, build
// runs again against a fresh buffer and the result republishes in place,
// same as Insert.
func (s *SkipList[T]) InsertWithValue(key []byte, valueSize uint32, trailer T, build ValueBuilder) error {
	_, _, err := s.insertWithValue(key, valueSize, trailer, build, true)
	return err
}

// GetOrInsertWithValue returns the existing value for (key,
// trailer.Version()) if one is present, otherwise builds and inserts one
// with build. loaded reports which case occurred; an existing entry is
// never overwritten.
func (s *SkipList[T]) GetOrInsertWithValue(key []byte, valueSize uint32, trailer T, build ValueBuilder) (actual []byte, loaded bool, err error) {
	return s.insertWithValue(key, valueSize, trailer, build, false)
}

func (s *SkipList[T]) insertWithValue(key []byte, valueSize uint32, trailer T, build ValueBuilder, overwrite bool) (actual []byte, loaded bool, err error) {
	if s.maxValueSize > 0 && valueSize > s.maxValueSize {
		return nil, false, &ValueTooLargeError{Size: valueSize, Max: s.maxValueSize}
	}

	var buildErr error
	nd, loaded, err := s.spliceIn(key, trailer, overwrite,
		func(height uint32) (*node[T], uint32, error) {
			nd, offset, region, err := newNodeReserved[T](s.arena, key, valueSize, trailer, height)
			if err != nil {
				return nil, 0, err
			}
			buf := &Buffer{data: region}
			if buildErr = build(buf); buildErr != nil {
				// The node stays allocated — arena space is never reclaimed
				// piecemeal — but it's never linked into any tower, so it's
				// simply unreachable dead weight, the same cost a failed
				// CAS retry already pays.
				return nil, 0, buildErr
			}
			valueOffset := nd.keyOffset + uint32(len(key))
			nd.finalizeValue(valueOffset, uint32(buf.Len()))
			return nd, offset, nil
		},
		func(nd *node[T]) error {
			return nd.setValueWith(s.arena, valueSize, build)
		})
	if err != nil {
		return nil, false, err
	}
	v, _ := nd.value(s.arena)
	return v, loaded, nil
}

// InsertWith adds a new entry whose key and value are both constructed in
// place: keyBuild fills a Buffer of up to keyLen bytes and valueBuild
// fills one of up to valueLen bytes. Because the key isn't known until
// keyBuild runs, the node's tower height is sampled up front instead of
// after confirming no (key, trailer.Version()) collision exists — a
// collision leaves the freshly built node allocated but unlinked, the
// same cost a losing CAS retry already pays elsewhere.
func (s *SkipList[T]) InsertWith(keyLen uint32, keyBuild KeyBuilder, valueLen uint32, trailer T, valueBuild ValueBuilder) error {
	_, _, err := s.insertWithKey(keyLen, keyBuild, valueLen, trailer, valueBuild, true)
	return err
}

// GetOrInsertWith is InsertWith's get-or-insert counterpart: an existing
// entry at (key, trailer.Version()) is never overwritten, even though
// keyBuild/valueBuild already ran speculatively to discover it.
func (s *SkipList[T]) GetOrInsertWith(keyLen uint32, keyBuild KeyBuilder, valueLen uint32, trailer T, valueBuild ValueBuilder) (actual []byte, loaded bool, err error) {
	return s.insertWithKey(keyLen, keyBuild, valueLen, trailer, valueBuild, false)
}

func (s *SkipList[T]) insertWithKey(keyLen uint32, keyBuild KeyBuilder, valueLen uint32, trailer T, valueBuild ValueBuilder, overwrite bool) (actual []byte, loaded bool, err error) {
	if s.maxKeySize > 0 && keyLen > s.maxKeySize {
		return nil, false, &KeyTooLargeError{Size: keyLen, Max: s.maxKeySize}
	}
	if s.maxValueSize > 0 && valueLen > s.maxValueSize {
		return nil, false, &ValueTooLargeError{Size: valueLen, Max: s.maxValueSize}
	}

	rnd := randPool.get()
	height := randomHeight(rnd)
	randPool.put(rnd)

	nd, ndOffset, keyRegion, valueRegion, err := newNodeReservedKV[T](s.arena, keyLen, valueLen, trailer, height)
	if err != nil {
		return nil, false, err
	}
	keyBuf := &Buffer{data: keyRegion}
	if err := keyBuild(keyBuf); err != nil {
		return nil, false, err
	}
	nd.finalizeKey(uint32(keyBuf.Len()), height)
	valueBuf := &Buffer{data: valueRegion}
	if err := valueBuild(valueBuf); err != nil {
		return nil, false, err
	}
	nd.finalizeValue(nd.keyOffset+keyLen, uint32(valueBuf.Len()))

	key := nd.key(s.arena)
	result, loaded, err := s.spliceInPrebuilt(key, trailer, height, nd, ndOffset, overwrite,
		func(target *node[T]) error {
			return target.setValueWith(s.arena, valueLen, valueBuild)
		})
	if err != nil {
		return nil, false, err
	}
	v, _ := result.value(s.arena)
	return v, loaded, nil
}
