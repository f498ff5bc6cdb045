// Package skl implements a lock-free, ordered, multi-version map over a
// byte arena. Keys are ordered by a caller-supplied Comparator; entries
// sharing a key are further ordered by their Trailer's version, newest
// first, so a lookup without an explicit ceiling always sees the latest
// write.
//
// Every operation that walks the list — Get, Insert, iteration — is
// lock-free: readers never block on a writer, and concurrent writers race
// only on a handful of per-level compare-and-swaps, never a mutex.
package skl

import (
	"sync/atomic"
	"unsafe"

	"github.com/latticedb/skl/arena"
)

// NoCeiling is the version ceiling that admits every version, for callers
// of Get/GE/GT/LE/LT/First/Last/Iter/IterAllVersions/LowerBound/UpperBound
// that want ordinary newest-wins reads without tracking a snapshot version
// of their own.
const NoCeiling = ^uint64(0)

// config collects the options applied at construction.
type config struct {
	cmp          Comparator
	maxKeySize   uint32
	maxValueSize uint32
}

// Option configures a SkipList at construction time.
type Option interface {
	apply(*config)
}

// OptionFunc adapts a plain function to the Option interface.
type OptionFunc func(*config)

func (f OptionFunc) apply(c *config) { f(c) }

// WithComparator overrides the default ascending byte-order Comparator.
func WithComparator(cmp Comparator) Option {
	return OptionFunc(func(c *config) { c.cmp = cmp })
}

// WithMaxKeySize rejects any key larger than n. The zero value leaves keys
// unbounded except by the arena's own capacity.
func WithMaxKeySize(n uint32) Option {
	return OptionFunc(func(c *config) { c.maxKeySize = n })
}

// WithMaxValueSize rejects any value larger than n.
func WithMaxValueSize(n uint32) Option {
	return OptionFunc(func(c *config) { c.maxValueSize = n })
}

// SkipList is a lock-free, ordered, multi-version map. Its zero value is
// not usable; construct one with New. A SkipList must not be copied after
// first use.
type SkipList[T Trailer] struct {
	arena *arena.Arena
	cmp   Comparator
	head  uint32

	height       atomic.Uint32
	length       atomic.Uint32
	discarded    atomic.Uint64
	minVersion   atomic.Uint64
	maxVersion   atomic.Uint64
	maxKeySize   uint32
	maxValueSize uint32
}

// New constructs a SkipList over a. The arena is owned by the returned
// SkipList for the lifetime of the list; callers that also hold the arena
// directly (e.g. to Flush or Close it) must do so after they're done with
// the list.
//
// If a is empty, New initializes it with a fresh head sentinel. If a
// already holds data — reopened read-only via arena.Map or for further
// writes via arena.MapMut — New instead recovers the head sentinel from
// its deterministic first-allocation offset and replays the list once to
// recover Len/MinVersion/MaxVersion, none of which are persisted in the
// arena header (only the high-water mark is).
func New[T Trailer](a *arena.Arena, opts ...Option) (*SkipList[T], error) {
	cfg := config{cmp: Ascending}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	s := &SkipList[T]{
		arena:        a,
		cmp:          cfg.cmp,
		maxKeySize:   cfg.maxKeySize,
		maxValueSize: cfg.maxValueSize,
	}

	if a.Allocated() == 0 {
		var zero T
		_, headOffset, err := newNode[T](a, nil, nil, zero, maxHeight, true)
		if err != nil {
			return nil, err
		}
		s.head = headOffset
		s.height.Store(1)
		return s, nil
	}

	s.head = headOffsetFor[T]()
	s.height.Store(maxHeight)
	s.recoverAccounting()
	return s, nil
}

// recoverAccounting replays the base level once to reconstruct Len,
// MinVersion, and MaxVersion after New recovers a pre-existing arena.
func (s *SkipList[T]) recoverAccounting() {
	var length uint32
	var minVersion, maxVersion uint64
	first := true
	for nd := s.nodeAt(s.headNode().nextOffset(0)); nd != nil; nd = s.nodeAt(nd.nextOffset(0)) {
		length++
		v := nd.trailer.Version()
		if first || v < minVersion {
			minVersion = v
		}
		if first || v > maxVersion {
			maxVersion = v
		}
		first = false
	}
	s.length.Store(length)
	s.minVersion.Store(minVersion)
	s.maxVersion.Store(maxVersion)
}

// Arena returns the arena backing this list.
func (s *SkipList[T]) Arena() *arena.Arena { return s.arena }

// Height returns the tallest tower among all nodes ever inserted. A list
// recovered from an existing arena reports maxHeight.
func (s *SkipList[T]) Height() uint32 { return s.height.Load() }

// Len returns the number of entries currently in the list, tombstones
// included.
func (s *SkipList[T]) Len() uint32 { return s.length.Load() }

// IsEmpty reports whether the list has no entries.
func (s *SkipList[T]) IsEmpty() bool { return s.Len() == 0 }

// Capacity returns the arena's usable body capacity.
func (s *SkipList[T]) Capacity() uint32 { return s.arena.Capacity() }

// Allocated returns the number of arena bytes allocated so far.
func (s *SkipList[T]) Allocated() uint32 { return s.arena.Allocated() }

// Remaining returns the number of arena bytes still available.
func (s *SkipList[T]) Remaining() uint32 { return s.arena.Remaining() }

// Comparator returns the list's key Comparator.
func (s *SkipList[T]) Comparator() Comparator { return s.cmp }

// MinVersion returns the smallest trailer version ever inserted, or 0 if
// the list is empty.
func (s *SkipList[T]) MinVersion() uint64 { return s.minVersion.Load() }

// MaxVersion returns the largest trailer version ever inserted, or 0 if
// the list is empty.
func (s *SkipList[T]) MaxVersion() uint64 { return s.maxVersion.Load() }

// DiscardedBytes is a best-effort lower bound on the number of value bytes
// made unreachable by in-place overwrites (Insert/InsertWith replacing an
// existing (key, version) entry, or CompareRemove/GetOrRemove tombstoning
// one). It never decreases except via Clear: the arena itself never
// reclaims the superseded bytes.
func (s *SkipList[T]) DiscardedBytes() uint64 { return s.discarded.Load() }

func (s *SkipList[T]) trackVersion(version uint64) {
	for {
		min := s.minVersion.Load()
		if min != 0 && min <= version {
			break
		}
		if s.minVersion.CompareAndSwap(min, version) {
			break
		}
	}
	for {
		max := s.maxVersion.Load()
		if max >= version {
			break
		}
		if s.maxVersion.CompareAndSwap(max, version) {
			break
		}
	}
}

func (s *SkipList[T]) nodeAt(offset uint32) *node[T] {
	if offset == 0 {
		return nil
	}
	return (*node[T])(unsafe.Pointer(s.arena.At(offset)))
}

func (s *SkipList[T]) headNode() *node[T] { return s.nodeAt(s.head) }

// compareKeyVersion orders (key, version) against a node the same way the
// list itself is ordered: ascending by key, then descending by version, so
// the newest version of a key always precedes older ones.
func (s *SkipList[T]) compareKeyVersion(key []byte, version uint64, nd *node[T]) int {
	if c := s.cmp.Compare(key, nd.key(s.arena)); c != 0 {
		return c
	}
	ndVersion := nd.trailer.Version()
	switch {
	case version > ndVersion:
		return -1
	case version < ndVersion:
		return 1
	default:
		return 0
	}
}

// findNext returns the node preceding the first node at level whose (key,
// version) is >= the target, the offset of that node, and whether it is an
// exact match.
func (s *SkipList[T]) findNext(start *node[T], level int, key []byte, version uint64) (prev *node[T], nextOffset uint32, match bool) {
	prev = start
	for {
		nextOffset = prev.nextOffset(level)
		next := s.nodeAt(nextOffset)
		if next == nil {
			return prev, 0, false
		}
		cmp := s.compareKeyVersion(key, version, next)
		if cmp < 0 {
			return prev, nextOffset, false
		}
		if cmp == 0 {
			return prev, nextOffset, true
		}
		prev = next
	}
}

// findGreaterOrEqual locates the first node whose key compares >= key,
// ignoring version: used by reads that want the newest version of whatever
// key is found.
func (s *SkipList[T]) findGreaterOrEqual(key []byte) *node[T] {
	height := int(s.Height())
	cur := s.headNode()
	for level := height - 1; level >= 0; level-- {
		for {
			next := s.nodeAt(cur.nextOffset(level))
			if next == nil {
				break
			}
			if s.cmp.Compare(next.key(s.arena), key) >= 0 {
				break
			}
			cur = next
		}
	}
	return s.nodeAt(cur.nextOffset(0))
}

// Get returns the newest entry for key whose version is <= ceiling — the
// MVCC snapshot-read primitive. Pass NoCeiling for ordinary newest-wins
// reads. ok is false if no such entry exists or it is a tombstone.
func (s *SkipList[T]) Get(key []byte, ceiling uint64) (value []byte, trailer T, ok bool) {
	nd := s.findGreaterOrEqual(key)
	for nd != nil && s.cmp.Compare(nd.key(s.arena), key) == 0 {
		if nd.trailer.Version() <= ceiling {
			v, tombstone := nd.value(s.arena)
			if tombstone {
				var zero T
				return nil, zero, false
			}
			return v, nd.trailer, true
		}
		nd = s.nodeAt(nd.nextOffset(0))
	}
	var zero T
	return nil, zero, false
}

// GE returns the newest non-tombstone entry, with version <= ceiling, at
// the smallest key >= key.
func (s *SkipList[T]) GE(ceiling uint64, key []byte) (k, value []byte, trailer T, ok bool) {
	return s.LowerBound(ceiling, Inclusive(key))
}

// GT returns the newest non-tombstone entry, with version <= ceiling, at
// the smallest key > key.
func (s *SkipList[T]) GT(ceiling uint64, key []byte) (k, value []byte, trailer T, ok bool) {
	return s.LowerBound(ceiling, Exclusive(key))
}

// LE returns the newest non-tombstone entry, with version <= ceiling, at
// the largest key <= key. Like Last, it has no backward link to exploit
// and walks the base level end to end within the range.
func (s *SkipList[T]) LE(ceiling uint64, key []byte) (k, value []byte, trailer T, ok bool) {
	return s.UpperBound(ceiling, Inclusive(key))
}

// LT returns the newest non-tombstone entry, with version <= ceiling, at
// the largest key < key.
func (s *SkipList[T]) LT(ceiling uint64, key []byte) (k, value []byte, trailer T, ok bool) {
	return s.UpperBound(ceiling, Exclusive(key))
}

// LowerBound returns the entry at the smallest key satisfying bound,
// treated as a lower limit (Inclusive matches bound.Key itself, Exclusive
// requires a strictly greater key), considering only entries with
// version <= ceiling. It is a seek operation, distinct from the Bound
// value constructors of the same name in comparator.go.
func (s *SkipList[T]) LowerBound(ceiling uint64, bound Bound) (k, value []byte, trailer T, ok bool) {
	return s.firstIn(ceiling, Range{Lower: bound})
}

// UpperBound returns the entry at the largest key satisfying bound,
// treated as an upper limit, considering only entries with version <=
// ceiling. It is a seek operation, distinct from the Bound value
// constructors of the same name in comparator.go.
func (s *SkipList[T]) UpperBound(ceiling uint64, bound Bound) (k, value []byte, trailer T, ok bool) {
	return s.lastIn(ceiling, Range{Upper: bound})
}

func (s *SkipList[T]) firstIn(ceiling uint64, rng Range) (k, value []byte, trailer T, ok bool) {
	it := s.Iter(ceiling, rng)
	defer it.Close()
	if !it.First() {
		var zero T
		return nil, nil, zero, false
	}
	v, _ := it.Value()
	return it.Key(), v, it.Trailer(), true
}

func (s *SkipList[T]) lastIn(ceiling uint64, rng Range) (k, value []byte, trailer T, ok bool) {
	it := s.Iter(ceiling, rng)
	defer it.Close()
	var foundTrailer T
	var foundKey, foundValue []byte
	found := false
	for more := it.First(); more; more = it.Next() {
		foundKey, foundTrailer, found = it.Key(), it.Trailer(), true
		foundValue, _ = it.Value()
	}
	return foundKey, foundValue, foundTrailer, found
}

// Range returns an Iterator over the newest version (with version <=
// ceiling) of every key in rng, named to mirror the Lower/Upper
// bound-pair terminology of LowerBound and UpperBound. It is otherwise
// identical to Iter.
func (s *SkipList[T]) Range(ceiling uint64, rng Range) *Iterator[T] {
	return s.Iter(ceiling, rng)
}

// RangeAllVersions is Range's every-version counterpart, mirroring
// IterAllVersions.
func (s *SkipList[T]) RangeAllVersions(ceiling uint64, rng Range) *Iterator[T] {
	return s.IterAllVersions(ceiling, rng)
}

// Insert adds a new (key, trailer) entry with the given value. If an entry
// with that exact key and trailer.Version() already exists, its value is
// republished in place instead: readers never see a torn value, but the
// bytes the old value occupied become unreachable and count toward
// DiscardedBytes.
func (s *SkipList[T]) Insert(key, value []byte, trailer T) error {
	_, _, err := s.insert(key, value, trailer, false, true)
	return err
}

// Delete inserts a tombstone for key at trailer.Version(), shadowing every
// older version without physically removing them. Physical removal is the
// caller's responsibility, typically during compaction of whatever
// higher-level store owns this list. Like Insert, a tombstone at an
// already-occupied (key, version) republishes in place.
func (s *SkipList[T]) Delete(key []byte, trailer T) error {
	_, _, err := s.insert(key, nil, trailer, true, true)
	return err
}

// GetOrInsert returns the existing value for (key, trailer.Version()) if
// one is present, otherwise inserts value and returns it. loaded reports
// which case occurred. Among concurrent callers racing on the same (key,
// version), exactly one observes loaded == false, and every caller
// observes that one's value: unlike Insert, an existing entry is never
// overwritten.
func (s *SkipList[T]) GetOrInsert(key, value []byte, trailer T) (actual []byte, loaded bool, err error) {
	return s.insert(key, value, trailer, false, false)
}

func (s *SkipList[T]) insert(key, value []byte, trailer T, tombstone, overwrite bool) (actual []byte, loaded bool, err error) {
	if s.maxValueSize > 0 && uint32(len(value)) > s.maxValueSize {
		return nil, false, &ValueTooLargeError{Size: uint32(len(value)), Max: s.maxValueSize}
	}
	nd, loaded, err := s.spliceIn(key, trailer, overwrite,
		func(height uint32) (*node[T], uint32, error) {
			return newNode[T](s.arena, key, value, trailer, height, tombstone)
		},
		func(nd *node[T]) error {
			return nd.setValue(s.arena, value, tombstone)
		})
	if err != nil {
		return nil, false, err
	}
	v, _ := nd.value(s.arena)
	return v, loaded, nil
}

// spliceIn runs the lock-free search-and-link algorithm shared by every
// insertion path. makeNode is called at most once, after the list has
// already confirmed no (key, trailer.Version()) entry exists, with the
// height the new node should be allocated at. If a (key, trailer.Version())
// entry already exists, applyOverwrite republishes it in place when
// overwrite is set; otherwise the match is returned untouched. The returned
// node is either the pre-existing match (loaded == true) or the node
// makeNode built (loaded == false).
func (s *SkipList[T]) spliceIn(key []byte, trailer T, overwrite bool, makeNode func(height uint32) (*node[T], uint32, error), applyOverwrite func(nd *node[T]) error) (result *node[T], loaded bool, err error) {
	if s.maxKeySize > 0 && uint32(len(key)) > s.maxKeySize {
		return nil, false, &KeyTooLargeError{Size: uint32(len(key)), Max: s.maxKeySize}
	}

	version := trailer.Version()
	s.trackVersion(version)
	searchHeight := int(s.Height())

	prevs := make([]*node[T], maxHeight)
	nexts := make([]uint32, maxHeight)

	cur := s.headNode()
	for level := searchHeight - 1; level >= 0; level-- {
		next, nextOffset, match := s.findNext(cur, level, key, version)
		cur = next
		prevs[level] = cur
		nexts[level] = nextOffset
		if match {
			return s.overwriteMatch(nextOffset, overwrite, applyOverwrite)
		}
	}

	rnd := randPool.get()
	height := randomHeight(rnd)
	randPool.put(rnd)

	nd, ndOffset, err := makeNode(height)
	if err != nil {
		return nil, false, err
	}

	listHeight := s.Height()
	for listHeight < height {
		if s.height.CompareAndSwap(listHeight, height) {
			break
		}
		listHeight = s.Height()
	}

	// Insert bottom-up: a node is only discoverable on a level once this
	// loop has linked it there, so racing readers never see a tower with
	// gaps.
	for level := 0; level < int(height); level++ {
		for {
			if prevs[level] == nil {
				prevs[level], nexts[level], _ = s.findNext(s.headNode(), level, key, version)
			}
			nd.tower[level].Store(nexts[level])
			if prevs[level].casNextOffset(level, nexts[level], ndOffset) {
				break
			}
			var match bool
			prevs[level], nexts[level], match = s.findNext(prevs[level], level, key, version)
			if match {
				return s.overwriteMatch(nexts[level], overwrite, applyOverwrite)
			}
		}
	}

	s.length.Add(1)
	return nd, false, nil
}

// spliceInPrebuilt links an already-built node into the list, following
// the same search-then-link shape as spliceIn. It backs the key-builder
// *With variants, where the key must be materialized in the arena before
// it can be searched for, so — unlike spliceIn — height is fixed before
// the search runs and no makeNode closure is needed.
func (s *SkipList[T]) spliceInPrebuilt(key []byte, trailer T, height uint32, nd *node[T], ndOffset uint32, overwrite bool, applyOverwrite func(nd *node[T]) error) (result *node[T], loaded bool, err error) {
	version := trailer.Version()
	s.trackVersion(version)
	searchHeight := int(s.Height())

	prevs := make([]*node[T], maxHeight)
	nexts := make([]uint32, maxHeight)

	cur := s.headNode()
	for level := searchHeight - 1; level >= 0; level-- {
		next, nextOffset, match := s.findNext(cur, level, key, version)
		cur = next
		prevs[level] = cur
		nexts[level] = nextOffset
		if match {
			return s.overwriteMatch(nextOffset, overwrite, applyOverwrite)
		}
	}

	listHeight := s.Height()
	for listHeight < height {
		if s.height.CompareAndSwap(listHeight, height) {
			break
		}
		listHeight = s.Height()
	}

	for level := 0; level < int(height); level++ {
		for {
			if prevs[level] == nil {
				prevs[level], nexts[level], _ = s.findNext(s.headNode(), level, key, version)
			}
			nd.tower[level].Store(nexts[level])
			if prevs[level].casNextOffset(level, nexts[level], ndOffset) {
				break
			}
			var match bool
			prevs[level], nexts[level], match = s.findNext(prevs[level], level, key, version)
			if match {
				return s.overwriteMatch(nexts[level], overwrite, applyOverwrite)
			}
		}
	}

	s.length.Add(1)
	return nd, false, nil
}

// overwriteMatch handles spliceIn finding an existing (key, version) entry:
// republishing its value in place when overwrite is set, leaving it
// untouched otherwise.
func (s *SkipList[T]) overwriteMatch(offset uint32, overwrite bool, applyOverwrite func(nd *node[T]) error) (*node[T], bool, error) {
	nd := s.nodeAt(offset)
	if overwrite {
		oldValue, _ := nd.value(s.arena)
		s.discarded.Add(uint64(len(oldValue)))
		if err := applyOverwrite(nd); err != nil {
			return nil, false, err
		}
	}
	return nd, true, nil
}

// findVersion locates the node at the exact (key, version) pair, or nil.
func (s *SkipList[T]) findVersion(key []byte, version uint64) *node[T] {
	height := int(s.Height())
	cur := s.headNode()
	for level := height - 1; level >= 0; level-- {
		next, nextOffset, match := s.findNext(cur, level, key, version)
		if match {
			return s.nodeAt(nextOffset)
		}
		cur = next
	}
	return nil
}

// RemoveOutcome classifies what CompareRemove observed at (key,
// trailer.Version()).
type RemoveOutcome int

const (
	// RemoveNotFound means there was nothing to tombstone: either no entry
	// existed yet at this exact (key, version) — in which case a tombstone
	// was published in its place — or the entry there was already a
	// tombstone.
	RemoveNotFound RemoveOutcome = iota
	// RemoveOK means a live entry existed at (key, version) and was
	// tombstoned. Value holds the entry's value immediately before removal.
	RemoveOK
	// RemoveConflict means a concurrent writer published a value for
	// (key, version) between CompareRemove's read and its CAS attempt, or
	// beat it to allocating a brand-new entry there. No tombstone was
	// published; Value holds what the concurrent writer published instead.
	RemoveConflict
)

// CompareRemove publishes a tombstone for (key, trailer.Version()),
// allocating the entry if it does not already exist. Unlike Insert, it
// never retries a losing CAS against a concurrent writer of the same
// (key, version): that race is reported as RemoveConflict instead,
// leaving the caller to decide whether to retry.
func (s *SkipList[T]) CompareRemove(key []byte, trailer T) (outcome RemoveOutcome, value []byte, err error) {
	version := trailer.Version()
	nd := s.findVersion(key, version)
	if nd == nil {
		actual, loaded, err := s.insert(key, nil, trailer, true, false)
		if err != nil {
			return RemoveNotFound, nil, err
		}
		if loaded {
			return RemoveConflict, actual, nil
		}
		return RemoveNotFound, nil, nil
	}

	old := nd.valuePointer.Load()
	curValue, tombstone := nd.value(s.arena)
	if tombstone {
		return RemoveNotFound, nil, nil
	}
	if _, ok := nd.casValue(s.arena, old, nil, true); ok {
		s.discarded.Add(uint64(len(curValue)))
		return RemoveOK, curValue, nil
	}
	conflictValue, _ := nd.value(s.arena)
	return RemoveConflict, conflictValue, nil
}

// GetOrRemove tombstones the entry at (key, version) if present, returning
// its value immediately prior to removal. removed is false if no such
// entry exists or it was already a tombstone.
func (s *SkipList[T]) GetOrRemove(key []byte, version uint64) (value []byte, removed bool) {
	nd := s.findVersion(key, version)
	if nd == nil {
		return nil, false
	}
	for {
		old := nd.valuePointer.Load()
		curValue, tombstone := nd.value(s.arena)
		if tombstone {
			return nil, false
		}
		if _, ok := nd.casValue(s.arena, old, nil, true); ok {
			s.discarded.Add(uint64(len(curValue)))
			return curValue, true
		}
	}
}

// First returns the entry, with version <= ceiling, at the smallest key,
// considering only each key's newest such version and skipping tombstoned
// keys.
func (s *SkipList[T]) First(ceiling uint64) (key, value []byte, trailer T, ok bool) {
	return s.firstIn(ceiling, All())
}

// Last returns the entry, with version <= ceiling, at the largest key. The
// list has no backward links, so Last walks the base level end to end;
// callers on a hot path should prefer bounded iteration instead.
func (s *SkipList[T]) Last(ceiling uint64) (key, value []byte, trailer T, ok bool) {
	return s.lastIn(ceiling, All())
}

// Clear removes every entry and resets the arena, reclaiming all space at
// once. The caller must have exclusive access: Clear is not safe to race
// with any other SkipList operation.
func (s *SkipList[T]) Clear() error {
	s.arena.Clear()
	var zero T
	_, headOffset, err := newNode[T](s.arena, nil, nil, zero, maxHeight, true)
	if err != nil {
		return err
	}
	s.head = headOffset
	s.height.Store(1)
	s.length.Store(0)
	s.discarded.Store(0)
	s.minVersion.Store(0)
	s.maxVersion.Store(0)
	return nil
}
