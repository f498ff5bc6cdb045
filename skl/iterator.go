package skl

// Iterator walks a SkipList's entries in ascending key order (as defined
// by the list's Comparator). An Iterator has no backward link: the list's
// towers only ever point forward, so reverse iteration is served by
// building the list with a Descending Comparator rather than by walking
// this Iterator backward.
//
// An Iterator is not safe for concurrent use, though many Iterators may
// walk the same SkipList concurrently with each other and with writers: a
// write changes a node already linked into the list only through atomic
// updates of its value pointer and tower links, so a mid-iteration insert
// or overwrite is simply either seen or not, never torn.
type Iterator[T Trailer] struct {
	list        *SkipList[T]
	nd          *node[T]
	rng         Range
	ceiling     uint64
	allVersions bool
}

// Iter returns an Iterator over the newest version, with version <=
// ceiling, of every key in rng. Pass NoCeiling for ordinary newest-wins
// iteration. Keys whose newest qualifying entry is a tombstone are
// skipped entirely.
func (s *SkipList[T]) Iter(ceiling uint64, rng Range) *Iterator[T] {
	return &Iterator[T]{list: s, rng: rng, ceiling: ceiling}
}

// IterAllVersions returns an Iterator that visits every version, with
// version <= ceiling, of every key in rng, newest first within a key
// (matching the list's own order), tombstones included.
func (s *SkipList[T]) IterAllVersions(ceiling uint64, rng Range) *Iterator[T] {
	return &Iterator[T]{list: s, rng: rng, ceiling: ceiling, allVersions: true}
}

// First positions the iterator at the first qualifying entry in range and
// reports whether one was found.
func (it *Iterator[T]) First() bool {
	it.nd = it.seekStart()
	return it.settleForward()
}

// SeekGE positions the iterator at the first qualifying entry whose key is
// >= key (and within range) and reports whether one was found.
func (it *Iterator[T]) SeekGE(key []byte) bool {
	nd := it.list.findGreaterOrEqual(key)
	if it.rng.Lower.Kind != Unbounded {
		if c := it.list.cmp.Compare(key, it.rng.Lower.Key); c < 0 || (c == 0 && it.rng.Lower.Kind == Excluded) {
			nd = it.seekStart()
		}
	}
	it.nd = nd
	return it.settleForward()
}

// Next advances the iterator and reports whether another qualifying entry
// was found.
func (it *Iterator[T]) Next() bool {
	if it.nd == nil {
		return false
	}
	if it.allVersions {
		it.nd = it.list.nodeAt(it.nd.nextOffset(0))
	} else {
		it.nd = it.advancePastKey(it.nd.key(it.list.arena))
	}
	return it.settleForward()
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator[T]) Valid() bool { return it.nd != nil }

// Key returns the current entry's key. Valid must be true.
func (it *Iterator[T]) Key() []byte { return it.nd.key(it.list.arena) }

// Value returns the current entry's value, and whether it is a tombstone.
// Valid must be true.
func (it *Iterator[T]) Value() (value []byte, tombstone bool) { return it.nd.value(it.list.arena) }

// Trailer returns the current entry's trailer. Valid must be true.
func (it *Iterator[T]) Trailer() T { return it.nd.trailer }

// Close releases the iterator. It never fails: an Iterator holds no
// resource beyond the SkipList it walks.
func (it *Iterator[T]) Close() error {
	it.nd = nil
	return nil
}

func (it *Iterator[T]) seekStart() *node[T] {
	if it.rng.Lower.Kind == Unbounded {
		return it.list.nodeAt(it.list.headNode().nextOffset(0))
	}
	nd := it.list.findGreaterOrEqual(it.rng.Lower.Key)
	if it.rng.Lower.Kind == Excluded {
		for nd != nil && it.list.cmp.Compare(nd.key(it.list.arena), it.rng.Lower.Key) == 0 {
			nd = it.list.nodeAt(nd.nextOffset(0))
		}
	}
	return nd
}

func (it *Iterator[T]) advancePastKey(key []byte) *node[T] {
	nd := it.list.nodeAt(it.nd.nextOffset(0))
	for nd != nil && it.list.cmp.Compare(nd.key(it.list.arena), key) == 0 {
		nd = it.list.nodeAt(nd.nextOffset(0))
	}
	return nd
}

// settleForward enforces the range's upper bound, skips any entry whose
// version exceeds the snapshot ceiling (since the list orders entries
// (key ASC, version DESC), stepping past one at a time lands on the first
// qualifying version of whatever key is reached, with no need to know in
// advance how many versions to skip), and, outside IterAllVersions, skips
// any key whose newest qualifying entry is a tombstone.
func (it *Iterator[T]) settleForward() bool {
	for it.nd != nil {
		key := it.nd.key(it.list.arena)
		if it.rng.Upper.Kind != Unbounded {
			c := it.list.cmp.Compare(key, it.rng.Upper.Key)
			if c > 0 || (c == 0 && it.rng.Upper.Kind == Excluded) {
				it.nd = nil
				return false
			}
		}
		if it.nd.trailer.Version() > it.ceiling {
			it.nd = it.list.nodeAt(it.nd.nextOffset(0))
			continue
		}
		if !it.allVersions {
			if _, tombstone := it.nd.value(it.list.arena); tombstone {
				it.nd = it.advancePastKey(key)
				continue
			}
		}
		return true
	}
	return false
}
