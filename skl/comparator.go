package skl

import "bytes"

// Comparator defines a total order over keys. SkipList never interprets key
// bytes itself; every ordering decision, from node splicing to range bound
// containment, goes through the Comparator supplied at construction.
type Comparator interface {
	// Compare returns a negative number, zero, or a positive number as a
	// sorts before, equal to, or after b.
	Compare(a, b []byte) int
}

// ComparatorFunc adapts a plain function to the Comparator interface.
type ComparatorFunc func(a, b []byte) int

// Compare calls f.
func (f ComparatorFunc) Compare(a, b []byte) int { return f(a, b) }

// Ascending orders keys using bytes.Compare, the conventional order for a
// sorted map.
var Ascending Comparator = ComparatorFunc(bytes.Compare)

// Descending orders keys in the reverse of bytes.Compare. A SkipList built
// with Descending still inserts and searches left-to-right internally; only
// the externally observed order changes.
var Descending Comparator = ComparatorFunc(func(a, b []byte) int {
	return bytes.Compare(b, a)
})

// BoundKind classifies one end of a Range.
type BoundKind uint8

const (
	// Unbounded means the range extends to the start or end of the map.
	Unbounded BoundKind = iota
	// Included means the bound's key is part of the range.
	Included
	// Excluded means the bound's key is not part of the range.
	Excluded
)

// Bound is one endpoint of a Range.
type Bound struct {
	Kind BoundKind
	Key  []byte
}

// Unbound returns an unbounded endpoint.
func Unbound() Bound { return Bound{Kind: Unbounded} }

// Inclusive returns an endpoint that includes key.
func Inclusive(key []byte) Bound { return Bound{Kind: Included, Key: key} }

// Exclusive returns an endpoint that excludes key.
func Exclusive(key []byte) Bound { return Bound{Kind: Excluded, Key: key} }

// LowerBound returns an inclusive lower Range endpoint at key, matching the
// conventional pairing with UpperBound where the lower end is inclusive and
// the upper end is exclusive.
func LowerBound(key []byte) Bound { return Inclusive(key) }

// UpperBound returns an exclusive upper Range endpoint at key.
func UpperBound(key []byte) Bound { return Exclusive(key) }

// Range describes a contiguous span of keys, in the comparator's order
// between Lower and Upper.
type Range struct {
	Lower Bound
	Upper Bound
}

// All is the range containing every key.
func All() Range { return Range{Lower: Unbound(), Upper: Unbound()} }

// Contains reports whether key falls within r under cmp.
func (r Range) Contains(cmp Comparator, key []byte) bool {
	if r.Lower.Kind != Unbounded {
		c := cmp.Compare(key, r.Lower.Key)
		if c < 0 || (c == 0 && r.Lower.Kind == Excluded) {
			return false
		}
	}
	if r.Upper.Kind != Unbounded {
		c := cmp.Compare(key, r.Upper.Key)
		if c > 0 || (c == 0 && r.Upper.Kind == Excluded) {
			return false
		}
	}
	return true
}
