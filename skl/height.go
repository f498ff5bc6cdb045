package skl

import (
	"math"

	"github.com/latticedb/skl/skl/fastrand"
)

const (
	// maxHeight is the tallest tower a node can have. Only h of maxHeight
	// slots are ever physically allocated for a given node; see node.go.
	maxHeight = 20

	// pValue is the probability a node promotes to the next level, matching
	// the height-increase fraction used by the arena layout this package is
	// wire-compatible with (a height sampled with a different fraction still
	// produces a valid tower, but skews the level distribution away from
	// what a reader tuned for 1/3 expects).
	pValue = 1.0 / 3.0
)

// probabilities[i] is the uint32 threshold a sampled value must fall at or
// below to promote a node to height i+1. Precomputing the table means
// sampling a height costs exactly one random draw, not one per level.
var probabilities [maxHeight]uint32

func init() {
	p := float64(1.0)
	for i := 0; i < maxHeight; i++ {
		probabilities[i] = uint32(float64(math.MaxUint32) * p)
		p *= pValue
	}
}

// randomHeight draws a tower height in [1, maxHeight] from rnd, a
// caller-owned generator so that concurrent inserts never contend on a
// shared random source.
func randomHeight(rnd *fastrand.Source) uint32 {
	r := rnd.Uint32()
	h := uint32(1)
	for h < maxHeight && r <= probabilities[h] {
		h++
	}
	return h
}
