package skl

import (
	"errors"
	"fmt"

	"github.com/latticedb/skl/arena"
)

// ErrArenaFull matches, under errors.Is, the error returned when the
// skiplist's backing arena has no room left for a new node, key, or value.
var ErrArenaFull error = arena.ErrArenaFull

// ErrKeyExists names the case of an entry already existing at a key and
// version. Insert overwrites such an entry and GetOrInsert returns it, so
// no function in this package returns ErrKeyExists.
var ErrKeyExists = errors.New("skl: key already exists")

// KeyTooLargeError is returned when a key exceeds the skiplist's configured
// maximum key size.
type KeyTooLargeError struct {
	Size, Max uint32
}

func (e *KeyTooLargeError) Error() string {
	return fmt.Sprintf("skl: key size %d exceeds maximum %d", e.Size, e.Max)
}

// ValueTooLargeError is returned when a value exceeds the skiplist's
// configured maximum value size.
type ValueTooLargeError struct {
	Size, Max uint32
}

func (e *ValueTooLargeError) Error() string {
	return fmt.Sprintf("skl: value size %d exceeds maximum %d", e.Size, e.Max)
}
