package arena

import (
	"errors"
	"fmt"
)

// ErrReadOnly is returned by Allocate when the arena was opened with Map
// (read-only) rather than MapMut.
var ErrReadOnly = errors.New("arena: read-only")

// FullError is returned when an allocation would exceed the arena's
// declared capacity. Prior state is left unchanged; the arena remains
// usable for any allocation that still fits.
type FullError struct {
	Requested uint32
	Remaining uint32
}

func (e *FullError) Error() string {
	return fmt.Sprintf("arena: full (requested %d bytes, %d remaining)", e.Requested, e.Remaining)
}

// Is allows errors.Is(err, ErrArenaFull) to match any *FullError, regardless
// of its Requested/Remaining fields.
func (e *FullError) Is(target error) bool {
	_, ok := target.(*FullError)
	return ok
}

// ErrArenaFull is the sentinel used with errors.Is to detect arena
// exhaustion without caring about the specific Requested/Remaining values.
var ErrArenaFull = &FullError{}
