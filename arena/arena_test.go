package arena_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/skl/arena"
)

func TestAllocateAlignment(t *testing.T) {
	a := arena.New(1024)

	off1, err := a.Allocate(3, 1, 0)
	require.NoError(t, err)

	off2, err := a.Allocate(5, 8, 0)
	require.NoError(t, err)
	require.Zero(t, off2%8, "offset %d is not 8-byte aligned", off2)
	require.Greater(t, off2, off1)

	copy(a.BytesMut(off1, 3), []byte("abc"))
	copy(a.BytesMut(off2, 5), []byte("hello"))
	require.Equal(t, []byte("abc"), a.Bytes(off1, 3))
	require.Equal(t, []byte("hello"), a.Bytes(off2, 5))
}

func TestAllocateNilOffsetEmpty(t *testing.T) {
	a := arena.New(64)
	require.Nil(t, a.Bytes(0, 0))
	require.Nil(t, a.Bytes(0, 10))
}

func TestArenaFull(t *testing.T) {
	a := arena.New(64)

	var lastGood uint32
	var failed bool
	for i := 0; i < 1000; i++ {
		off, err := a.Allocate(16, 1, 0)
		if err != nil {
			require.True(t, errors.Is(err, arena.ErrArenaFull))
			failed = true
			break
		}
		lastGood = off
	}
	require.True(t, failed, "expected allocation to eventually fail")

	// Prior allocations remain valid and readable.
	require.NotPanics(t, func() { _ = a.Bytes(lastGood, 16) })

	// The arena stays full; it does not spuriously recover.
	_, err := a.Allocate(16, 1, 0)
	require.Error(t, err)
}

func TestOverflowReserve(t *testing.T) {
	a := arena.New(32, arena.WithReserve(16))
	// Capacity excludes the reserve; Allocate must still respect it as the
	// bound an allocation's overflow argument is checked against.
	_, err := a.Allocate(20, 1, 16)
	require.Error(t, err)
}

func TestClearResetsAllocation(t *testing.T) {
	a := arena.New(128)

	off, err := a.Allocate(8, 1, 0)
	require.NoError(t, err)
	require.NotZero(t, off)
	require.NotZero(t, a.Len())

	a.Clear()
	require.Zero(t, a.Len())

	off2, err := a.Allocate(8, 1, 0)
	require.NoError(t, err)
	require.Equal(t, off, off2, "clear should let allocation restart from the same offset")
}

func TestClonesShareBackingAndRefcount(t *testing.T) {
	a := arena.New(64)
	off, err := a.Allocate(4, 1, 0)
	require.NoError(t, err)
	copy(a.BytesMut(off, 4), []byte("ping"))

	clone := a.Clone()
	require.Equal(t, []byte("ping"), clone.Bytes(off, 4))

	require.NoError(t, clone.Close())
	// The original handle still owns a reference; its bytes remain valid.
	require.Equal(t, []byte("ping"), a.Bytes(off, 4))
	require.NoError(t, a.Close())
}

func TestFileBackedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena.db")

	w, err := arena.MapMut(path, arena.OpenOptions{Create: true}, arena.MmapOptions{Len: 64 * 1024})
	require.NoError(t, err)

	offsets := make([]uint32, 0, 100)
	for i := 0; i < 100; i++ {
		off, err := w.Allocate(16, 1, 0)
		require.NoError(t, err)
		copy(w.BytesMut(off, 16), []byte("persisted-value!"))
		offsets = append(offsets, off)
	}
	lenBefore := w.Len()

	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := arena.Map(path, arena.OpenOptions{}, arena.MmapOptions{})
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, lenBefore, r.Len())
	for _, off := range offsets {
		require.Equal(t, []byte("persisted-value!"), r.Bytes(off, 16))
	}

	_, err = r.Allocate(1, 1, 0)
	require.ErrorIs(t, err, arena.ErrReadOnly)
}

func TestMapRequiresExistingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := arena.Map(filepath.Join(dir, "missing.db"), arena.OpenOptions{}, arena.MmapOptions{})
	require.Error(t, err)
}

func TestMapMutCreatesDirectoryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fresh.db")

	a, err := arena.MapMut(path, arena.OpenOptions{CreateNew: true}, arena.MmapOptions{Len: 4096})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, info.Size(), int64(4096))
}
