package skl_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latticedb/skl/arena"
	"github.com/latticedb/skl/skl"
)

func newList(t *testing.T) *skl.SkipList[skl.SeqTrailer] {
	t.Helper()
	a := arena.New(1 << 20)
	list, err := skl.New[skl.SeqTrailer](a)
	require.NoError(t, err)
	return list
}

func TestInsertAndGet(t *testing.T) {
	list := newList(t)

	require.NoError(t, list.Insert([]byte("apple"), []byte("red"), skl.SeqTrailer{Seq: 1}))
	require.NoError(t, list.Insert([]byte("banana"), []byte("yellow"), skl.SeqTrailer{Seq: 1}))

	v, trailer, ok := list.Get([]byte("apple"), skl.NoCeiling)
	require.True(t, ok)
	require.Equal(t, []byte("red"), v)
	require.Equal(t, uint64(1), trailer.Seq)

	_, _, ok = list.Get([]byte("cherry"), skl.NoCeiling)
	require.False(t, ok)
}

func TestOrdering(t *testing.T) {
	list := newList(t)

	keys := []string{"delta", "alpha", "charlie", "bravo", "echo"}
	for i, k := range keys {
		require.NoError(t, list.Insert([]byte(k), []byte(fmt.Sprintf("v%d", i)), skl.SeqTrailer{Seq: uint64(i)}))
	}

	want := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	var got []string
	it := list.Iter(skl.NoCeiling, skl.All())
	for ok := it.First(); ok; ok = it.Next() {
		got = append(got, string(it.Key()))
	}
	require.Equal(t, want, got)

	k, _, _, ok := list.First(skl.NoCeiling)
	require.True(t, ok)
	require.Equal(t, "alpha", string(k))

	k, _, _, ok = list.Last(skl.NoCeiling)
	require.True(t, ok)
	require.Equal(t, "echo", string(k))
}

func TestMultiVersionGetsNewest(t *testing.T) {
	list := newList(t)

	require.NoError(t, list.Insert([]byte("k"), []byte("v1"), skl.SeqTrailer{Seq: 1}))
	require.NoError(t, list.Insert([]byte("k"), []byte("v2"), skl.SeqTrailer{Seq: 2}))
	require.NoError(t, list.Insert([]byte("k"), []byte("v3"), skl.SeqTrailer{Seq: 3}))

	v, trailer, ok := list.Get([]byte("k"), skl.NoCeiling)
	require.True(t, ok)
	require.Equal(t, []byte("v3"), v)
	require.Equal(t, uint64(3), trailer.Seq)

	require.Equal(t, uint32(3), list.Len())
}

func TestGetVersionSnapshot(t *testing.T) {
	list := newList(t)

	require.NoError(t, list.Insert([]byte("k"), []byte("v1"), skl.SeqTrailer{Seq: 1}))
	require.NoError(t, list.Insert([]byte("k"), []byte("v2"), skl.SeqTrailer{Seq: 2}))
	require.NoError(t, list.Insert([]byte("k"), []byte("v3"), skl.SeqTrailer{Seq: 5}))

	v, trailer, ok := list.Get([]byte("k"), 3)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)
	require.Equal(t, uint64(2), trailer.Seq)

	_, _, ok = list.Get([]byte("k"), 0)
	require.False(t, ok)
}

func TestDeleteIsTombstone(t *testing.T) {
	list := newList(t)

	require.NoError(t, list.Insert([]byte("k"), []byte("v1"), skl.SeqTrailer{Seq: 1}))
	require.NoError(t, list.Delete([]byte("k"), skl.SeqTrailer{Seq: 2}))

	_, _, ok := list.Get([]byte("k"), skl.NoCeiling)
	require.False(t, ok)

	// The older version is still visible under a snapshot taken before the
	// tombstone.
	v, _, ok := list.Get([]byte("k"), 1)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
}

func TestGetOrInsertExactlyOneWinner(t *testing.T) {
	list := newList(t)

	actual1, loaded1, err := list.GetOrInsert([]byte("k"), []byte("first"), skl.SeqTrailer{Seq: 1})
	require.NoError(t, err)
	require.False(t, loaded1)
	require.Equal(t, []byte("first"), actual1)

	actual2, loaded2, err := list.GetOrInsert([]byte("k"), []byte("second"), skl.SeqTrailer{Seq: 1})
	require.NoError(t, err)
	require.True(t, loaded2)
	require.Equal(t, []byte("first"), actual2)
}

func TestInsertOverwritesExactMatch(t *testing.T) {
	list := newList(t)

	require.NoError(t, list.Insert([]byte("k"), []byte("first"), skl.SeqTrailer{Seq: 1}))
	require.NoError(t, list.Insert([]byte("k"), []byte("second"), skl.SeqTrailer{Seq: 1}))

	v, _, ok := list.Get([]byte("k"), skl.NoCeiling)
	require.True(t, ok)
	require.Equal(t, []byte("second"), v)

	// The overwrite republished a node already present in the list; it must
	// not have been counted as a second entry.
	require.Equal(t, uint32(1), list.Len())
	require.Equal(t, uint64(len("first")), list.DiscardedBytes())
}

func TestDirectionalLookups(t *testing.T) {
	list := newList(t)
	for _, k := range []string{"b", "d", "f"} {
		require.NoError(t, list.Insert([]byte(k), []byte(k), skl.SeqTrailer{Seq: 1}))
	}

	k, _, _, ok := list.GE(skl.NoCeiling, []byte("d"))
	require.True(t, ok)
	require.Equal(t, "d", string(k))

	k, _, _, ok = list.GT(skl.NoCeiling, []byte("d"))
	require.True(t, ok)
	require.Equal(t, "f", string(k))

	k, _, _, ok = list.LE(skl.NoCeiling, []byte("d"))
	require.True(t, ok)
	require.Equal(t, "d", string(k))

	k, _, _, ok = list.LT(skl.NoCeiling, []byte("d"))
	require.True(t, ok)
	require.Equal(t, "b", string(k))

	_, _, _, ok = list.LT(skl.NoCeiling, []byte("a"))
	require.False(t, ok)

	_, _, _, ok = list.GT(skl.NoCeiling, []byte("f"))
	require.False(t, ok)
}

func TestCompareRemove(t *testing.T) {
	list := newList(t)
	require.NoError(t, list.Insert([]byte("k"), []byte("v1"), skl.SeqTrailer{Seq: 1}))

	// A version that doesn't exactly match the live entry allocates its own
	// tombstone rather than touching the existing one.
	outcome, value, err := list.CompareRemove([]byte("k"), skl.SeqTrailer{Seq: 2})
	require.NoError(t, err)
	require.Equal(t, skl.RemoveNotFound, outcome)
	require.Nil(t, value)

	// The new tombstone shadows newer snapshots, but the version-1 entry
	// itself is untouched.
	v, _, ok := list.Get([]byte("k"), 1)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	outcome, value, err = list.CompareRemove([]byte("k"), skl.SeqTrailer{Seq: 1})
	require.NoError(t, err)
	require.Equal(t, skl.RemoveOK, outcome)
	require.Equal(t, []byte("v1"), value)

	_, _, ok = list.Get([]byte("k"), skl.NoCeiling)
	require.False(t, ok)

	// Removing an already-tombstoned entry reports nothing to remove.
	outcome, value, err = list.CompareRemove([]byte("k"), skl.SeqTrailer{Seq: 1})
	require.NoError(t, err)
	require.Equal(t, skl.RemoveNotFound, outcome)
	require.Nil(t, value)
}

func TestMaxKeyAndValueSize(t *testing.T) {
	a := arena.New(1 << 16)
	list, err := skl.New[skl.SeqTrailer](a, skl.WithMaxKeySize(4), skl.WithMaxValueSize(4))
	require.NoError(t, err)

	err = list.Insert([]byte("toolongkey"), []byte("v"), skl.SeqTrailer{Seq: 1})
	var keyErr *skl.KeyTooLargeError
	require.ErrorAs(t, err, &keyErr)

	err = list.Insert([]byte("k"), []byte("toolongvalue"), skl.SeqTrailer{Seq: 1})
	var valErr *skl.ValueTooLargeError
	require.ErrorAs(t, err, &valErr)
}

func TestInsertWithValueBuilder(t *testing.T) {
	list := newList(t)

	err := list.InsertWithValue([]byte("k"), 5, skl.SeqTrailer{Seq: 1}, func(buf *skl.Buffer) error {
		_, err := buf.Write([]byte("abc"))
		return err
	})
	require.NoError(t, err)

	v, _, ok := list.Get([]byte("k"), skl.NoCeiling)
	require.True(t, ok)
	require.Equal(t, []byte("abc"), v)
}

func TestInsertWithKeyAndValueBuilders(t *testing.T) {
	list := newList(t)

	err := list.InsertWith(5, func(buf *skl.Buffer) error {
		_, err := buf.Write([]byte("alice"))
		return err
	}, 5, skl.SeqTrailer{Seq: 1}, func(buf *skl.Buffer) error {
		_, err := buf.Write([]byte("bob12"))
		return err
	})
	require.NoError(t, err)

	v, _, ok := list.Get([]byte("alice"), skl.NoCeiling)
	require.True(t, ok)
	require.Equal(t, []byte("bob12"), v)

	actual, loaded, err := list.GetOrInsertWith(5, func(buf *skl.Buffer) error {
		_, err := buf.Write([]byte("alice"))
		return err
	}, 5, skl.SeqTrailer{Seq: 1}, func(buf *skl.Buffer) error {
		_, err := buf.Write([]byte("carol"))
		return err
	})
	require.NoError(t, err)
	require.True(t, loaded)
	require.Equal(t, []byte("bob12"), actual)
}

func TestDescendingComparator(t *testing.T) {
	a := arena.New(1 << 16)
	list, err := skl.New[skl.SeqTrailer](a, skl.WithComparator(skl.Descending))
	require.NoError(t, err)

	for i, k := range []string{"a", "b", "c"} {
		require.NoError(t, list.Insert([]byte(k), nil, skl.SeqTrailer{Seq: uint64(i)}))
	}

	var got []string
	it := list.Iter(skl.NoCeiling, skl.All())
	for ok := it.First(); ok; ok = it.Next() {
		got = append(got, string(it.Key()))
	}
	require.Equal(t, []string{"c", "b", "a"}, got)
}

func TestArenaFullPropagates(t *testing.T) {
	a := arena.New(256)
	list, err := skl.New[skl.SeqTrailer](a)
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 10000; i++ {
		lastErr = list.Insert([]byte(fmt.Sprintf("key-%d", i)), []byte("some reasonably sized value"), skl.SeqTrailer{Seq: uint64(i)})
		if lastErr != nil {
			break
		}
	}
	require.Error(t, lastErr)
}
