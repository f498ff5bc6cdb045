package skl_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/latticedb/skl/arena"
	"github.com/latticedb/skl/skl"
)

func TestConcurrentInsertsAreAllVisible(t *testing.T) {
	a := arena.New(8 << 20)
	list, err := skl.New[skl.SeqTrailer](a)
	require.NoError(t, err)

	const goroutines = 4
	const perGoroutine = 250

	var g errgroup.Group
	for w := 0; w < goroutines; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perGoroutine; i++ {
				key := []byte(fmt.Sprintf("w%d-k%d", w, i))
				if err := list.Insert(key, []byte("v"), skl.SeqTrailer{Seq: 1}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, uint32(goroutines*perGoroutine), list.Len())

	for w := 0; w < goroutines; w++ {
		for i := 0; i < perGoroutine; i++ {
			key := []byte(fmt.Sprintf("w%d-k%d", w, i))
			_, _, ok := list.Get(key, skl.NoCeiling)
			require.True(t, ok, "missing key %s", key)
		}
	}
}

// TestGetOrInsertAtMostOneWinner races many goroutines on the same key and
// version and checks that every one of them reports the same "actual"
// value, which must be whichever single attempt actually won the race.
func TestGetOrInsertAtMostOneWinner(t *testing.T) {
	a := arena.New(1 << 20)
	list, err := skl.New[skl.SeqTrailer](a)
	require.NoError(t, err)

	const racers = 64
	results := make([][]byte, racers)
	winners := make([]bool, racers)

	var g errgroup.Group
	for i := 0; i < racers; i++ {
		i := i
		g.Go(func() error {
			v := []byte(fmt.Sprintf("candidate-%d", i))
			actual, loaded, err := list.GetOrInsert([]byte("contested"), v, skl.SeqTrailer{Seq: 1})
			if err != nil {
				return err
			}
			results[i] = actual
			winners[i] = !loaded
			return nil
		})
	}
	require.NoError(t, g.Wait())

	winnerCount := 0
	var winningValue []byte
	for i, won := range winners {
		if won {
			winnerCount++
			winningValue = results[i]
		}
	}
	require.Equal(t, 1, winnerCount, "exactly one goroutine should have inserted")

	for i := range results {
		require.Equal(t, winningValue, results[i], "every racer must observe the winning value")
	}

	require.Equal(t, uint32(1), list.Len())
}

func TestConcurrentReadersDuringWrites(t *testing.T) {
	a := arena.New(4 << 20)
	list, err := skl.New[skl.SeqTrailer](a)
	require.NoError(t, err)

	const keys = 200
	for i := 0; i < keys/2; i++ {
		require.NoError(t, list.Insert([]byte(fmt.Sprintf("k%d", i)), []byte("v"), skl.SeqTrailer{Seq: 1}))
	}

	var g errgroup.Group
	g.Go(func() error {
		for i := keys / 2; i < keys; i++ {
			if err := list.Insert([]byte(fmt.Sprintf("k%d", i)), []byte("v"), skl.SeqTrailer{Seq: 1}); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		for i := 0; i < 1000; i++ {
			it := list.Iter(skl.NoCeiling, skl.All())
			prev := []byte(nil)
			for ok := it.First(); ok; ok = it.Next() {
				if prev != nil && string(prev) > string(it.Key()) {
					return fmt.Errorf("iteration order violated: %q before %q", prev, it.Key())
				}
				prev = append([]byte(nil), it.Key()...)
			}
		}
		return nil
	})

	require.NoError(t, g.Wait())
}
