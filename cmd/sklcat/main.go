// Command sklcat is a small diagnostic CLI over a file-backed skl.SkipList.
// It exists to exercise the library end to end — open, load, iterate, flush
// — the way a developer would poke at a new on-disk format from a
// terminal, not as a production load-testing tool.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/latticedb/skl/arena"
	"github.com/latticedb/skl/skl"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	var err error
	switch os.Args[1] {
	case "load":
		err = runLoad(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	case "iter":
		err = runIter(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sklcat <load|get|iter> -db PATH [flags]")
	os.Exit(2)
}

func openList(path string, sizeMB int) (*arena.Arena, *skl.SkipList[skl.SeqTrailer], error) {
	a, err := arena.MapMut(path, arena.OpenOptions{Create: true}, arena.MmapOptions{
		Len: sizeMB * 1024 * 1024,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open arena: %w", err)
	}
	list, err := skl.New[skl.SeqTrailer](a)
	if err != nil {
		_ = a.Close()
		return nil, nil, fmt.Errorf("open skiplist: %w", err)
	}
	return a, list, nil
}

// runLoad reads "key value" pairs from stdin (or -input) and inserts them
// concurrently across -workers goroutines, using errgroup so the first
// failed insert cancels the rest of the batch instead of limping along.
func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to the arena file")
	input := fs.String("input", "", "input file of \"key value\" lines (default stdin)")
	sizeMB := fs.Int("size-mb", 64, "arena size in MiB, when creating a new file")
	workers := fs.Int("workers", 4, "number of concurrent inserting goroutines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("load: -db is required")
	}

	a, list, err := openList(*dbPath, *sizeMB)
	if err != nil {
		return err
	}
	defer a.Close()

	in := os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	lines := make(chan [2]string, 256)
	g, ctx := errgroup.WithContext(context.Background())

	for i := 0; i < *workers; i++ {
		g.Go(func() error {
			var seq uint64
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case kv, ok := <-lines:
					if !ok {
						return nil
					}
					seq++
					trailer := skl.SeqTrailer{Seq: seq}
					if err := list.Insert([]byte(kv[0]), []byte(kv[1]), trailer); err != nil {
						return fmt.Errorf("insert %q: %w", kv[0], err)
					}
				}
			}
		})
	}

	scanner := bufio.NewScanner(in)
	count := 0
scan:
	for scanner.Scan() {
		var key, value string
		if _, err := fmt.Sscanf(scanner.Text(), "%s %s", &key, &value); err != nil {
			continue
		}
		select {
		case lines <- [2]string{key, value}:
			count++
		case <-ctx.Done():
			break scan
		}
	}
	close(lines)

	if err := g.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := a.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	fmt.Printf("loaded %d entries (%d bytes)\n", count, list.Arena().Len())
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to the arena file")
	version := fs.Uint64("version", 0, "snapshot ceiling; 0 means the newest version of the key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" || fs.NArg() != 1 {
		return fmt.Errorf("get: usage: sklcat get -db PATH KEY")
	}

	a, err := arena.Map(*dbPath, arena.OpenOptions{}, arena.MmapOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := skl.New[skl.SeqTrailer](a)
	if err != nil {
		return err
	}

	ceiling := skl.NoCeiling
	if *version != 0 {
		ceiling = *version
	}
	value, trailer, ok := list.Get([]byte(fs.Arg(0)), ceiling)
	if !ok {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Printf("%s\t(seq %d)\n", value, trailer.Seq)
	return nil
}

func runIter(args []string) error {
	fs := flag.NewFlagSet("iter", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to the arena file")
	allVersions := fs.Bool("all-versions", false, "visit every version of every key")
	version := fs.Uint64("version", 0, "snapshot ceiling; 0 means every version written so far")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("iter: -db is required")
	}

	a, err := arena.Map(*dbPath, arena.OpenOptions{}, arena.MmapOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := skl.New[skl.SeqTrailer](a)
	if err != nil {
		return err
	}

	ceiling := skl.NoCeiling
	if *version != 0 {
		ceiling = *version
	}
	var it *skl.Iterator[skl.SeqTrailer]
	if *allVersions {
		it = list.IterAllVersions(ceiling, skl.All())
	} else {
		it = list.Iter(ceiling, skl.All())
	}
	defer it.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for ok := it.First(); ok; ok = it.Next() {
		value, tombstone := it.Value()
		if tombstone {
			fmt.Fprintf(w, "%s\t<deleted>\t(seq %d)\n", it.Key(), it.Trailer().Seq)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t(seq %d)\n", it.Key(), value, it.Trailer().Seq)
	}
	return nil
}
