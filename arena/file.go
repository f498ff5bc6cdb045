package arena

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/latticedb/skl/internal/mmap"
)

// OpenOptions controls how the file backing a persisted arena is opened.
type OpenOptions struct {
	Create        bool
	CreateNew     bool
	Read          bool
	Write         bool
	LockShared    bool
	LockExclusive bool
	ShrinkOnDrop  bool
	Truncate      bool
}

// MmapOptions controls how an opened file is mapped into memory.
type MmapOptions struct {
	// Len is the total mapped length, header included. Required when
	// creating a new file; defaults to the file's current size otherwise.
	Len      int
	Offset   int64
	Populate bool
	Huge     bool
}

// fileAlignment is the block size new arena files are padded to.
const fileAlignment = 4096

// fileHandle owns the *os.File backing a persisted arena and knows how to
// flush and release its mapping.
type fileHandle struct {
	f        *os.File
	mapped   bool
	writable bool
	shrink   bool
}

func (fh *fileHandle) flush(buf []byte, sync bool) error {
	if fh.mapped {
		if sync {
			return mmap.Sync(buf)
		}
		return mmap.SyncAsync(buf)
	}
	if !fh.writable {
		return nil
	}
	write := func() error {
		if _, err := fh.f.WriteAt(buf, 0); err != nil {
			return err
		}
		return fh.f.Sync()
	}
	if sync {
		return write()
	}
	go func() { _ = write() }()
	return nil
}

func (fh *fileHandle) close(buf []byte) error {
	var errs *multierror.Error
	if fh.mapped {
		if err := mmap.Unmap(buf); err != nil {
			errs = multierror.Append(errs, err)
		}
	} else if fh.writable {
		if _, err := fh.f.WriteAt(buf, 0); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if fh.shrink {
		if err := fh.f.Truncate(0); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if err := fh.f.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// Map opens path read-only and maps its body into a new Arena. The handle
// recovers its high-water mark from the persisted header; Allocate on the
// returned arena always fails with ErrReadOnly.
func Map(path string, oopts OpenOptions, mopts MmapOptions) (*Arena, error) {
	return openFile(path, oopts, mopts, false)
}

// MapMut opens path read-write. Existing entries are preserved and new
// entries append starting at the persisted high-water mark.
func MapMut(path string, oopts OpenOptions, mopts MmapOptions) (*Arena, error) {
	return openFile(path, oopts, mopts, true)
}

func openFile(path string, oopts OpenOptions, mopts MmapOptions, writable bool) (a *Arena, err error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	switch {
	case oopts.CreateNew:
		flag |= os.O_CREATE | os.O_EXCL
	case oopts.Create:
		flag |= os.O_CREATE
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("arena: open %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
		}
	}()

	if oopts.LockExclusive || oopts.LockShared {
		if err = flockFile(f, oopts.LockExclusive); err != nil {
			return nil, err
		}
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("arena: stat %s: %w", path, err)
	}

	length := mopts.Len
	fresh := info.Size() == 0
	if fresh {
		if !writable {
			return nil, fmt.Errorf("arena: %s is empty", path)
		}
		if length <= 0 {
			return nil, fmt.Errorf("arena: MmapOptions.Len is required to create %s", path)
		}
		length = alignUp(length, fileAlignment)
		if err = zeroFill(path, length); err != nil {
			return nil, fmt.Errorf("arena: preallocate %s: %w", path, err)
		}
		var hdr [headerSize]byte
		binary.LittleEndian.PutUint64(hdr[:], 1)
		if _, err = f.WriteAt(hdr[:], 0); err != nil {
			return nil, fmt.Errorf("arena: write header %s: %w", path, err)
		}
	} else {
		if length <= 0 {
			length = int(info.Size())
		}
		if writable && oopts.Truncate && int64(length) != info.Size() {
			if err = f.Truncate(int64(length)); err != nil {
				return nil, fmt.Errorf("arena: truncate %s: %w", path, err)
			}
		}
	}

	mflags := mmap.Flags(0)
	if writable {
		mflags |= mmap.Shared
	}
	if mopts.Populate {
		mflags |= mmap.Populate
	}
	if mopts.Huge {
		mflags |= mmap.Huge
	}

	buf, err := mmap.File(f, mopts.Offset, length, writable, mflags)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %s: %w", path, err)
	}
	if len(buf) < headerSize {
		return nil, fmt.Errorf("arena: %s is smaller than the arena header", path)
	}

	hw := binary.LittleEndian.Uint64(buf[:headerSize])
	if hw < 1 {
		hw = 1
	}

	a = &Arena{
		buffer:     buf,
		bodyOffset: headerSize,
		capacity:   uint32(len(buf)) - headerSize,
		readOnly:   !writable,
		file: &fileHandle{
			f:        f,
			mapped:   mmap.Supported,
			writable: writable,
			shrink:   oopts.ShrinkOnDrop,
		},
		refs:   new(atomic.Int32),
		closed: new(sync.Once),
	}
	a.refs.Store(1)
	a.allocated.Store(hw)
	return a, nil
}

func alignUp(n, block int) int {
	if block <= 0 {
		return n
	}
	if rem := n % block; rem != 0 {
		n += block - rem
	}
	return n
}
