//go:build linux

package arena

import (
	"os"

	"github.com/ncw/directio"
)

// zeroFill pre-allocates and zero-fills a freshly created arena file using
// block-aligned direct I/O: the pages being written are about to be
// overwritten by node allocations anyway, so there's no benefit to routing
// them through the page cache.
func zeroFill(path string, length int) error {
	f, err := directio.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	block := directio.AlignedBlock(directio.BlockSize)
	for written := 0; written < length; written += len(block) {
		if _, err := f.Write(block); err != nil {
			return err
		}
	}
	return nil
}
