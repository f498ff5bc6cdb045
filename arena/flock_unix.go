//go:build unix

package arena

import (
	"fmt"
	"os"
	"syscall"
)

func flockFile(f *os.File, exclusive bool) error {
	how := syscall.LOCK_SH
	if exclusive {
		how = syscall.LOCK_EX
	}
	if err := syscall.Flock(int(f.Fd()), how|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("arena: lock %s: %w", f.Name(), err)
	}
	return nil
}
