//go:build linux

package volkv

import (
	"os"

	"golang.org/x/sys/unix"
)

// datasync flushes file data without forcing a metadata write.
func datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
