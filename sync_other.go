//go:build !linux

package volkv

import "os"

func datasync(f *os.File) error {
	return f.Sync()
}
