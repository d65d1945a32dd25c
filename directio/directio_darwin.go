//go:build darwin

package directio

import (
	"os"

	"golang.org/x/sys/unix"
)

const directFlag = 0

// setNoCache is the Darwin equivalent of O_DIRECT.
func setNoCache(f *os.File) error {
	_, err := unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1)
	return err
}

func datasync(f *os.File) error {
	return f.Sync()
}
