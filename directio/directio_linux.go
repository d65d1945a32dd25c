//go:build linux

package directio

import (
	"os"

	"golang.org/x/sys/unix"
)

const directFlag = unix.O_DIRECT

func setNoCache(*os.File) error { return nil }

func datasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
