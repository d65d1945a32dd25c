//go:build !linux && !darwin

package directio

import (
	"errors"
	"os"
)

const directFlag = 0

func setNoCache(*os.File) error { return errors.ErrUnsupported }

func datasync(f *os.File) error {
	return f.Sync()
}
