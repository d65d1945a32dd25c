//go:build linux

package lsmkv

import (
	"time"

	"golang.org/x/sys/unix"
)

// creationTime is the inode change time. Runs are never modified after the
// rename that publishes them, so it marks when the run appeared.
func creationTime(path string) (time.Time, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return time.Time{}, err
	}
	return time.Unix(st.Ctim.Unix()), nil
}
