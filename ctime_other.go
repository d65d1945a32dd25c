//go:build !linux && !darwin

package lsmkv

import (
	"os"
	"time"
)

func creationTime(path string) (time.Time, error) {
	st, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return st.ModTime(), nil
}
