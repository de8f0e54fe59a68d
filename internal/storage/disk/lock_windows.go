//go:build windows

package disk

import (
	"math"
	"os"

	"golang.org/x/sys/windows"
)

func lockExclusive(f *os.File) (func() error, error) {
	h := windows.Handle(f.Fd())
	ol := new(windows.Overlapped)
	if err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, math.MaxUint32, math.MaxUint32, ol); err != nil {
		return nil, err
	}
	return func() error {
		return windows.UnlockFileEx(h, 0, math.MaxUint32, math.MaxUint32, ol)
	}, nil
}
