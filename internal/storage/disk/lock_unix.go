//go:build !windows

package disk

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockExclusive blocks until an exclusive advisory lock on f is held and
// returns the function releasing it.
func lockExclusive(f *os.File) (func() error, error) {
	fd := int(f.Fd())
	for {
		err := unix.Flock(fd, unix.LOCK_EX)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	return func() error {
		return unix.Flock(fd, unix.LOCK_UN)
	}, nil
}
