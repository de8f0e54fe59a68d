// Package filex contains filesystem helpers shared by the disk storage engine.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir with all parents and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}

	return abs, nil
}

// WriteFileAtomic replaces path with data: the bytes go to a uniquely named
// sibling temp file which is synced and renamed over path, so concurrent
// writers never share a temp file and readers see one complete version. The
// parent directory must exist; if it does not, the returned error matches
// fs.ErrNotExist.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create tmp for %s: %w", path, err)
	}
	tmp := f.Name()

	werr := f.Chmod(perm)
	if werr == nil {
		_, werr = f.Write(data)
	}
	if werr == nil {
		werr = f.Sync()
	}
	cerr := f.Close()

	if werr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write tmp %s: %w", tmp, werr)
	}
	if cerr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close tmp %s: %w", tmp, cerr)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}

	return nil
}
