package disk

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

// RemoveLastBytes shortens the data file of info by n bytes under the
// exclusive lock and persists the resulting size as the offset. n must be in
// [0, stored size].
func (s *Service) RemoveLastBytes(ctx context.Context, info *upload.Info, n int64) error {
	if info == nil {
		return nil
	}

	path, err := s.layout.dataPath(info.ID)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return notFoundIfMissing(err, info.ID)
	}
	defer f.Close()

	unlock, err := lockExclusive(f)
	if err != nil {
		return fmt.Errorf("lock data file of %s: %w", info.ID, err)
	}
	defer unlock()

	st, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat data file of %s: %w", info.ID, err)
	}
	if n < 0 || n > st.Size() {
		return fmt.Errorf("remove %d of %d bytes from %s: %w", n, st.Size(), info.ID, common.ErrorInvalidOffset)
	}

	if err := f.Truncate(st.Size() - n); err != nil {
		return fmt.Errorf("truncate data file of %s: %w", info.ID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync data file of %s: %w", info.ID, err)
	}
	if st, err = f.Stat(); err != nil {
		return fmt.Errorf("stat data file of %s: %w", info.ID, err)
	}

	info.Offset = st.Size()
	if err := s.save(info); err != nil {
		return err
	}

	s.log.Info(ctx, "upload truncated", "id", info.ID, "removed", n, "offset", info.Offset)
	return nil
}

// Terminate removes the upload directory with everything in it. A missing
// directory is not an error.
func (s *Service) Terminate(ctx context.Context, info *upload.Info) error {
	if info == nil {
		return nil
	}

	dir, err := s.layout.uploadDir(info.ID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove upload %s: %w", info.ID, err)
	}

	s.log.Info(ctx, "upload terminated", "id", info.ID)
	return nil
}
