package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/dmitrijs2005/tusstore/internal/common"
	"github.com/dmitrijs2005/tusstore/internal/upload"
)

// Append writes src to the end of the data file of info and persists the new
// offset. info.Offset must equal the stored size, otherwise nothing is written
// and ErrorInvalidOffset is returned. At most MaxUploadSize bytes are kept in
// total; the rest of src is left unread.
//
// If anything fails once the data file is locked, the file is synced and
// info.Offset is reset to the actual file size and persisted before the
// original error is returned together with info. A nil info is a no-op.
//
// If the bytes were written but the new offset could not be persisted, the
// returned info carries the new offset while the stored record still holds
// the old one. The mismatch is logged; the next append or truncate repairs
// the record.
func (s *Service) Append(ctx context.Context, info *upload.Info, src io.Reader) (*upload.Info, error) {
	if info == nil {
		return nil, nil
	}

	path, err := s.layout.dataPath(info.ID)
	if err != nil {
		return info, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return info, notFoundIfMissing(err, info.ID)
	}
	defer f.Close()

	unlock, err := lockExclusive(f)
	if err != nil {
		return info, fmt.Errorf("lock data file of %s: %w", info.ID, err)
	}
	defer unlock()

	written, err := s.transfer(ctx, f, info.Offset, src)
	if err != nil {
		return s.recoverOffset(ctx, f, info, err)
	}

	info.Offset += written
	if err := s.save(info); err != nil {
		s.log.Warn(ctx, "appended bytes not reflected in stored record",
			"id", info.ID, "written", written, "offset", info.Offset, "error", err)
		return info, err
	}

	s.log.Debug(ctx, "bytes appended", "id", info.ID, "written", written, "offset", info.Offset)
	return info, nil
}

// transfer validates offset against the file size and copies at most the
// remaining budget from src into f at offset.
func (s *Service) transfer(ctx context.Context, f *os.File, offset int64, src io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat data file: %w", err)
	}
	if st.Size() != offset {
		return 0, fmt.Errorf("offset %d, stored %d: %w", offset, st.Size(), common.ErrorInvalidOffset)
	}

	budget := s.budget(offset)
	if budget <= 0 {
		return 0, nil
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek data file: %w", err)
	}

	n, err := io.CopyN(f, &ctxReader{ctx: ctx, r: src}, budget)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// budget is how many more bytes an upload at offset may receive.
func (s *Service) budget(offset int64) int64 {
	limit := s.MaxUploadSize()
	if limit <= 0 {
		limit = math.MaxInt64
	}
	return limit - offset
}

// recoverOffset syncs f, adopts its real size as the offset and persists it.
// cause is always part of the returned error; once the offset is persisted it
// comes wrapped in an upload.RecoveredError.
func (s *Service) recoverOffset(ctx context.Context, f *os.File, info *upload.Info, cause error) (*upload.Info, error) {
	if err := f.Sync(); err != nil {
		return info, errors.Join(cause, fmt.Errorf("sync data file of %s: %w", info.ID, err))
	}
	st, err := f.Stat()
	if err != nil {
		return info, errors.Join(cause, fmt.Errorf("stat data file of %s: %w", info.ID, err))
	}

	if st.Size() != info.Offset {
		s.log.Warn(ctx, "upload offset corrected after failed append",
			"id", info.ID, "claimed", info.Offset, "stored", st.Size(), "error", cause)
	}
	info.Offset = st.Size()

	if err := s.save(info); err != nil {
		return info, errors.Join(cause, err)
	}
	return info, &upload.RecoveredError{Err: cause}
}

// ctxReader fails reads once ctx is done, so a cancelled request ends the
// transfer like a disconnected client would.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
