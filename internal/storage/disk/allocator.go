package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dmitrijs2005/tusstore/internal/common"
)

// allocate picks a fresh id and creates its directory. os.Mkdir fails on an
// existing directory, so a collision simply moves on to the next candidate.
func (s *Service) allocate() (id string, dir string, err error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	for attempt := 0; attempt < s.maxIDAttempts; attempt++ {
		id = s.ids.CreateID()

		dir, err = s.layout.uploadDir(id)
		if err != nil {
			return "", "", err
		}

		err = os.Mkdir(dir, 0o750)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("create upload directory %s: %w", id, err)
		}
	}

	return "", "", fmt.Errorf("%d attempts: %w", s.maxIDAttempts, common.ErrorIDAllocationExhausted)
}
